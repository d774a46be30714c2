package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubesec-bank/invest-ledger/internal/errs"
)

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.NoError(t, CheckPassword(hash, "s3cret"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong"), errs.ErrInvalidCredential)
}

func TestConfirmationCodes(t *testing.T) {
	a, err := NewConfirmationCode()
	require.NoError(t, err)
	b, err := NewConfirmationCode()
	require.NoError(t, err)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)

	hash, err := HashPassword(a)
	require.NoError(t, err)
	assert.NoError(t, CheckPassword(hash, a))
	assert.ErrorIs(t, CheckPassword(hash, b), errs.ErrInvalidCredential)
}

func TestIssueAndValidate(t *testing.T) {
	s := NewSessions("test-secret", time.Minute, NewMemoryRevocations())
	id := uuid.New()

	token, err := s.Issue(id, "ana@example.com")
	require.NoError(t, err)

	claims, err := s.Validate(context.Background(), token)
	require.NoError(t, err)
	got, err := claims.Identity()
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateRejects(t *testing.T) {
	s := NewSessions("test-secret", time.Minute, NewMemoryRevocations())
	ctx := context.Background()

	_, err := s.Validate(ctx, "not-a-token")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	other := NewSessions("other-secret", time.Minute, NewMemoryRevocations())
	token, err := other.Issue(uuid.New(), "x@example.com")
	require.NoError(t, err)
	_, err = s.Validate(ctx, token)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	expired := NewSessions("test-secret", time.Minute, NewMemoryRevocations())
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err = expired.Issue(uuid.New(), "x@example.com")
	require.NoError(t, err)
	_, err = s.Validate(ctx, token)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"identity_id": uuid.NewString()})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Validate(ctx, raw)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestLogoutRevokesSingleToken(t *testing.T) {
	s := NewSessions("test-secret", time.Minute, NewMemoryRevocations())
	ctx := context.Background()
	id := uuid.New()

	first, err := s.Issue(id, "a@example.com")
	require.NoError(t, err)
	second, err := s.Issue(id, "a@example.com")
	require.NoError(t, err)

	claims, err := s.Validate(ctx, first)
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx, claims))

	_, err = s.Validate(ctx, first)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = s.Validate(ctx, second)
	assert.NoError(t, err)
}

func TestRevokeAll(t *testing.T) {
	s := NewSessions("test-secret", time.Minute, NewMemoryRevocations())
	ctx := context.Background()
	id := uuid.New()
	bystander := uuid.New()

	token, err := s.Issue(id, "a@example.com")
	require.NoError(t, err)
	kept, err := s.Issue(bystander, "b@example.com")
	require.NoError(t, err)

	require.NoError(t, s.RevokeAll(ctx, id))

	_, err = s.Validate(ctx, token)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = s.Validate(ctx, kept)
	assert.NoError(t, err)

	// tokens issued after the watermark second are accepted again
	s.now = func() time.Time { return time.Now().Add(2 * time.Second) }
	fresh, err := s.Issue(id, "a@example.com")
	require.NoError(t, err)
	_, err = s.Validate(ctx, fresh)
	assert.NoError(t, err)
}

func TestRedisRevocationsSurfaceErrors(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer rdb.Close()
	r := NewRedisRevocations(rdb)
	ctx := context.Background()

	assert.Error(t, r.RevokeIdentity(ctx, uuid.New(), time.Now(), time.Minute))

	s := NewSessions("test-secret", time.Minute, r)
	token, err := s.Issue(uuid.New(), "a@example.com")
	require.NoError(t, err)
	_, err = s.Validate(ctx, token)
	require.Error(t, err)
	assert.False(t, errs.Classify(err) == errs.ClassUnauthorized, "store failures are internal")
}
