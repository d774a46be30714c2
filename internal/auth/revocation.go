package auth

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Revocations records revoked tokens. A token is revoked when its id was
// blacklisted or when it was issued no later than its identity's
// revocation watermark.
type Revocations interface {
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
	RevokeIdentity(ctx context.Context, identityID uuid.UUID, at time.Time, ttl time.Duration) error
	IsRevoked(ctx context.Context, claims *Claims) (bool, error)
}

const (
	blacklistPrefix = "blacklist:"
	revokedPrefix   = "revoked:"
)

// RedisRevocations keeps revocations in Redis with expiries matching the
// token lifetime.
type RedisRevocations struct {
	rdb redis.UniversalClient
}

var _ Revocations = (*RedisRevocations)(nil)

func NewRedisRevocations(rdb redis.UniversalClient) *RedisRevocations {
	return &RedisRevocations{rdb: rdb}
}

func (r *RedisRevocations) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	return r.rdb.Set(ctx, blacklistPrefix+tokenID, "1", ttl).Err()
}

func (r *RedisRevocations) RevokeIdentity(ctx context.Context, identityID uuid.UUID, at time.Time, ttl time.Duration) error {
	return r.rdb.Set(ctx, revokedPrefix+identityID.String(), strconv.FormatInt(at.Unix(), 10), ttl).Err()
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, claims *Claims) (bool, error) {
	n, err := r.rdb.Exists(ctx, blacklistPrefix+claims.ID).Result()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	raw, err := r.rdb.Get(ctx, revokedPrefix+claims.IdentityID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	watermark, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, err
	}
	return issuedNoLaterThan(claims, watermark)
}

func issuedNoLaterThan(claims *Claims, unix int64) (bool, error) {
	if claims.IssuedAt == nil {
		return false, errNoIssuedAt
	}
	return claims.IssuedAt.Unix() <= unix, nil
}

// MemoryRevocations is a process-local Revocations for tests and single
// instance deployments without Redis. Entries never expire.
type MemoryRevocations struct {
	mu         sync.RWMutex
	tokens     map[string]struct{}
	identities map[string]int64
	// Err, when set, is returned by RevokeIdentity.
	Err error
}

var _ Revocations = (*MemoryRevocations)(nil)

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{
		tokens:     make(map[string]struct{}),
		identities: make(map[string]int64),
	}
}

func (m *MemoryRevocations) RevokeToken(_ context.Context, tokenID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tokenID] = struct{}{}
	return nil
}

func (m *MemoryRevocations) RevokeIdentity(_ context.Context, identityID uuid.UUID, at time.Time, _ time.Duration) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identityID.String()] = at.Unix()
	return nil
}

func (m *MemoryRevocations) IsRevoked(_ context.Context, claims *Claims) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.tokens[claims.ID]; ok {
		return true, nil
	}
	watermark, ok := m.identities[claims.IdentityID]
	if !ok {
		return false, nil
	}
	return issuedNoLaterThan(claims, watermark)
}
