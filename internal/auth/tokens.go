// Package auth handles credentials and session tokens.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kubesec-bank/invest-ledger/internal/errs"
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CheckPassword fails with ErrInvalidCredential on mismatch.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return errs.ErrInvalidCredential
	}
	return nil
}

// NewConfirmationCode returns a random single-use code for confirming a new
// identity out of band. Store only its HashPassword hash.
func NewConfirmationCode() (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("confirmation code: %w", err)
	}
	return base32.StdEncoding.EncodeToString(b), nil
}

// Claims are carried in every access token.
type Claims struct {
	IdentityID string `json:"identity_id"`
	Email      string `json:"email"`
	jwt.RegisteredClaims
}

// Identity parses the identity id claim.
func (c *Claims) Identity() (uuid.UUID, error) {
	return uuid.Parse(c.IdentityID)
}

// Sessions issues HS256 access tokens and validates them against the
// revocation store.
type Sessions struct {
	secret  []byte
	expiry  time.Duration
	revoked Revocations
	now     func() time.Time
}

func NewSessions(secret string, expiry time.Duration, revoked Revocations) *Sessions {
	return &Sessions{secret: []byte(secret), expiry: expiry, revoked: revoked, now: time.Now}
}

func (s *Sessions) Expiry() time.Duration { return s.expiry }

// Issue signs a new access token for the identity.
func (s *Sessions) Issue(identityID uuid.UUID, email string) (string, error) {
	now := s.now().UTC()
	claims := Claims{
		IdentityID: identityID.String(),
		Email:      email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identityID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Validate parses the token and checks it has not been revoked.
func (s *Sessions) Validate(ctx context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid or expired token", errs.ErrUnauthorized)
	}
	if _, err := claims.Identity(); err != nil {
		return nil, fmt.Errorf("%w: invalid token claims", errs.ErrUnauthorized)
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: token has been revoked", errs.ErrUnauthorized)
	}
	return claims, nil
}

// Logout revokes a single token for the rest of its lifetime.
func (s *Sessions) Logout(ctx context.Context, claims *Claims) error {
	ttl := s.expiry
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(s.now())
	}
	if ttl <= 0 {
		return nil
	}
	return s.revoked.RevokeToken(ctx, claims.ID, ttl)
}

// RevokeAll revokes every token issued to the identity so far.
func (s *Sessions) RevokeAll(ctx context.Context, identityID uuid.UUID) error {
	if err := s.revoked.RevokeIdentity(ctx, identityID, s.now(), s.expiry); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

var errNoIssuedAt = errors.New("token has no issued-at claim")
