package token

import (
	"context"
	"strings"
	"time"

	"socialhub/internal/apperr"
)

// Service combines the Issuer with a revocation Ledger.
type Service struct {
	*Issuer
	ledger Ledger
}

// NewService returns a Service.
func NewService(issuer *Issuer, ledger Ledger) *Service {
	return &Service{Issuer: issuer, ledger: ledger}
}

// CreateRevokeToken records claims' jti as revoked until iat plus the refresh lifetime.
func (s *Service) CreateRevokeToken(ctx context.Context, claims *Claims) error {
	owner, err := claims.Account()
	if err != nil {
		return apperr.BadRequest("Failed to create revoke token").Wrap(err)
	}
	expiresAt := claims.IssuedAtTime().Add(s.RefreshTTL())
	if err := s.ledger.Revoke(ctx, claims.ID, owner, expiresAt); err != nil {
		return apperr.BadRequest("Failed to create revoke token").Wrap(err)
	}
	return nil
}

// Decode parses a "<Level> <token>" header, verifies it with the key of kind
// and rejects revoked identifiers. The account itself is not loaded.
func (s *Service) Decode(ctx context.Context, header string, kind Kind) (*Claims, error) {
	prefix, raw, _ := strings.Cut(strings.TrimSpace(header), " ")
	raw = strings.TrimSpace(raw)
	if prefix == "" || raw == "" {
		return nil, apperr.Unauthorized("missing token parts")
	}
	kp, err := s.Keys(Level(prefix))
	if err != nil {
		return nil, err
	}
	claims, err := s.Verify(raw, kp.key(kind))
	if err != nil {
		return nil, err
	}
	if claims.AccountID == "" || claims.IssuedAt == nil {
		return nil, apperr.BadRequest("Invalid token")
	}
	if _, err := claims.Account(); err != nil {
		return nil, apperr.BadRequest("Invalid token").Wrap(err)
	}
	revoked, err := s.ledger.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, apperr.Unauthorized("Invalid or old login credential")
	}
	return claims, nil
}

// Stale reports whether credentials changed after the token was issued.
func Stale(changedAt *time.Time, claims *Claims) bool {
	if changedAt == nil {
		return false
	}
	return changedAt.After(claims.IssuedAtTime())
}
