// Package token signs and verifies login credentials and keeps the ledger of
// revoked token identifiers.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"socialhub/internal/apperr"
	"socialhub/internal/models"
)

// Level is the bearer prefix that selects a signing key pair.
type Level string

const (
	LevelBearer Level = "Bearer"
	LevelSystem Level = "System"
)

// LevelFor maps a role to its privilege tier.
func LevelFor(role models.Role) Level {
	if role.Elevated() {
		return LevelSystem
	}
	return LevelBearer
}

// Kind selects the access or refresh half of a key pair.
type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
)

// KeyPair holds the access and refresh signing secrets of one tier.
type KeyPair struct {
	Access  []byte
	Refresh []byte
}

func (k KeyPair) key(kind Kind) []byte {
	if kind == Refresh {
		return k.Refresh
	}
	return k.Access
}

// Claims carries the account id as the only custom claim.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"_id,omitempty"`
}

// Account parses the account id claim.
func (c *Claims) Account() (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(c.AccountID)
}

// IssuedAtTime returns iat, or the zero time when absent.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// Credentials is the pair returned by a successful login.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Issuer signs tokens with HS256 using per-tier key pairs.
type Issuer struct {
	keys       map[Level]KeyPair
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer returns an Issuer for the given tiers and lifetimes.
func NewIssuer(keys map[Level]KeyPair, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{keys: keys, accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

// WithClock overrides the time source used for iat, exp and validation.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// RefreshTTL is the lifetime of refresh tokens and of revocation records.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// Keys returns the key pair of a tier. Unknown tiers are Unauthorized.
func (i *Issuer) Keys(level Level) (KeyPair, error) {
	kp, ok := i.keys[level]
	if !ok || len(kp.Access) == 0 || len(kp.Refresh) == 0 {
		return KeyPair{}, apperr.Unauthorized("Invalid token signature level")
	}
	return kp, nil
}

// Issue signs claims with key for ttl under the given jti.
func (i *Issuer) Issue(claims Claims, key []byte, ttl time.Duration, jti string) (string, error) {
	if len(key) == 0 {
		return "", errors.New("signing key is required")
	}
	now := i.now()
	claims.ID = jti
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the claims.
func (i *Issuer) Verify(raw string, key []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Unauthorized("Token expired").Wrap(err)
		}
		return nil, apperr.Unauthorized("Invalid token").Wrap(err)
	}
	return claims, nil
}

// CreateLoginCredentials mints an access and refresh token sharing one jti.
func (i *Issuer) CreateLoginCredentials(account *models.Account) (Credentials, error) {
	kp, err := i.Keys(LevelFor(account.Role))
	if err != nil {
		return Credentials{}, err
	}
	jti := uuid.NewString()
	claims := Claims{AccountID: account.ID.Hex()}

	access, err := i.Issue(claims, kp.Access, i.accessTTL, jti)
	if err != nil {
		return Credentials{}, err
	}
	refresh, err := i.Issue(claims, kp.Refresh, i.refreshTTL, jti)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{AccessToken: access, RefreshToken: refresh}, nil
}
