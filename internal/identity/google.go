// Package identity verifies ID tokens issued by the external identity provider.
package identity

import (
	"context"
	"fmt"
	"slices"

	"github.com/coreos/go-oidc/v3/oidc"

	"socialhub/internal/apperr"
)

// GoogleIssuer is the issuer URL of Google ID tokens.
const GoogleIssuer = "https://accounts.google.com"

// Profile is the verified identity carried by an ID token.
type Profile struct {
	Email      string
	GivenName  string
	FamilyName string
	Picture    string
}

// Verifier checks an opaque ID token out-of-band.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (*Profile, error)
}

// Google verifies Google ID tokens for a set of accepted client ids.
type Google struct {
	verifier  *oidc.IDTokenVerifier
	audiences []string
}

// NewGoogle discovers the Google provider and returns a verifier accepting any of clientIDs.
func NewGoogle(ctx context.Context, clientIDs []string) (*Google, error) {
	provider, err := oidc.NewProvider(ctx, GoogleIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	return &Google{verifier: verifier, audiences: clientIDs}, nil
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// Verify validates the token signature, issuer, expiry and audience, and
// requires the provider to have verified the email address.
func (g *Google) Verify(ctx context.Context, idToken string) (*Profile, error) {
	failed := apperr.BadRequest("Failed to verify Google account")

	tok, err := g.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, failed.Wrap(err)
	}
	if !g.audienceAllowed(tok.Audience) {
		return nil, failed.Wrap(fmt.Errorf("audience %v not accepted", tok.Audience))
	}
	var claims googleClaims
	if err := tok.Claims(&claims); err != nil {
		return nil, failed.Wrap(err)
	}
	if !claims.EmailVerified || claims.Email == "" {
		return nil, failed
	}
	return &Profile{
		Email:      claims.Email,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
		Picture:    claims.Picture,
	}, nil
}

func (g *Google) audienceAllowed(aud []string) bool {
	for _, a := range aud {
		if slices.Contains(g.audiences, a) {
			return true
		}
	}
	return false
}

// Disabled rejects every token. It stands in when no client ids are configured.
type Disabled struct{}

func (Disabled) Verify(context.Context, string) (*Profile, error) {
	return nil, apperr.BadRequest("Google sign-in is not configured")
}
