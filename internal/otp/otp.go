// Package otp issues the one-time codes and two-factor secrets used by account flows.
package otp

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/pquerna/otp/totp"
)

const (
	// CodeLength is the number of digits in a numeric code.
	CodeLength = 6
	// TwoFactorTTL bounds the lifetime of a two-factor challenge.
	TwoFactorTTL = 10 * time.Minute

	urlAlphabet = "useandom-26T198340PX75pxJACKVERYMINDBUSHWOLF_GQZbfghjklqvwyzrict"
)

// Purpose names the flow a challenge belongs to.
type Purpose string

const (
	PurposeConfirmEmail     Purpose = "confirmEmail"
	PurposeResetPassword    Purpose = "resetPassword"
	PurposeTwoFactorSetup   Purpose = "twoFactorSetup"
	PurposeTwoFactorDisable Purpose = "twoFactorDisable"
)

// Expiry returns the deadline of a challenge issued at now, or nil when the
// purpose relies on single-use consumption instead of a timer.
func (p Purpose) Expiry(now time.Time) *time.Time {
	switch p {
	case PurposeTwoFactorSetup, PurposeTwoFactorDisable:
		t := now.Add(TwoFactorTTL)
		return &t
	}
	return nil
}

// Secret is a freshly generated two-factor key.
type Secret struct {
	Value string
	URL   string
}

// Engine generates codes from a cryptographic source.
type Engine struct {
	issuer string
	rand   io.Reader
}

// NewEngine returns an Engine whose TOTP keys carry issuer.
func NewEngine(issuer string) *Engine {
	return &Engine{issuer: issuer, rand: rand.Reader}
}

// Numeric returns a CodeLength digit code without a leading zero.
func (e *Engine) Numeric() (string, error) {
	low := big.NewInt(100000)
	span := big.NewInt(900000)
	n, err := rand.Int(e.rand, span)
	if err != nil {
		return "", fmt.Errorf("generate numeric code: %w", err)
	}
	return n.Add(n, low).String(), nil
}

// Alphanumeric returns a URL-safe code of the given length.
func (e *Engine) Alphanumeric(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid code length %d", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(e.rand, buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = urlAlphabet[b&63]
	}
	return string(out), nil
}

// TwoFactorSecret creates a TOTP key bound to account.
func (e *Engine) TwoFactorSecret(account string) (Secret, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: account,
		Rand:        e.rand,
	})
	if err != nil {
		return Secret{}, fmt.Errorf("generate two-factor secret: %w", err)
	}
	return Secret{Value: key.Secret(), URL: key.URL()}, nil
}
