package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialhub/internal/apperr"
	"socialhub/internal/notify"
	"socialhub/internal/otp"
)

func enabledSession(t *testing.T, h *harness, email string) *Session {
	t.Helper()
	ctx := context.Background()
	h.register(t, email, "Aa123456")
	creds := h.login(t, email, "Aa123456")
	require.NoError(t, h.m.EnableTwoFactor(ctx, h.session(t, creds), "Aa123456"))
	require.NoError(t, h.m.VerifyTwoFactor(ctx, h.session(t, creds), h.lastCode(t, notify.TwoFactorSetup)))
	return h.session(t, creds)
}

func TestTwoFactorSetup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "a@x.com", "Aa123456")
	creds := h.login(t, "a@x.com", "Aa123456")

	err := h.m.EnableTwoFactor(ctx, h.session(t, creds), "Wrong1234")
	assert.ErrorIs(t, err, apperr.BadRequest("Invalid password"))

	err = h.m.VerifyTwoFactor(ctx, h.session(t, creds), "123456")
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	require.NoError(t, h.m.EnableTwoFactor(ctx, h.session(t, creds), "Aa123456"))
	doc := h.raw(t, "a@x.com")
	assert.NotEmpty(t, doc["twoFactorSecret"])
	assert.Contains(t, doc, "twoFactorOtpExpires")
	assert.NotContains(t, doc, "twoFactorEnabled")

	code := h.lastCode(t, notify.TwoFactorSetup)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	err = h.m.VerifyTwoFactor(ctx, h.session(t, creds), wrong)
	assert.ErrorIs(t, err, apperr.BadRequest("Invalid OTP"))

	require.NoError(t, h.m.VerifyTwoFactor(ctx, h.session(t, creds), code))
	doc = h.raw(t, "a@x.com")
	assert.Equal(t, true, doc["twoFactorEnabled"])
	assert.NotContains(t, doc, "twoFactorOtp")

	err = h.m.VerifyTwoFactor(ctx, h.session(t, creds), code)
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
	err = h.m.EnableTwoFactor(ctx, h.session(t, creds), "Aa123456")
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}

func TestTwoFactorSetupCodeExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "a@x.com", "Aa123456")
	creds := h.login(t, "a@x.com", "Aa123456")

	require.NoError(t, h.m.EnableTwoFactor(ctx, h.session(t, creds), "Aa123456"))
	code := h.lastCode(t, notify.TwoFactorSetup)

	h.clock.Advance(otp.TwoFactorTTL + time.Second)
	err := h.m.VerifyTwoFactor(ctx, h.session(t, creds), code)
	assert.ErrorIs(t, err, apperr.BadRequest("OTP expired"))
	assert.NotContains(t, h.raw(t, "a@x.com"), "twoFactorEnabled")
}

func TestDisableTwoFactor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := enabledSession(t, h, "a@x.com")

	_, err := h.m.DisableTwoFactor(ctx, sess, "Wrong1234", "")
	assert.ErrorIs(t, err, apperr.BadRequest("Invalid password"))

	disabled, err := h.m.DisableTwoFactor(ctx, sess, "Aa123456", "")
	require.NoError(t, err)
	assert.False(t, disabled)
	code := h.lastCode(t, notify.TwoFactorDisable)

	sess = h.session(t, h.login(t, "a@x.com", "Aa123456"))
	disabled, err = h.m.DisableTwoFactor(ctx, sess, "Aa123456", code)
	require.NoError(t, err)
	assert.True(t, disabled)

	doc := h.raw(t, "a@x.com")
	assert.Equal(t, false, doc["twoFactorEnabled"])
	assert.NotContains(t, doc, "twoFactorSecret")

	sess = h.session(t, h.login(t, "a@x.com", "Aa123456"))
	_, err = h.m.DisableTwoFactor(ctx, sess, "Aa123456", code)
	assert.ErrorIs(t, err, apperr.BadRequest("Two-factor authentication is not enabled"))
}

func TestDisableTwoFactorWithExpiredCodeReissues(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := enabledSession(t, h, "a@x.com")

	_, err := h.m.DisableTwoFactor(ctx, sess, "Aa123456", "")
	require.NoError(t, err)
	code := h.lastCode(t, notify.TwoFactorDisable)
	sent := len(h.mail.Events())

	h.clock.Advance(otp.TwoFactorTTL + time.Second)
	sess = h.session(t, h.login(t, "a@x.com", "Aa123456"))
	disabled, err := h.m.DisableTwoFactor(ctx, sess, "Aa123456", code)
	require.NoError(t, err)
	assert.False(t, disabled)
	assert.Len(t, h.mail.Events(), sent+1)
	assert.Equal(t, true, h.raw(t, "a@x.com")["twoFactorEnabled"])
}
