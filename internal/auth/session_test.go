package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialhub/internal/apperr"
	"socialhub/internal/notify"
	"socialhub/internal/token"
)

func TestLogoutOnlyRevokesBothHalves(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "a@x.com", "Aa123456")
	creds := h.login(t, "a@x.com", "Aa123456")
	other := h.login(t, "a@x.com", "Aa123456")

	require.NoError(t, h.m.Logout(ctx, h.session(t, creds), LogoutOnly))

	_, err := h.m.Authenticate(ctx, h.header(t, creds.AccessToken), token.Access)
	assert.ErrorIs(t, err, apperr.Unauthorized("Invalid or old login credential"))
	_, err = h.m.Authenticate(ctx, h.header(t, creds.RefreshToken), token.Refresh)
	assert.ErrorIs(t, err, apperr.Unauthorized("Invalid or old login credential"))

	_, err = h.m.Authenticate(ctx, h.header(t, other.AccessToken), token.Access)
	assert.NoError(t, err)
}

func TestLogoutAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "a@x.com", "Aa123456")
	first := h.login(t, "a@x.com", "Aa123456")
	second := h.login(t, "a@x.com", "Aa123456")

	h.clock.Advance(time.Second)
	require.NoError(t, h.m.Logout(ctx, h.session(t, first), LogoutAll))

	for _, raw := range []string{first.AccessToken, second.AccessToken} {
		_, err := h.m.Authenticate(ctx, h.header(t, raw), token.Access)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	}

	h.clock.Advance(time.Second)
	h.session(t, h.login(t, "a@x.com", "Aa123456"))
}

func TestRefreshToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "a@x.com", "Aa123456")
	creds := h.login(t, "a@x.com", "Aa123456")

	sess, err := h.m.Authenticate(ctx, h.header(t, creds.RefreshToken), token.Refresh)
	require.NoError(t, err)
	fresh, err := h.m.RefreshToken(ctx, sess)
	require.NoError(t, err)
	assert.NotEqual(t, creds.AccessToken, fresh.AccessToken)

	_, err = h.m.Authenticate(ctx, h.header(t, creds.RefreshToken), token.Refresh)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = h.m.Authenticate(ctx, h.header(t, creds.AccessToken), token.Access)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	h.session(t, fresh)
}

func TestUpdateEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "a@x.com", "Aa123456")
	h.register(t, "taken@x.com", "Aa123456")
	sess := h.session(t, h.login(t, "a@x.com", "Aa123456"))

	err := h.m.UpdateEmail(ctx, sess, "b@x.com", "Wrong1234")
	assert.ErrorIs(t, err, apperr.BadRequest("Invalid password"))

	err = h.m.UpdateEmail(ctx, sess, "taken@x.com", "Aa123456")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, h.m.UpdateEmail(ctx, sess, "b@x.com", "Aa123456"))
	doc := h.raw(t, "b@x.com")
	assert.NotContains(t, doc, "confirmAt")
	assert.Contains(t, doc, "confirmEmailOtp")

	e, ok := h.mail.Last(notify.ConfirmEmail)
	require.True(t, ok)
	assert.Equal(t, "b@x.com", e.To)

	_, err = h.m.Login(ctx, "b@x.com", "Aa123456")
	assert.ErrorIs(t, err, apperr.ErrApplication)

	require.NoError(t, h.m.ConfirmEmail(ctx, "b@x.com", e.OTP))
	h.login(t, "b@x.com", "Aa123456")
}
