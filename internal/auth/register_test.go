package auth

import (
	"context"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"socialhub/internal/apperr"
	"socialhub/internal/identity"
	"socialhub/internal/models"
	"socialhub/internal/notify"
	"socialhub/internal/token"
)

func TestSignupThenWrongCodeKeepsAccountPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	acc, err := h.m.Signup(ctx, SignupInput{Username: "a b", Email: "a@x.com", Password: "Aa123456"})
	require.NoError(t, err)
	assert.Equal(t, "a", acc.FirstName)
	assert.Equal(t, "b", acc.LastName)
	assert.Empty(t, acc.Password)
	assert.Empty(t, acc.ConfirmEmailOTP)
	assert.Equal(t, models.RoleUser, acc.Role)
	assert.Equal(t, models.ProviderSystem, acc.Provider)

	e, ok := h.mail.Last(notify.ConfirmEmail)
	require.True(t, ok)
	assert.Equal(t, "a@x.com", e.To)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), e.OTP)

	doc := h.raw(t, "a@x.com")
	assert.NotEqual(t, e.OTP, doc["confirmEmailOtp"])
	assert.NotEqual(t, "Aa123456", doc["password"])

	wrong := "000000"
	if e.OTP == wrong {
		wrong = "111111"
	}
	err = h.m.ConfirmEmail(ctx, "a@x.com", wrong)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, http.StatusConflict, apperr.StatusCode(err))
	_, confirmed := h.raw(t, "a@x.com")["confirmAt"]
	assert.False(t, confirmed)
}

func TestConfirmEmailSucceedsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.m.Signup(ctx, SignupInput{Username: "a b", Email: "a@x.com", Password: "Aa123456"})
	require.NoError(t, err)
	code := h.lastCode(t, notify.ConfirmEmail)

	require.NoError(t, h.m.ConfirmEmail(ctx, "a@x.com", code))
	doc := h.raw(t, "a@x.com")
	assert.Contains(t, doc, "confirmAt")
	assert.NotContains(t, doc, "confirmEmailOtp")

	err = h.m.ConfirmEmail(ctx, "a@x.com", code)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSignupRejectsTakenEmailIncludingFrozen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acc := h.register(t, "a@x.com", "Aa123456")

	_, err := h.m.Signup(ctx, SignupInput{Username: "x y", Email: "a@x.com", Password: "Aa123456"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, h.m.FreezeAccount(ctx, acc, nil))
	_, err = h.m.Signup(ctx, SignupInput{Username: "x y", Email: "a@x.com", Password: "Aa123456"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestLoginRequiresEveryCondition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.m.Login(ctx, "nobody@x.com", "Aa123456")
	assert.ErrorIs(t, err, apperr.NotFound("Invalid email or password"))

	_, err = h.m.Signup(ctx, SignupInput{Username: "a b", Email: "a@x.com", Password: "Aa123456"})
	require.NoError(t, err)

	_, err = h.m.Login(ctx, "a@x.com", "Aa123456")
	assert.ErrorIs(t, err, apperr.Application("Please verify your account", 0))
	assert.Equal(t, http.StatusBadRequest, apperr.StatusCode(err))

	_, err = h.m.Login(ctx, "a@x.com", "Wrong1234")
	assert.ErrorIs(t, err, apperr.NotFound("Invalid email or password"))

	require.NoError(t, h.m.ConfirmEmail(ctx, "a@x.com", h.lastCode(t, notify.ConfirmEmail)))

	_, err = h.m.Login(ctx, "a@x.com", "Wrong1234")
	assert.ErrorIs(t, err, apperr.NotFound("Invalid email or password"))

	creds, err := h.m.Login(ctx, "a@x.com", "Aa123456")
	require.NoError(t, err)
	assert.NotEmpty(t, creds.AccessToken)
	assert.NotEmpty(t, creds.RefreshToken)
}

func TestLoginIgnoresExternalAccounts(t *testing.T) {
	h := newHarness(t)
	h.idp.profiles["tok"] = &identity.Profile{Email: "g@x.com", GivenName: "G", FamilyName: "M"}
	_, err := h.m.SignupWithExternalProvider(context.Background(), "tok")
	require.NoError(t, err)

	_, err = h.m.Login(context.Background(), "g@x.com", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLoginClearsCredentialChangeMarker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "a@x.com", "Aa123456")
	sess := h.session(t, h.login(t, "a@x.com", "Aa123456"))

	h.clock.Advance(time.Second)
	require.NoError(t, h.m.Logout(ctx, sess, LogoutAll))
	assert.Contains(t, h.raw(t, "a@x.com"), "changeCredentialTime")

	h.clock.Advance(time.Second)
	h.login(t, "a@x.com", "Aa123456")
	assert.NotContains(t, h.raw(t, "a@x.com"), "changeCredentialTime")
}

func TestExternalProvider(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.idp.profiles["google"] = &identity.Profile{Email: "g@x.com", GivenName: "Gee", FamilyName: "Mail", Picture: "p.png"}

	_, err := h.m.LoginWithExternalProvider(ctx, "google")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	creds, err := h.m.SignupWithExternalProvider(ctx, "google")
	require.NoError(t, err)
	sess := h.session(t, creds)
	assert.Equal(t, models.ProviderGoogle, sess.Account.Provider)
	assert.NotNil(t, sess.Account.ConfirmAt)
	assert.Empty(t, sess.Account.Password)
	assert.Equal(t, "Gee Mail", sess.Account.Username())

	_, err = h.m.SignupWithExternalProvider(ctx, "google")
	require.NoError(t, err)
	_, err = h.m.LoginWithExternalProvider(ctx, "google")
	require.NoError(t, err)

	_, err = h.m.SignupWithExternalProvider(ctx, "forged")
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}

func TestExternalLoginInSameSecondAsLogoutAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.idp.profiles["google"] = &identity.Profile{Email: "g@x.com", GivenName: "G", FamilyName: "M"}

	creds, err := h.m.SignupWithExternalProvider(ctx, "google")
	require.NoError(t, err)
	sess := h.session(t, creds)

	h.clock.Advance(300 * time.Millisecond)
	require.NoError(t, h.m.Logout(ctx, sess, LogoutAll))

	h.clock.Advance(300 * time.Millisecond)
	creds, err = h.m.LoginWithExternalProvider(ctx, "google")
	require.NoError(t, err)
	h.session(t, creds)
	assert.NotContains(t, h.raw(t, "g@x.com"), "changeCredentialTime")

	h.clock.Advance(100 * time.Millisecond)
	require.NoError(t, h.m.Logout(ctx, h.session(t, creds), LogoutAll))
	creds, err = h.m.SignupWithExternalProvider(ctx, "google")
	require.NoError(t, err)
	h.session(t, creds)
}

func TestExternalSignupConflictsWithLocalAccount(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a@x.com", "Aa123456")
	h.idp.profiles["google"] = &identity.Profile{Email: "a@x.com"}

	_, err := h.m.SignupWithExternalProvider(context.Background(), "google")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = h.m.LoginWithExternalProvider(context.Background(), "google")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAuthenticate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "a@x.com", "Aa123456")
	creds := h.login(t, "a@x.com", "Aa123456")

	sess := h.session(t, creds)
	assert.Equal(t, "a@x.com", sess.Account.Email)

	_, err := h.m.Authenticate(ctx, "Bearer "+creds.RefreshToken, token.Access)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = h.m.Authenticate(ctx, "Bearer "+creds.RefreshToken, token.Refresh)
	require.NoError(t, err)

	_, err = h.m.Authenticate(ctx, creds.AccessToken, token.Access)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	h.clock.Advance(time.Second)
	_, err = h.store.UpdateOne(ctx, bson.M{"email": "a@x.com"}, bson.M{"$set": bson.M{"changeCredentialTime": h.clock.Now()}})
	require.NoError(t, err)
	_, err = h.m.Authenticate(ctx, "Bearer "+creds.AccessToken, token.Access)
	assert.ErrorIs(t, err, apperr.Unauthorized("Invalid or old login credential"))

	_, err = h.store.DeleteOne(ctx, bson.M{"email": "a@x.com"})
	require.NoError(t, err)
	_, err = h.m.Authenticate(ctx, "Bearer "+creds.AccessToken, token.Access)
	assert.ErrorIs(t, err, apperr.BadRequest("not register account"))
}

func TestAuthorize(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "u@x.com", "Aa123456")
	h.register(t, "admin@x.com", "Aa123456")
	h.promote(t, "admin@x.com", models.RoleAdmin)

	user := h.login(t, "u@x.com", "Aa123456")
	admin := h.login(t, "admin@x.com", "Aa123456")

	_, err := h.m.Authorize(ctx, "Bearer "+user.AccessToken, token.Access, models.RoleAdmin, models.RoleSuperAdmin)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = h.m.Authorize(ctx, "Bearer "+admin.AccessToken, token.Access, models.RoleAdmin)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	sess, err := h.m.Authorize(ctx, "System "+admin.AccessToken, token.Access, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, sess.Account.Role)
}
