package auth

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"socialhub/internal/apperr"
	"socialhub/internal/models"
	"socialhub/internal/notify"
	"socialhub/internal/repository"
	"socialhub/internal/token"
)

// SignupInput is the payload of Signup.
type SignupInput struct {
	Username string
	Email    string
	Password string
}

// Signup registers a local account pending email confirmation.
func (m *Manager) Signup(ctx context.Context, in SignupInput) (acc *models.Account, err error) {
	defer func() { m.observe("signup", err) }()

	_, err = m.accounts.FindOne(ctx, bson.M{"email": in.Email}, repository.Options{IncludeFrozen: true})
	if err == nil {
		return nil, apperr.Conflict("Email already Exist")
	}
	if !isMissing(err) {
		return nil, err
	}

	code, codeHash, err := m.issueCode(ctx)
	if err != nil {
		return nil, err
	}
	passwordHash, err := m.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, err
	}

	acc = &models.Account{
		Email:           in.Email,
		Password:        passwordHash,
		ConfirmEmailOTP: codeHash,
	}
	acc.SetUsername(in.Username)
	if _, err = m.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("Email already Exist")
		}
		return nil, apperr.BadRequest("Failed to Signup user").Wrap(err)
	}

	m.notifier.Publish(ctx, notify.Event{Name: notify.ConfirmEmail, To: in.Email, OTP: code})
	m.logger.Info("account registered", zap.String("account_id", acc.ID.Hex()))

	acc.Password = ""
	acc.ConfirmEmailOTP = ""
	return acc, nil
}

// SignupWithExternalProvider creates an account from a verified Google ID token.
// Existing Google accounts are logged in instead.
func (m *Manager) SignupWithExternalProvider(ctx context.Context, idToken string) (creds token.Credentials, err error) {
	defer func() { m.observe("signup_external", err) }()

	profile, err := m.identity.Verify(ctx, idToken)
	if err != nil {
		return token.Credentials{}, err
	}

	existing, err := m.accounts.FindOne(ctx, bson.M{"email": profile.Email}, repository.Options{IncludeFrozen: true})
	switch {
	case err == nil:
		if existing.Provider == models.ProviderGoogle {
			return m.loginExternal(ctx, profile.Email)
		}
		return token.Credentials{}, apperr.Conflict("Email already Exist")
	case !isMissing(err):
		return token.Credentials{}, err
	}

	now := m.now()
	acc := &models.Account{
		Email:        profile.Email,
		FirstName:    profile.GivenName,
		LastName:     profile.FamilyName,
		ProfileImage: profile.Picture,
		ConfirmAt:    &now,
		Provider:     models.ProviderGoogle,
	}
	if _, err = m.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return token.Credentials{}, apperr.Conflict("Email already Exist")
		}
		return token.Credentials{}, apperr.BadRequest("Failed to create user").Wrap(err)
	}
	m.logger.Info("account registered", zap.String("account_id", acc.ID.Hex()), zap.String("provider", string(acc.Provider)))
	return m.tokens.CreateLoginCredentials(acc)
}

// LoginWithExternalProvider logs an existing Google account in.
func (m *Manager) LoginWithExternalProvider(ctx context.Context, idToken string) (creds token.Credentials, err error) {
	defer func() { m.observe("login_external", err) }()

	profile, err := m.identity.Verify(ctx, idToken)
	if err != nil {
		return token.Credentials{}, err
	}
	return m.loginExternal(ctx, profile.Email)
}

func (m *Manager) loginExternal(ctx context.Context, email string) (token.Credentials, error) {
	acc, err := m.accounts.FindOne(ctx, bson.M{"email": email, "provider": models.ProviderGoogle})
	if isMissing(err) {
		return token.Credentials{}, apperr.NotFound("User not found or with another provider")
	}
	if err != nil {
		return token.Credentials{}, err
	}
	return m.issueLogin(ctx, acc)
}

// issueLogin mints a login pair and drops the credential change marker so
// tokens issued in the same second as a logout-all stay valid.
func (m *Manager) issueLogin(ctx context.Context, acc *models.Account) (token.Credentials, error) {
	creds, err := m.tokens.CreateLoginCredentials(acc)
	if err != nil {
		return token.Credentials{}, err
	}
	if acc.ChangeCredentialTime != nil {
		if _, err := m.accounts.UpdateOne(ctx, byID(acc.ID), bson.M{"$unset": bson.M{"changeCredentialTime": 1}}); err != nil {
			m.logger.Warn("clear credential change marker", zap.String("account_id", acc.ID.Hex()), zap.Error(err))
		}
	}
	return creds, nil
}

// ConfirmEmail consumes the pending confirmation code of email.
func (m *Manager) ConfirmEmail(ctx context.Context, email, code string) (err error) {
	defer func() { m.observe("confirm_email", err) }()

	acc, err := m.accounts.FindOne(ctx, bson.M{
		"email":           email,
		"confirmAt":       bson.M{"$exists": false},
		"confirmEmailOtp": bson.M{"$exists": true},
	})
	if isMissing(err) {
		return apperr.NotFound("Invalid account or already verified")
	}
	if err != nil {
		return err
	}
	if !m.hasher.Verify(ctx, code, acc.ConfirmEmailOTP) {
		return apperr.Conflict("Invalid OTP")
	}

	res, err := m.accounts.UpdateOne(ctx, bson.M{
		"_id":             acc.ID,
		"confirmAt":       bson.M{"$exists": false},
		"confirmEmailOtp": acc.ConfirmEmailOTP,
	}, bson.M{
		"$set":   bson.M{"confirmAt": m.now()},
		"$unset": bson.M{"confirmEmailOtp": 1},
	})
	if err != nil {
		return err
	}
	if res.Modified == 0 {
		return apperr.Application("Invalid or expired OTP", 0)
	}
	return nil
}

// Login checks a local account's password and issues credentials. Unknown
// emails and wrong passwords fail identically.
func (m *Manager) Login(ctx context.Context, email, password string) (creds token.Credentials, err error) {
	defer func() { m.observe("login", err) }()

	invalid := apperr.NotFound("Invalid email or password")
	acc, err := m.accounts.FindOne(ctx, bson.M{"email": email, "provider": models.ProviderSystem})
	if isMissing(err) {
		return token.Credentials{}, invalid
	}
	if err != nil {
		return token.Credentials{}, err
	}
	if !m.hasher.Verify(ctx, password, acc.Password) {
		return token.Credentials{}, invalid
	}
	if acc.ConfirmAt == nil {
		return token.Credentials{}, apperr.Application("Please verify your account", 0)
	}

	return m.issueLogin(ctx, acc)
}
