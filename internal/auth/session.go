package auth

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"socialhub/internal/apperr"
	"socialhub/internal/notify"
	"socialhub/internal/repository"
	"socialhub/internal/token"
)

// Logout ends the current session (LogoutOnly) or every session (LogoutAll).
func (m *Manager) Logout(ctx context.Context, sess *Session, flag LogoutFlag) (err error) {
	defer func() { m.observe("logout", err) }()

	if flag == LogoutAll {
		_, err = m.accounts.UpdateOne(ctx, byID(sess.Account.ID), bson.M{
			"$set": bson.M{"changeCredentialTime": m.now()},
		})
		return err
	}
	return m.tokens.CreateRevokeToken(ctx, sess.Claims)
}

// RefreshToken issues a new credential pair and revokes the presented one.
func (m *Manager) RefreshToken(ctx context.Context, sess *Session) (creds token.Credentials, err error) {
	defer func() { m.observe("refresh_token", err) }()

	creds, err = m.tokens.CreateLoginCredentials(sess.Account)
	if err != nil {
		return token.Credentials{}, err
	}
	if err := m.tokens.CreateRevokeToken(ctx, sess.Claims); err != nil {
		return token.Credentials{}, err
	}
	return creds, nil
}

// UpdateEmail moves the account to a new address and demotes it back to
// pending confirmation.
func (m *Manager) UpdateEmail(ctx context.Context, sess *Session, email, password string) (err error) {
	defer func() { m.observe("update_email", err) }()

	acc := sess.Account
	if !m.hasher.Verify(ctx, password, acc.Password) {
		return apperr.BadRequest("Invalid password")
	}
	_, err = m.accounts.FindOne(ctx, bson.M{"email": email}, repository.Options{IncludeFrozen: true})
	if err == nil {
		return apperr.Conflict("Email already exists")
	}
	if !isMissing(err) {
		return err
	}

	code, digest, err := m.issueCode(ctx)
	if err != nil {
		return err
	}
	_, err = m.accounts.FindByIDAndUpdate(ctx, acc.ID, bson.M{
		"$set":   bson.M{"email": email, "confirmEmailOtp": digest},
		"$unset": bson.M{"confirmAt": 1},
	})
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.Conflict("Email already exists")
	case isMissing(err):
		return apperr.NotFound("User not found")
	case err != nil:
		return err
	}

	m.notifier.Publish(ctx, notify.Event{Name: notify.ConfirmEmail, To: email, OTP: code})
	m.logger.Info("account email changed", zap.String("account_id", acc.ID.Hex()))
	return nil
}
