package auth

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"socialhub/internal/apperr"
	"socialhub/internal/models"
	"socialhub/internal/notify"
)

// LogoutFlag selects which sessions a credential change invalidates.
type LogoutFlag string

const (
	// LogoutOnly revokes the current token.
	LogoutOnly LogoutFlag = "only"
	// LogoutAll invalidates every token issued before now.
	LogoutAll LogoutFlag = "all"
)

const invalidResetAccount = "Invalid account due to one of the following reasons: account not registered, not verified, or invalid provider"

func resetFilter(email string) bson.M {
	return bson.M{
		"email":            email,
		"provider":         models.ProviderSystem,
		"resetPasswordOtp": bson.M{"$exists": true},
	}
}

// SendForgotCode emails a password reset code to a confirmed local account.
func (m *Manager) SendForgotCode(ctx context.Context, email string) (err error) {
	defer func() { m.observe("send_forgot_code", err) }()

	acc, err := m.accounts.FindOne(ctx, bson.M{
		"email":     email,
		"provider":  models.ProviderSystem,
		"confirmAt": bson.M{"$exists": true},
	})
	if isMissing(err) {
		return apperr.NotFound(invalidResetAccount)
	}
	if err != nil {
		return err
	}

	code, digest, err := m.issueCode(ctx)
	if err != nil {
		return err
	}
	res, err := m.accounts.UpdateOne(ctx, bson.M{
		"_id":       acc.ID,
		"provider":  models.ProviderSystem,
		"confirmAt": bson.M{"$exists": true},
	}, bson.M{"$set": bson.M{"resetPasswordOtp": digest}})
	if err != nil {
		return err
	}
	if res.Matched == 0 {
		return apperr.BadRequest("Fail to send the reset code")
	}

	m.notifier.Publish(ctx, notify.Event{Name: notify.ResetPassword, To: email, OTP: code})
	return nil
}

func (m *Manager) checkResetCode(ctx context.Context, email, code string) (*models.Account, error) {
	acc, err := m.accounts.FindOne(ctx, resetFilter(email))
	if isMissing(err) {
		return nil, apperr.NotFound(invalidResetAccount)
	}
	if err != nil {
		return nil, err
	}
	if !m.hasher.Verify(ctx, code, acc.ResetPasswordOTP) {
		return nil, apperr.Conflict("Invalid or expired OTP")
	}
	return acc, nil
}

// VerifyForgotPassword checks a reset code without consuming it.
func (m *Manager) VerifyForgotPassword(ctx context.Context, email, code string) (err error) {
	defer func() { m.observe("verify_forgot_password", err) }()

	_, err = m.checkResetCode(ctx, email, code)
	return err
}

// ResetForgotPassword consumes a reset code, replaces the password and
// invalidates every token issued before the reset.
func (m *Manager) ResetForgotPassword(ctx context.Context, email, code, password string) (err error) {
	defer func() { m.observe("reset_forgot_password", err) }()

	acc, err := m.checkResetCode(ctx, email, code)
	if err != nil {
		return err
	}
	digest, err := m.hasher.Hash(ctx, password)
	if err != nil {
		return err
	}

	filter := resetFilter(email)
	filter["_id"] = acc.ID
	filter["resetPasswordOtp"] = acc.ResetPasswordOTP
	res, err := m.accounts.UpdateOne(ctx, filter, bson.M{
		"$set":   bson.M{"password": digest, "changeCredentialTime": m.now()},
		"$unset": bson.M{"resetPasswordOtp": 1},
	})
	if err != nil {
		return err
	}
	if res.Matched == 0 {
		// A newer code was issued between the check and the write.
		return apperr.Conflict("Invalid or expired OTP")
	}
	m.logger.Info("password reset", zap.String("account_id", acc.ID.Hex()))
	return nil
}

// UpdatePassword changes the password of the session's account. Reusing the
// current password or any retained previous one is rejected.
func (m *Manager) UpdatePassword(ctx context.Context, sess *Session, oldPassword, password string, flag LogoutFlag) (err error) {
	defer func() { m.observe("update_password", err) }()

	acc := sess.Account
	if !m.hasher.Verify(ctx, oldPassword, acc.Password) {
		return apperr.BadRequest("Invalid old password")
	}
	for _, previous := range append([]string{acc.Password}, acc.OldPasswords...) {
		if m.hasher.Verify(ctx, password, previous) {
			return apperr.BadRequest("This password was used before")
		}
	}
	digest, err := m.hasher.Hash(ctx, password)
	if err != nil {
		return err
	}

	set := bson.M{"password": digest}
	if flag == LogoutAll {
		set["changeCredentialTime"] = m.now()
	}
	_, err = m.accounts.FindOneAndUpdate(ctx, bson.M{"_id": acc.ID, "password": acc.Password}, bson.M{
		"$set":  set,
		"$push": bson.M{"oldPasswords": acc.Password},
	})
	if isMissing(err) {
		return apperr.NotFound("User not found")
	}
	if err != nil {
		return err
	}
	// The current session ends only once the new password is stored.
	if flag == LogoutOnly {
		return m.tokens.CreateRevokeToken(ctx, sess.Claims)
	}
	return nil
}
