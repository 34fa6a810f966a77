package auth

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"socialhub/internal/apperr"
	"socialhub/internal/notify"
	"socialhub/internal/otp"
)

// EnableTwoFactor generates a secret and emails a setup code.
func (m *Manager) EnableTwoFactor(ctx context.Context, sess *Session, password string) (err error) {
	defer func() { m.observe("enable_2fa", err) }()

	acc := sess.Account
	if !m.hasher.Verify(ctx, password, acc.Password) {
		return apperr.BadRequest("Invalid password")
	}
	if acc.TwoFactorEnabled {
		return apperr.BadRequest("Two-factor authentication is already enabled")
	}

	secret, err := m.otp.TwoFactorSecret(acc.Email)
	if err != nil {
		return err
	}
	code, digest, err := m.issueCode(ctx)
	if err != nil {
		return err
	}
	res, err := m.accounts.UpdateOne(ctx, bson.M{
		"_id":              acc.ID,
		"twoFactorEnabled": bson.M{"$ne": true},
	}, bson.M{"$set": bson.M{
		"twoFactorSecret":     secret.Value,
		"twoFactorOtp":        digest,
		"twoFactorOtpExpires": otp.PurposeTwoFactorSetup.Expiry(m.now()),
	}})
	if err != nil {
		return err
	}
	if res.Matched == 0 {
		return apperr.BadRequest("Two-factor authentication is already enabled")
	}

	m.notifier.Publish(ctx, notify.Event{Name: notify.TwoFactorSetup, To: acc.Email, OTP: code})
	return nil
}

// VerifyTwoFactor completes a pending setup.
func (m *Manager) VerifyTwoFactor(ctx context.Context, sess *Session, code string) (err error) {
	defer func() { m.observe("verify_2fa", err) }()

	acc := sess.Account
	if acc.TwoFactorEnabled {
		return apperr.BadRequest("Two-factor authentication is already enabled")
	}
	if acc.TwoFactorOTP == "" || acc.TwoFactorOTPExpires == nil {
		return apperr.BadRequest("No two-factor setup in progress")
	}
	if m.now().After(*acc.TwoFactorOTPExpires) {
		return apperr.BadRequest("OTP expired")
	}
	if !m.hasher.Verify(ctx, code, acc.TwoFactorOTP) {
		return apperr.BadRequest("Invalid OTP")
	}

	res, err := m.accounts.UpdateOne(ctx, bson.M{
		"_id":          acc.ID,
		"twoFactorOtp": acc.TwoFactorOTP,
	}, bson.M{
		"$set":   bson.M{"twoFactorEnabled": true},
		"$unset": bson.M{"twoFactorOtp": 1, "twoFactorOtpExpires": 1},
	})
	if err != nil {
		return err
	}
	if res.Matched == 0 {
		return apperr.BadRequest("Invalid OTP")
	}
	return nil
}

// DisableTwoFactor turns two-factor off when code matches the stored
// disable challenge. Otherwise it emails a fresh challenge and reports
// disabled=false.
func (m *Manager) DisableTwoFactor(ctx context.Context, sess *Session, password, code string) (disabled bool, err error) {
	defer func() { m.observe("disable_2fa", err) }()

	acc := sess.Account
	if !m.hasher.Verify(ctx, password, acc.Password) {
		return false, apperr.BadRequest("Invalid password")
	}
	if !acc.TwoFactorEnabled {
		return false, apperr.BadRequest("Two-factor authentication is not enabled")
	}

	if m.pendingCodeMatches(ctx, acc.TwoFactorOTP, acc.TwoFactorOTPExpires, code) {
		res, err := m.accounts.UpdateOne(ctx, bson.M{
			"_id":          acc.ID,
			"twoFactorOtp": acc.TwoFactorOTP,
		}, bson.M{
			"$set":   bson.M{"twoFactorEnabled": false},
			"$unset": bson.M{"twoFactorSecret": 1, "twoFactorOtp": 1, "twoFactorOtpExpires": 1},
		})
		if err != nil {
			return false, err
		}
		if res.Matched == 1 {
			return true, nil
		}
	}

	fresh, digest, err := m.issueCode(ctx)
	if err != nil {
		return false, err
	}
	_, err = m.accounts.UpdateOne(ctx, byID(acc.ID), bson.M{"$set": bson.M{
		"twoFactorOtp":        digest,
		"twoFactorOtpExpires": otp.PurposeTwoFactorDisable.Expiry(m.now()),
	}})
	if err != nil {
		return false, err
	}
	m.notifier.Publish(ctx, notify.Event{Name: notify.TwoFactorDisable, To: acc.Email, OTP: fresh})
	return false, nil
}

func (m *Manager) pendingCodeMatches(ctx context.Context, digest string, expires *time.Time, code string) bool {
	if code == "" || digest == "" || expires == nil || m.now().After(*expires) {
		return false
	}
	return m.hasher.Verify(ctx, code, digest)
}
