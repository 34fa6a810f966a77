package models

import (
	"encoding/json"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is the privilege level stored on an account.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

// Elevated reports whether the role signs its tokens with the system key pair.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Provider tags where an account's identity comes from.
type Provider string

const (
	ProviderSystem Provider = "SYSTEM"
	ProviderGoogle Provider = "google"
)

// Gender of the account holder.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Account represents a registered identity.
type Account struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	FirstName string             `bson:"firstName" json:"firstName"`
	LastName  string             `bson:"lastName" json:"lastName"`
	Email     string             `bson:"email" json:"email"`

	Password        string     `bson:"password,omitempty" json:"-"`
	ConfirmEmailOTP string     `bson:"confirmEmailOtp,omitempty" json:"-"`
	ConfirmAt       *time.Time `bson:"confirmAt,omitempty" json:"confirmAt,omitempty"`

	ResetPasswordOTP     string     `bson:"resetPasswordOtp,omitempty" json:"-"`
	OldPasswords         []string   `bson:"oldPasswords,omitempty" json:"-"`
	ChangeCredentialTime *time.Time `bson:"changeCredentialTime,omitempty" json:"-"`

	TwoFactorSecret     string     `bson:"twoFactorSecret,omitempty" json:"-"`
	TwoFactorOTP        string     `bson:"twoFactorOtp,omitempty" json:"-"`
	TwoFactorOTPExpires *time.Time `bson:"twoFactorOtpExpires,omitempty" json:"-"`
	TwoFactorEnabled    bool       `bson:"twoFactorEnabled,omitempty" json:"twoFactorEnabled"`

	Phone            string   `bson:"phone,omitempty" json:"phone,omitempty"`
	Address          string   `bson:"address,omitempty" json:"address,omitempty"`
	ProfileImage     string   `bson:"profileImage,omitempty" json:"profileImage,omitempty"`
	TempProfileImage string   `bson:"tempProfileImage,omitempty" json:"-"`
	CoverImages      []string `bson:"coverImages,omitempty" json:"coverImages,omitempty"`

	Gender   Gender   `bson:"gender" json:"gender"`
	Role     Role     `bson:"role" json:"role"`
	Provider Provider `bson:"provider" json:"provider"`

	FreezedAt  *time.Time          `bson:"freezedAt,omitempty" json:"freezedAt,omitempty"`
	FreezedBy  *primitive.ObjectID `bson:"freezedBy,omitempty" json:"freezedBy,omitempty"`
	RestoredAt *time.Time          `bson:"restoredAt,omitempty" json:"restoredAt,omitempty"`
	RestoredBy *primitive.ObjectID `bson:"restoredBy,omitempty" json:"restoredBy,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
	Version   int64     `bson:"__v" json:"__v"`
}

// Username joins the first and last name.
func (a *Account) Username() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// SetUsername splits a "first last" value into the name fields.
func (a *Account) SetUsername(value string) {
	first, last, _ := strings.Cut(strings.TrimSpace(value), " ")
	a.FirstName = first
	a.LastName = strings.TrimSpace(last)
}

// BeforeCreate fills defaults for a new document.
func (a *Account) BeforeCreate(now time.Time) {
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	if a.Gender == "" {
		a.Gender = GenderMale
	}
	if a.Role == "" {
		a.Role = RoleUser
	}
	if a.Provider == "" {
		a.Provider = ProviderSystem
	}
	a.CreatedAt = now
	a.UpdatedAt = now
}

// Frozen reports whether the account is soft-deleted.
func (a *Account) Frozen() bool {
	return a.FreezedAt != nil
}

// MarshalJSON adds the username virtual to the encoded document.
func (a Account) MarshalJSON() ([]byte, error) {
	type alias Account
	return json.Marshal(struct {
		alias
		Username string `json:"username"`
	}{alias: alias(a), Username: a.Username()})
}
