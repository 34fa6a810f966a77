// Package notify carries notification intents from the account flows to the
// mail worker. Publishing never fails from the caller's point of view.
package notify

import "context"

// Name identifies the kind of notification.
type Name string

const (
	ConfirmEmail     Name = "confirmEmail"
	ResetPassword    Name = "resetPassword"
	SendCustomEmail  Name = "sendCustomEmail"
	TwoFactorSetup   Name = "twoFactorSetup"
	TwoFactorDisable Name = "twoFactorDisable"
)

// Event is one notification intent. OTP events carry the plaintext code;
// custom emails carry rendered HTML.
type Event struct {
	Name    Name   `json:"name"`
	To      string `json:"to"`
	OTP     string `json:"otp,omitempty"`
	Subject string `json:"subject,omitempty"`
	HTML    string `json:"html,omitempty"`
}

// Publisher accepts events fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Handler delivers a single event.
type Handler interface {
	Handle(ctx context.Context, e Event) error
}
