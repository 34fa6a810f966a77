package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"go.uber.org/zap"

	"socialhub/internal/metrics"
)

var codeTemplate = template.Must(template.New("code").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background-color: #f4f4f4; padding: 24px;">
  <div style="max-width: 480px; margin: auto; background: #ffffff; padding: 24px; border-radius: 8px;">
    <h2 style="color: #630E2B;">{{.Title}}</h2>
    <p>{{.Intro}}</p>
    <p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">{{.OTP}}</p>
    {{if .Expiry}}<p>This code expires in {{.Expiry}}.</p>{{end}}
    <hr>
    <p><small>Sent from {{.App}}</small></p>
  </div>
</body>
</html>`))

type codeView struct {
	Title  string
	Intro  string
	OTP    string
	Expiry string
	App    string
}

var codeEvents = map[Name]struct {
	subject string
	view    codeView
}{
	ConfirmEmail:     {"Confirm-Email", codeView{Title: "Confirm your email", Intro: "Use this code to confirm your email address."}},
	ResetPassword:    {"Reset Code", codeView{Title: "Reset your password", Intro: "Use this code to reset your password."}},
	TwoFactorSetup:   {"Two-Factor Setup", codeView{Title: "Enable two-factor authentication", Intro: "Use this code to finish the two-factor setup.", Expiry: "10 minutes"}},
	TwoFactorDisable: {"Disable Two-Factor", codeView{Title: "Disable two-factor authentication", Intro: "Use this code to turn off two-factor authentication.", Expiry: "10 minutes"}},
}

// Worker renders events and hands them to a Mailer.
type Worker struct {
	mailer Mailer
	app    string
	logger *zap.Logger
}

// NewWorker returns a Handler sending through mailer.
func NewWorker(mailer Mailer, app string, logger *zap.Logger) *Worker {
	return &Worker{mailer: mailer, app: app, logger: logger}
}

// Render returns the subject and HTML body of e.
func (w *Worker) Render(e Event) (string, string, error) {
	if e.Name == SendCustomEmail {
		return e.Subject, e.HTML, nil
	}
	spec, ok := codeEvents[e.Name]
	if !ok {
		return "", "", fmt.Errorf("unknown notification %q", e.Name)
	}
	view := spec.view
	view.OTP = e.OTP
	view.App = w.app
	var buf bytes.Buffer
	if err := codeTemplate.Execute(&buf, view); err != nil {
		return "", "", fmt.Errorf("render %s: %w", e.Name, err)
	}
	subject := spec.subject
	if e.Subject != "" {
		subject = e.Subject
	}
	return subject, buf.String(), nil
}

func (w *Worker) Handle(ctx context.Context, e Event) error {
	subject, body, err := w.Render(e)
	if err == nil {
		err = w.mailer.Send(ctx, e.To, subject, body)
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	metrics.NotificationsTotal.WithLabelValues(string(e.Name), outcome).Inc()
	if err == nil {
		w.logger.Debug("notification sent", zap.String("event", string(e.Name)))
	}
	return err
}

var customTemplate = template.Must(template.New("custom").Parse(`<div>
  <h2>{{.Subject}}</h2>
  <p>{{.Message}}</p>
  {{if .Tags}}<div><strong>Tags:</strong> {{range $i, $t := .Tags}}{{if $i}}, {{end}}{{$t}}{{end}}</div>{{end}}
  <hr>
  <p><small>Sent from {{.App}}</small></p>
</div>`))

// RenderCustom renders an admin-authored message. Subject, message and tags are escaped.
func RenderCustom(app, subject, message string, tags []string) (string, error) {
	var buf bytes.Buffer
	err := customTemplate.Execute(&buf, struct {
		App, Subject, Message string
		Tags                  []string
	}{app, subject, message, tags})
	if err != nil {
		return "", fmt.Errorf("render custom email: %w", err)
	}
	return buf.String(), nil
}
