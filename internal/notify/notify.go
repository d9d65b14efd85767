// Package notify delivers family invitations by e-mail.
package notify

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"text/template"
)

// Invite is one invitation to join a family by code.
type Invite struct {
	To         string
	FamilyName string
	Code       string
	InvitedBy  string
	// JoinURL is a deep link that pre-fills the code.
	JoinURL string
}

// Mailer sends invitations. Implementations must be safe for concurrent use.
type Mailer interface {
	SendInvite(ctx context.Context, inv Invite) error
}

const subjectTmpl = `{{.InvitedBy}} invited you to join {{.FamilyName}} on Chore Tracker`

const textTmpl = `Hi!

{{.InvitedBy}} would like you to join the family "{{.FamilyName}}" on Chore Tracker.

Your family code is: {{.Code}}

Open the app, choose "Join a family" and enter the code, or follow this link:
{{.JoinURL}}
`

const htmlTmpl = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <p>Hi!</p>
  <p>{{.InvitedBy}} would like you to join the family <strong>{{.FamilyName}}</strong> on Chore Tracker.</p>
  <p style="font-size: 28px; letter-spacing: 4px; font-weight: bold;">{{.Code}}</p>
  <p><a href="{{.JoinURL}}">Join {{.FamilyName}}</a></p>
</body>
</html>
`

var (
	subject  = template.Must(template.New("subject").Parse(subjectTmpl))
	textBody = template.Must(template.New("text").Parse(textTmpl))
	htmlBody = htmltemplate.Must(htmltemplate.New("html").Parse(htmlTmpl))
)

type message struct {
	Subject string
	Text    string
	HTML    string
}

// render fills the three templates. html/template escapes the family name
// and inviter, which are user input.
func render(inv Invite) (message, error) {
	var s, t, h bytes.Buffer
	if err := subject.Execute(&s, inv); err != nil {
		return message{}, fmt.Errorf("notify: rendering subject: %w", err)
	}
	if err := textBody.Execute(&t, inv); err != nil {
		return message{}, fmt.Errorf("notify: rendering text body: %w", err)
	}
	if err := htmlBody.Execute(&h, inv); err != nil {
		return message{}, fmt.Errorf("notify: rendering html body: %w", err)
	}
	return message{Subject: s.String(), Text: t.String(), HTML: h.String()}, nil
}

// LogMailer writes invitations to the log instead of sending them. It is
// used whenever SES is not configured.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendInvite(ctx context.Context, inv Invite) error {
	msg, err := render(inv)
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "invite e-mail not sent (no mail transport configured)",
		slog.String("to", inv.To),
		slog.String("subject", msg.Subject),
		slog.String("code", inv.Code),
	)
	return nil
}
