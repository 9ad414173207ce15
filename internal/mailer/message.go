// Package mailer renders and delivers outbound email. Delivery is always best effort.
package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// Message is one rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

var layout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html>
<head>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
    .container { max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #3b82f6; color: white; padding: 20px; text-align: center; border-radius: 8px 8px 0 0; }
    .content { background: #f9fafb; padding: 30px; border-radius: 0 0 8px 8px; }
    .button { display: inline-block; background: #3b82f6; color: white; padding: 12px 30px; text-decoration: none; border-radius: 6px; margin: 20px 0; }
    .footer { text-align: center; margin-top: 20px; color: #6b7280; font-size: 12px; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header"><h1>{{.Heading}}</h1></div>
    <div class="content">{{template "body" .}}</div>
    <div class="footer"><p>&copy; {{.Year}} {{.AppName}}. All rights reserved.</p></div>
  </div>
</body>
</html>
`))

var inviteTmpl = template.Must(template.Must(layout.Clone()).Parse(`{{define "body"}}
<p>Hi there,</p>
<p><strong>{{.InviterName}}</strong> has invited you to join <strong>{{.OrganizationName}}</strong> on {{.AppName}}.</p>
<p>Click the button below to accept the invitation and create your account:</p>
<p style="text-align: center;"><a href="{{.URL}}" class="button">Accept Invitation</a></p>
<p>Or copy and paste this link into your browser:</p>
<p style="word-break: break-all; color: #3b82f6;">{{.URL}}</p>
<p>This invitation will expire in {{.ExpiresIn}}.</p>
<p>If you didn't expect this invitation, you can safely ignore this email.</p>
{{end}}`))

var notificationTmpl = template.Must(template.Must(layout.Clone()).Parse(`{{define "body"}}
<p>Hi {{.RecipientName}},</p>
<p>{{.Message}}</p>
{{if .URL}}<p style="text-align: center;"><a href="{{.URL}}" class="button">Open {{.AppName}}</a></p>{{end}}
{{end}}`))

// Branding is shared by every template.
type Branding struct {
	AppName     string
	FrontendURL string
}

// InviteData fills the invitation email.
type InviteData struct {
	Email            string
	Token            string
	OrganizationName string
	InviterName      string
	TTL              time.Duration
}

// InviteMessage renders the invitation email for d.
func (b Branding) InviteMessage(d InviteData) (Message, error) {
	url := strings.TrimRight(b.FrontendURL, "/") + "/invite/" + d.Token
	inviter := d.InviterName
	if inviter == "" {
		inviter = "Admin"
	}
	html, err := render(inviteTmpl, map[string]any{
		"Heading":          "You're Invited!",
		"AppName":          b.appName(),
		"Year":             time.Now().Year(),
		"InviterName":      inviter,
		"OrganizationName": d.OrganizationName,
		"URL":              url,
		"ExpiresIn":        humanDays(d.TTL),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      d.Email,
		Subject: fmt.Sprintf("You're invited to join %s", d.OrganizationName),
		HTML:    html,
	}, nil
}

// NotificationMessage renders the email copy of an in-app notification.
func (b Branding) NotificationMessage(to, recipientName, title, message string) (Message, error) {
	html, err := render(notificationTmpl, map[string]any{
		"Heading":       title,
		"AppName":       b.appName(),
		"Year":          time.Now().Year(),
		"RecipientName": recipientName,
		"Message":       message,
		"URL":           strings.TrimRight(b.FrontendURL, "/"),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: title, HTML: html}, nil
}

func (b Branding) appName() string {
	if b.AppName == "" {
		return "Task Manager"
	}
	return b.AppName
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("mailer: render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func humanDays(d time.Duration) string {
	days := int(d.Hours() / 24)
	switch {
	case days <= 0:
		return "less than a day"
	case days == 1:
		return "1 day"
	default:
		return fmt.Sprintf("%d days", days)
	}
}
