// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/taibuivan/identity/internal/platform/notify"
)

// # Message Kinds

const (
	MessageEmailConfirmation = "email_confirmation"
	MessageEmailChange       = "email_change"
	MessagePasswordReset     = "password_reset"
)

// # Templates

type messageTemplate struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

type messageData struct {
	Product     string
	DisplayName string
	Link        string
	NewEmail    string
	ExpiresIn   string
}

const confirmationText = `Hi {{.DisplayName}},

Confirm your {{.Product}} email address by opening the link below:

{{.Link}}

The link expires in {{.ExpiresIn}}. If you did not create an account, ignore this message.
`

const confirmationHTML = `<p>Hi {{.DisplayName}},</p>
<p>Confirm your {{.Product}} email address by opening the link below:</p>
<p><a href="{{.Link}}">Confirm email</a></p>
<p>The link expires in {{.ExpiresIn}}. If you did not create an account, ignore this message.</p>
`

const emailChangeText = `Hi {{.DisplayName}},

Someone asked to use {{.NewEmail}} for a {{.Product}} account. Confirm the change here:

{{.Link}}

The link expires in {{.ExpiresIn}}. If this was not you, ignore this message.
`

const emailChangeHTML = `<p>Hi {{.DisplayName}},</p>
<p>Someone asked to use {{.NewEmail}} for a {{.Product}} account. Confirm the change here:</p>
<p><a href="{{.Link}}">Confirm new email</a></p>
<p>The link expires in {{.ExpiresIn}}. If this was not you, ignore this message.</p>
`

const passwordResetText = `Hi {{.DisplayName}},

Reset your {{.Product}} password by opening the link below:

{{.Link}}

The link expires in {{.ExpiresIn}} and stops working once the password changes.
`

const passwordResetHTML = `<p>Hi {{.DisplayName}},</p>
<p>Reset your {{.Product}} password by opening the link below:</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>The link expires in {{.ExpiresIn}} and stops working once the password changes.</p>
`

// MessageRenderer turns issued tokens into deliverable messages with links.
type MessageRenderer struct {
	baseURL   *url.URL
	product   string
	templates map[string]messageTemplate
}

// NewMessageRenderer parses the templates once. baseURL is the public origin links point at.
func NewMessageRenderer(baseURL, product string) (*MessageRenderer, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("auth: invalid public base url %q", baseURL)
	}

	renderer := &MessageRenderer{
		baseURL:   parsed,
		product:   product,
		templates: map[string]messageTemplate{},
	}

	sources := []struct {
		kind, subject, text, html string
	}{
		{MessageEmailConfirmation, "Confirm your email address", confirmationText, confirmationHTML},
		{MessageEmailChange, "Confirm your new email address", emailChangeText, emailChangeHTML},
		{MessagePasswordReset, "Reset your password", passwordResetText, passwordResetHTML},
	}

	for _, source := range sources {
		text, err := texttemplate.New(source.kind).Parse(source.text)
		if err != nil {
			return nil, fmt.Errorf("auth: parse %s text template: %w", source.kind, err)
		}
		html, err := htmltemplate.New(source.kind).Parse(source.html)
		if err != nil {
			return nil, fmt.Errorf("auth: parse %s html template: %w", source.kind, err)
		}
		renderer.templates[source.kind] = messageTemplate{subject: source.subject, text: text, html: html}
	}

	return renderer, nil
}

// EmailConfirmation renders the confirmation link sent after Register and ResendConfirmation.
func (renderer *MessageRenderer) EmailConfirmation(account *Account, token string, ttl time.Duration) (notify.Message, error) {
	link := renderer.link("/confirm-email", url.Values{
		"account_id": {account.ID},
		"token":      {token},
	})
	return renderer.render(MessageEmailConfirmation, account.Email, account, link, "", ttl)
}

// EmailChange renders the link sent to the requested new address.
func (renderer *MessageRenderer) EmailChange(account *Account, newEmail, token string, ttl time.Duration) (notify.Message, error) {
	link := renderer.link("/confirm-email-change", url.Values{
		"account_id": {account.ID},
		"email":      {newEmail},
		"token":      {token},
	})
	return renderer.render(MessageEmailChange, newEmail, account, link, newEmail, ttl)
}

// PasswordReset renders the reset link sent by ForgotPassword.
func (renderer *MessageRenderer) PasswordReset(account *Account, token string, ttl time.Duration) (notify.Message, error) {
	link := renderer.link("/reset-password", url.Values{
		"email": {account.Email},
		"token": {token},
	})
	return renderer.render(MessagePasswordReset, account.Email, account, link, "", ttl)
}

func (renderer *MessageRenderer) link(path string, query url.Values) string {
	target := *renderer.baseURL
	target.Path = strings.TrimRight(target.Path, "/") + path
	target.RawQuery = query.Encode()
	return target.String()
}

func (renderer *MessageRenderer) render(kind, to string, account *Account, link, newEmail string, ttl time.Duration) (notify.Message, error) {
	tmpl := renderer.templates[kind]

	name := account.DisplayName
	if name == "" {
		name = "there"
	}
	data := messageData{
		Product:     renderer.product,
		DisplayName: name,
		Link:        link,
		NewEmail:    newEmail,
		ExpiresIn:   humanDuration(ttl),
	}

	var text, html bytes.Buffer
	if err := tmpl.text.Execute(&text, data); err != nil {
		return notify.Message{}, fmt.Errorf("auth_render_%s_failed: %w", kind, err)
	}
	if err := tmpl.html.Execute(&html, data); err != nil {
		return notify.Message{}, fmt.Errorf("auth_render_%s_failed: %w", kind, err)
	}

	return notify.Message{
		Kind:     kind,
		To:       to,
		Subject:  tmpl.subject,
		TextBody: text.String(),
		HTMLBody: html.String(),
	}, nil
}

// humanDuration prints whole hours or minutes ("24 hours", "30 minutes").
func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
