// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package mailer implements [notify.Sender] over SMTP (go-mail) and a logging
// fallback for environments without a mail server.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	mail "github.com/go-mail/mail"

	"github.com/taibuivan/identity/internal/platform/config"
	"github.com/taibuivan/identity/internal/platform/notify"
)

// TLS modes accepted by [SMTPSender].
const (
	TLSModeAuto = "auto"
	TLSModeSSL  = "ssl"
	TLSModeNone = "none"
)

// SMTPSender delivers messages as multipart text/HTML email.
type SMTPSender struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	TLSMode  string
}

// NewSMTPSender builds a sender from the SMTP configuration group.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	mode := cfg.TLSMode
	if mode == "" {
		mode = TLSModeAuto
	}
	return &SMTPSender{
		Host:     cfg.Host,
		Port:     cfg.Port,
		From:     cfg.From,
		Username: cfg.Username,
		Password: cfg.Password,
		TLSMode:  mode,
	}
}

// buildMessage prefers multipart/alternative (text + html).
func (sender *SMTPSender) buildMessage(message notify.Message) *mail.Message {
	msg := mail.NewMessage()
	msg.SetHeader("From", sender.From)
	msg.SetHeader("To", message.To)
	msg.SetHeader("Subject", message.Subject)

	if message.TextBody != "" {
		msg.SetBody("text/plain", message.TextBody)
	}
	if message.HTMLBody != "" {
		if message.TextBody == "" {
			msg.SetBody("text/html", message.HTMLBody)
		} else {
			msg.AddAlternative("text/html", message.HTMLBody)
		}
	}

	return msg
}

func (sender *SMTPSender) dialer() *mail.Dialer {
	dialer := mail.NewDialer(sender.Host, sender.Port, sender.Username, sender.Password)
	dialer.TLSConfig = &tls.Config{ServerName: sender.Host, MinVersion: tls.VersionTLS12}

	switch sender.TLSMode {
	case TLSModeSSL:
		dialer.SSL = true
	case TLSModeNone:
		dialer.StartTLSPolicy = mail.NoStartTLS
	default:
		// auto: STARTTLS when the server offers it
	}

	return dialer
}

// Send performs one delivery attempt. Retries belong to the dispatcher.
func (sender *SMTPSender) Send(ctx context.Context, message notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := sender.dialer().DialAndSend(sender.buildMessage(message)); err != nil {
		return fmt.Errorf("mailer_smtp_send_failed: %w", err)
	}

	return nil
}

// LogSender writes messages to the logger instead of sending them. Development only.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs the message, bodies included so links can be followed locally.
func (sender *LogSender) Send(ctx context.Context, message notify.Message) error {
	sender.Logger.InfoContext(ctx, "mailer_message_logged",
		slog.String("kind", message.Kind),
		slog.String("to", message.To),
		slog.String("subject", message.Subject),
		slog.String("text", message.TextBody),
	)
	return nil
}

// New returns an SMTP sender when a host is configured, otherwise a [LogSender].
func New(cfg config.SMTPConfig, logger *slog.Logger) notify.Sender {
	if cfg.Host == "" {
		logger.Warn("mailer_smtp_disabled", slog.String("fallback", "log"))
		return &LogSender{Logger: logger}
	}
	return NewSMTPSender(cfg)
}
