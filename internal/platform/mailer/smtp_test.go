// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mailer

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/identity/internal/platform/config"
	"github.com/taibuivan/identity/internal/platform/notify"
)

/*
TestSMTPSender_BuildMessage verifies headers and multipart bodies.
*/
func TestSMTPSender_BuildMessage(t *testing.T) {
	sender := NewSMTPSender(config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "no-reply@example.com"})

	msg := sender.buildMessage(notify.Message{
		To:       "ada@example.com",
		Subject:  "Confirm your email",
		TextBody: "plain body",
		HTMLBody: "<p>html body</p>",
	})

	var buf bytes.Buffer
	_, err := msg.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.String()
	assert.Contains(t, raw, "To: ada@example.com")
	assert.Contains(t, raw, "From: no-reply@example.com")
	assert.Contains(t, raw, "Subject: Confirm your email")
	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, "plain body")
	assert.Equal(t, TLSModeAuto, sender.TLSMode)
}

/*
TestNew_FallsBackToLogSender verifies that an empty host never dials.
*/
func TestNew_FallsBackToLogSender(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sender := New(config.SMTPConfig{}, logger)
	_, ok := sender.(*LogSender)
	require.True(t, ok)

	assert.NoError(t, sender.Send(context.Background(), notify.Message{To: "ada@example.com"}))

	_, ok = New(config.SMTPConfig{Host: "smtp.example.com"}, logger).(*SMTPSender)
	assert.True(t, ok)
}
