// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ctxutil_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"

	"github.com/taibuivan/identity/internal/platform/ctxutil"
	"github.com/taibuivan/identity/internal/platform/sec"
)

/*
TestContext_RequestID verifies that Request IDs can be injected and retrieved.
*/
func TestContext_RequestID(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, ctxutil.GetRequestID(ctx))

	ctx = ctxutil.WithRequestID(ctx, "req-42")
	assert.Equal(t, "req-42", ctxutil.GetRequestID(ctx))
}

func TestContext_TraceID(t *testing.T) {
	assert.Empty(t, ctxutil.GetTraceID(context.Background()))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanContext := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	ctx := trace.ContextWithSpanContext(context.Background(), spanContext)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", ctxutil.GetTraceID(ctx))
}

/*
TestContext_Logger verifies the logger lookup and both fallbacks.
*/
func TestContext_Logger(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	fallback := slog.New(slog.NewTextHandler(io.Discard, nil))

	// 1. Nothing attached
	assert.Equal(t, slog.Default(), ctxutil.GetLogger(ctx))
	assert.Same(t, fallback, ctxutil.GetLoggerOr(ctx, fallback))

	// 2. Attached logger wins over the fallback
	ctx = ctxutil.WithLogger(ctx, logger)
	assert.Same(t, logger, ctxutil.GetLogger(ctx))
	assert.Same(t, logger, ctxutil.GetLoggerOr(ctx, fallback))
}

/*
TestContext_AuthUser verifies that AuthClaims can be stored in context.
*/
func TestContext_AuthUser(t *testing.T) {
	ctx := context.Background()

	assert.Nil(t, ctxutil.GetAuthUser(ctx))
	assert.Empty(t, ctxutil.GetAccountID(ctx))
	assert.Empty(t, ctxutil.GetRole(ctx))

	ctx = ctxutil.WithAuthUser(ctx, &sec.AuthClaims{UserID: "acc-123", Role: string(sec.RoleAdmin)})

	retrieved := ctxutil.GetAuthUser(ctx)
	if assert.NotNil(t, retrieved) {
		assert.Equal(t, "acc-123", retrieved.UserID)
	}
	assert.Equal(t, "acc-123", ctxutil.GetAccountID(ctx))
	assert.Equal(t, sec.RoleAdmin, ctxutil.GetRole(ctx))
}
