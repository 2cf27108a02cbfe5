// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	sessionIDKey ctxKey = "session_id"
	streamerKey  ctxKey = "streamer"
	platformKey  ctxKey = "platform"
)

// ContextWithSessionID stores the capture session ID in the context.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// ContextWithStreamer stores the streamer name and platform in the context.
func ContextWithStreamer(ctx context.Context, name, platform string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, streamerKey, name)
	return context.WithValue(ctx, platformKey, platform)
}

// SessionIDFromContext extracts the session ID from context if present.
func SessionIDFromContext(ctx context.Context) string {
	return stringValue(ctx, sessionIDKey)
}

// StreamerFromContext extracts the streamer name from context if present.
func StreamerFromContext(ctx context.Context) string {
	return stringValue(ctx, streamerKey)
}

// PlatformFromContext extracts the platform name from context if present.
func PlatformFromContext(ctx context.Context) string {
	return stringValue(ctx, platformKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithContext enriches the supplied logger with correlation fields from context.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	if v := StreamerFromContext(ctx); v != "" {
		builder = builder.Str(FieldStreamer, v)
		added = true
	}
	if v := PlatformFromContext(ctx); v != "" {
		builder = builder.Str(FieldPlatform, v)
		added = true
	}
	if v := SessionIDFromContext(ctx); v != "" {
		builder = builder.Str(FieldSessionID, v)
		added = true
	}
	if !added {
		return logger
	}
	return builder.Logger()
}

// WithComponentFromContext returns a logger that is annotated with the component
// name and enriched with correlation fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}

// FromContext returns a logger from the context, or the base logger if not present.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		l := Base()
		return &l
	}
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		b := Base()
		return &b
	}
	return l
}
