// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of capture spans.
const TracerName = "github.com/ManuGH/streamrec/capture"

// Attribute keys shared by capture spans.
const (
	StreamerKey   = "capture.streamer"
	PlatformKey   = "capture.platform"
	SessionIDKey  = "capture.session_id"
	EngineKey     = "capture.engine"
	FormatKey     = "capture.format"
	SegmentsKey   = "capture.segments"
	BytesKey      = "capture.bytes"
	StreamEndKey  = "capture.stream_ended"
	ErrorClassKey = "error.class"
)

// CaptureAttributes describes one capture attempt.
func CaptureAttributes(streamer, platform, sessionID, engine string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if streamer != "" {
		attrs = append(attrs, attribute.String(StreamerKey, streamer))
	}
	if platform != "" {
		attrs = append(attrs, attribute.String(PlatformKey, platform))
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if engine != "" {
		attrs = append(attrs, attribute.String(EngineKey, engine))
	}
	return attrs
}

// StartCapture opens the span of a capture attempt.
func StartCapture(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer(TracerName).Start(ctx, "capture.attempt",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
}

// EndCapture records the outcome of an attempt and ends the span.
func EndCapture(span trace.Span, segments int, bytes int64, streamEnded bool, class string, err error) {
	span.SetAttributes(
		attribute.Int(SegmentsKey, segments),
		attribute.Int64(BytesKey, bytes),
		attribute.Bool(StreamEndKey, streamEnded),
	)
	if err != nil {
		span.SetAttributes(attribute.String(ErrorClassKey, class))
		span.RecordError(err)
		span.SetStatus(codes.Error, class)
	}
	span.End()
}
