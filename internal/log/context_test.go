// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithContext_AddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)

	ctx := ContextWithStreamer(context.Background(), "alice", "douyin")
	ctx = ContextWithSessionID(ctx, "sess-1")

	enriched := WithContext(ctx, l)
	enriched.Info().Msg("hello")

	var fields map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	assert.Equal(t, "alice", fields[FieldStreamer])
	assert.Equal(t, "douyin", fields[FieldPlatform])
	assert.Equal(t, "sess-1", fields[FieldSessionID])
}

func TestWithContext_NoFieldsReturnsSameLogger(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)

	enriched := WithContext(context.Background(), l)
	enriched.Info().Msg("plain")

	var fields map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	_, ok := fields[FieldStreamer]
	assert.False(t, ok)
}

func TestConfigure_ServiceField(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "unit", Version: "v0"})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithComponent("test")
	l.Info().Msg("configured")

	var fields map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	assert.Equal(t, "unit", fields["service"])
	assert.Equal(t, "v0", fields["version"])
	assert.Equal(t, "test", fields[FieldComponent])
}
