// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package validate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_URL(t *testing.T) {
	tests := []struct {
		name  string
		value string
		ok    bool
	}{
		{"valid https", "https://cdn.test/live.flv", true},
		{"empty", "", false},
		{"no host", "https:///x", false},
		{"bad scheme", "rtmp://cdn.test/live", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("url", tt.value, []string{"http", "https"})
			assert.Equal(t, tt.ok, v.IsValid(), v.Errors())
		})
	}
}

func TestValidator_MediaURL(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"https://cdn.test/alice/index.m3u8", true},
		{"http://cdn.test/live.flv?token=1", true},
		{"https://cdn.test/", false},
		{"ftp://cdn.test/live.flv", false},
		{"", false},
	}
	for _, tt := range tests {
		v := New()
		v.MediaURL("mediaUrl", tt.value)
		assert.Equal(t, tt.ok, v.IsValid(), tt.value)
	}
}

func TestValidator_ListenAddr(t *testing.T) {
	for addr, ok := range map[string]bool{
		"":               true,
		":9090":          true,
		"127.0.0.1:9090": true,
		"localhost":      false,
		":99999":         false,
	} {
		v := New()
		v.ListenAddr("listen", addr)
		assert.Equal(t, ok, v.IsValid(), addr)
	}
}

func TestValidator_Directory(t *testing.T) {
	root := t.TempDir()

	v := New()
	v.Directory("dir", filepath.Join(root, "created", "nested"), false)
	require.True(t, v.IsValid())
	info, err := os.Stat(filepath.Join(root, "created", "nested"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	v = New()
	v.Directory("dir", filepath.Join(root, "missing"), true)
	assert.False(t, v.IsValid())

	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	v = New()
	v.Directory("dir", file, false)
	assert.False(t, v.IsValid())
}

func TestValidator_NumericChecks(t *testing.T) {
	v := New()
	v.Range("retries", 3, 1, 10)
	v.Positive("workers", 1)
	v.NonNegative("size", 0)
	v.MinDuration("interval", 0, time.Second, true)
	v.MinDuration("interval", 2*time.Second, time.Second, false)
	require.True(t, v.IsValid())

	v.Range("retries", 11, 1, 10)
	v.Positive("workers", 0)
	v.NonNegative("size", -1)
	v.MinDuration("interval", 500*time.Millisecond, time.Second, true)
	v.OneOf("engine", "gstreamer", []string{"native", "ffmpeg"})
	v.NotEmpty("name", "  ")
	assert.Len(t, v.Errors(), 6)
}

func TestValidator_Err(t *testing.T) {
	v := New()
	assert.NoError(t, v.Err())

	v.Custom("template", "{x}", func(any) error { return errors.New("unknown placeholder") })
	v.AddError("engine", "unknown", "x")

	err := v.Err()
	require.Error(t, err)
	var verr ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Errors(), 2)
	assert.Equal(t, "validation failed for template: unknown placeholder; validation failed for engine: unknown", err.Error())
}

func TestParseLogLevel(t *testing.T) {
	l, err := ParseLogLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, LogLevelDebug, l)

	_, err = ParseLogLevel("verbose")
	assert.ErrorIs(t, err, ErrInvalidLogLevel)
}
