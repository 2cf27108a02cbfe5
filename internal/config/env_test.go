// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHelpers(t *testing.T) {
	t.Setenv("STREAMREC_T_STR", "value")
	t.Setenv("STREAMREC_T_EMPTY", "")
	t.Setenv("STREAMREC_T_INT", "42")
	t.Setenv("STREAMREC_T_BADINT", "4x2")
	t.Setenv("STREAMREC_T_DUR", "90s")
	t.Setenv("STREAMREC_T_YES", "YES")
	t.Setenv("STREAMREC_T_BADBOOL", "maybe")
	t.Setenv("STREAMREC_T_SIZE", "64MiB")

	assert.Equal(t, "value", ParseString("STREAMREC_T_STR", "def"))
	assert.Equal(t, "def", ParseString("STREAMREC_T_EMPTY", "def"))
	assert.Equal(t, "def", ParseString("STREAMREC_T_UNSET", "def"))
	assert.Equal(t, 42, ParseInt("STREAMREC_T_INT", 1))
	assert.Equal(t, 1, ParseInt("STREAMREC_T_BADINT", 1))
	assert.Equal(t, 90*time.Second, ParseDuration("STREAMREC_T_DUR", time.Second))
	assert.True(t, ParseBool("STREAMREC_T_YES", false))
	assert.True(t, ParseBool("STREAMREC_T_BADBOOL", true))
	assert.Equal(t, ByteSize(64<<20), ParseSize("STREAMREC_T_SIZE", 0))
	assert.InDelta(t, 0.5, ParseFloat("STREAMREC_T_UNSET", 0.5), 1e-9)
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want ByteSize
		err  bool
	}{
		{in: "", want: 0},
		{in: "1048576", want: 1 << 20},
		{in: "512MiB", want: 512 << 20},
		{in: "2 GB", want: 2_000_000_000},
		{in: "-5", err: true},
		{in: "huge", err: true},
	}
	for _, tt := range tests {
		got, err := ParseByteSize(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestResolveFFprobeBin(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "/custom/ffprobe", ResolveFFprobeBin("/custom/ffprobe", "/custom/ffmpeg"))
	assert.Equal(t, "", ResolveFFprobeBin("", "ffmpeg"))
	assert.Equal(t, "", ResolveFFprobeBin("", dir+"/ffmpeg"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ffprobe"), []byte("#!/bin/sh\n"), 0o755))
	assert.Equal(t, filepath.Join(dir, "ffprobe"), ResolveFFprobeBin("", filepath.Join(dir, "ffmpeg")))
	assert.Equal(t, "", ResolveFFprobeBin("", filepath.Join(dir, "ffmpeg-6")))
}
