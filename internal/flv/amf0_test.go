// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package flv_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamrec/internal/flv"
)

func TestAMF0Values(t *testing.T) {
	when := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	in := flv.Object{
		{Key: "n", Value: 29.97},
		{Key: "b", Value: true},
		{Key: "s", Value: "encoder"},
		{Key: "long", Value: strings.Repeat("x", 70000)},
		{Key: "null", Value: nil},
		{Key: "undef", Value: flv.Undefined{}},
		{Key: "arr", Value: []any{1.0, "two"}},
		{Key: "ecma", Value: flv.ECMAArray{{Key: "k", Value: 2.0}}},
		{Key: "date", Value: when},
	}
	b, err := flv.AppendAMF0(nil, in)
	require.NoError(t, err)

	out, n, err := flv.DecodeAMF0(b)
	require.NoError(t, err)
	assert.Equal(t, len(b), n)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("amf0 mismatch (-want +got):\n%s", diff)
	}
}

func TestAMF0Truncated(t *testing.T) {
	b, err := flv.AppendAMF0(nil, flv.Object{{Key: "width", Value: 1920.0}})
	require.NoError(t, err)
	_, _, err = flv.DecodeAMF0(b[:len(b)-4])
	assert.ErrorIs(t, err, flv.ErrAMF)
}

func TestEncodeOnMetaData(t *testing.T) {
	props := []flv.Property{
		{Key: "duration", Value: 99.0},
		{Key: "width", Value: 1280.0},
		{Key: "encoder", Value: "obs"},
	}
	b, off, err := flv.EncodeOnMetaData(props)
	require.NoError(t, err)

	flv.PutNumber(b, off.Duration, 12.5)
	flv.PutNumber(b, off.FileSize, 4096)

	name, v, err := flv.ParseScriptData(b)
	require.NoError(t, err)
	assert.Equal(t, "onMetaData", name)

	meta, ok := v.(flv.ECMAArray)
	require.True(t, ok)
	want := flv.ECMAArray{
		{Key: "duration", Value: 12.5},
		{Key: "filesize", Value: 4096.0},
		{Key: "width", Value: 1280.0},
		{Key: "encoder", Value: "obs"},
	}
	assert.Equal(t, want, meta)

	w, ok := meta.Get("width")
	assert.True(t, ok)
	assert.Equal(t, 1280.0, w)
}
