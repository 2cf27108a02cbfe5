// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamrec/internal/engine"
	"github.com/ManuGH/streamrec/internal/pipeline"
)

var startedAt = time.Date(2024, 3, 5, 21, 4, 9, 0, time.UTC)

func TestNamer_RendersPlaceholdersAndTime(t *testing.T) {
	dir := t.TempDir()
	n := engine.Namer{Dir: dir, Template: "{platform}/{streamer}-%Y%m%d-%H%M%S-{index}"}

	got, err := n.Path(engine.NameFields{Streamer: "alice", Platform: "twitch"}, 3, startedAt, ".flv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "twitch", "alice-20240305-210409-3.flv"), got)
}

func TestNamer_SanitizesFields(t *testing.T) {
	dir := t.TempDir()
	n := engine.Namer{Dir: dir, Template: "{streamer} {title}"}

	got, err := n.Path(engine.NameFields{Streamer: "a/b:c", Title: "100% été <live>?"}, 0, startedAt, ".ts")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a_b_c 100% été _live__.ts"), got)
}

func TestNamer_DefaultTemplate(t *testing.T) {
	dir := t.TempDir()
	got, err := engine.Namer{Dir: dir}.Path(engine.NameFields{Streamer: "bob", Title: "chat"}, 0, startedAt, ".flv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bob", "bob-2024-03-05-21-04-09-chat.flv"), got)
}

func TestNamer_UniqueSuffix(t *testing.T) {
	dir := t.TempDir()
	n := engine.Namer{Dir: dir, Template: "{streamer}"}
	fields := engine.NameFields{Streamer: "carol"}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "carol.flv"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "carol (1).flv"+pipeline.PartSuffix), []byte("x"), 0o644))

	got, err := n.Path(fields, 0, startedAt, ".flv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "carol (2).flv"), got)
}

func TestNamer_EmptyRenderIsInvalidConfig(t *testing.T) {
	n := engine.Namer{Dir: t.TempDir(), Template: "{title}"}
	_, err := n.Path(engine.NameFields{Streamer: "dave"}, 0, startedAt, ".flv")
	require.ErrorIs(t, err, engine.ErrInvalidConfig)
}

func TestNamer_PathTraversalIsDropped(t *testing.T) {
	dir := t.TempDir()
	n := engine.Namer{Dir: dir, Template: "../{streamer}/./x"}
	got, err := n.Path(engine.NameFields{Streamer: ".."}, 0, startedAt, ".flv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "x.flv"), got)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "é", engine.SanitizeName("é"))
	assert.Equal(t, "a_b", engine.SanitizeName("a|b"))
	assert.Equal(t, "tab", engine.SanitizeName("t\ta\x00b"))
	assert.Equal(t, "name", engine.SanitizeName("  .name. "))
}
