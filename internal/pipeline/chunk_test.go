// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamrec/internal/pipeline"
)

func TestChunkWriterCutsBetweenChunks(t *testing.T) {
	dir := t.TempDir()
	var seen []int
	w, err := pipeline.NewChunkWriter(pipeline.Options{
		Path: func(i int, _ time.Time) (string, error) {
			return filepath.Join(dir, "part-"+string(rune('a'+i))+".ts"), nil
		},
		MaxSize:   100,
		OnSegment: func(s pipeline.Segment) { seen = append(seen, s.Index) },
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, w.WriteChunk(bytes.Repeat([]byte{byte(i)}, 60), 2*time.Second))
	}
	segs, err := w.Close()
	require.NoError(t, err)

	require.Len(t, segs, 3)
	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Equal(t, int64(120), segs[0].Size)
	assert.Equal(t, 4*time.Second, segs[0].Duration)
	assert.Equal(t, int64(60), segs[2].Size)

	raw, err := os.ReadFile(segs[1].Path)
	require.NoError(t, err)
	assert.Equal(t, append(bytes.Repeat([]byte{2}, 60), bytes.Repeat([]byte{3}, 60)...), raw)

	assert.Error(t, w.WriteChunk([]byte{1}, time.Second))
}

func TestChunkWriterCloseWithoutChunks(t *testing.T) {
	w, err := pipeline.NewChunkWriter(pipeline.Options{
		Path: func(int, time.Time) (string, error) { return filepath.Join(t.TempDir(), "x.ts"), nil },
	})
	require.NoError(t, err)
	segs, err := w.Close()
	require.NoError(t, err)
	assert.Empty(t, segs)
}
