// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/streamrec/internal/flv"
	"github.com/ManuGH/streamrec/internal/flv/flvtest"
	"github.com/ManuGH/streamrec/internal/pipeline"
)

func pathIn(dir string) pipeline.PathFunc {
	return func(i int, _ time.Time) (string, error) {
		return filepath.Join(dir, fmt.Sprintf("seg-%03d.flv", i)), nil
	}
}

// liveStream builds n video frames (keyframe every gop) interleaved with audio.
func liveStream(n, gop, frameSize int) []*flv.Tag {
	tags := []*flv.Tag{
		flvtest.Script(0, flv.Property{Key: "encoder", Value: "test"}, flv.Property{Key: "duration", Value: 0.0}),
		flvtest.AVCSequenceHeader(0, 1920, 1080),
		flvtest.AudioSequenceHeader(0),
	}
	for i := 0; i < n; i++ {
		payload := bytes.Repeat([]byte{byte(i)}, frameSize)
		tags = append(tags,
			flvtest.VideoFrame(uint32(i*40), i%gop == 0, payload),
			flvtest.AudioFrame(uint32(i*40+20), []byte{byte(i), 0x21}))
	}
	return tags
}

func payloadOf(tags []*flv.Tag) int64 {
	var n int64
	for _, t := range tags {
		n += int64(len(t.Data))
	}
	return n
}

type segmentContent struct {
	meta  flv.ECMAArray
	tags  []*flv.Tag
	media []*flv.Tag
}

// readSegment checks that path is a complete, self-consistent FLV file.
func readSegment(t *testing.T, path string) segmentContent {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	r := flv.NewReader(bytes.NewReader(raw))
	_, err = r.ReadHeader()
	require.NoError(t, err)

	var c segmentContent
	for {
		tag, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		c.tags = append(c.tags, tag)
	}
	require.Zero(t, r.BackPointerMismatches)
	require.GreaterOrEqual(t, len(c.tags), 2)

	name, v, err := flv.ParseScriptData(c.tags[0].Data)
	require.NoError(t, err)
	require.Equal(t, "onMetaData", name)
	c.meta = v.(flv.ECMAArray)
	size, _ := c.meta.Get("filesize")
	assert.Equal(t, float64(len(raw)), size)

	last := c.tags[len(c.tags)-1]
	h, err := flv.ParseVideoTagHeader(last.Data)
	require.NoError(t, err)
	assert.Equal(t, flv.VideoPacketEndOfSequence, h.PacketType, "segment must end with end-of-sequence")

	var prev uint32
	for _, tag := range c.tags[1 : len(c.tags)-1] {
		assert.GreaterOrEqual(t, tag.Timestamp, prev)
		prev = tag.Timestamp
		if tag.IsAudio() {
			if ah, _ := flv.ParseAudioTagHeader(tag.Data); ah.IsSequenceHeader() {
				continue
			}
		}
		if tag.IsVideo() {
			if vh, _ := flv.ParseVideoTagHeader(tag.Data); vh.IsSequenceHeader() {
				continue
			}
		}
		c.media = append(c.media, tag)
	}
	dur, _ := c.meta.Get("duration")
	assert.InDelta(t, float64(prev)/1000, dur, 0.001)
	return c
}

func TestRunSplitsAtSizeLimit(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	dir := t.TempDir()
	in := liveStream(60, 10, 1000)

	var mu sync.Mutex
	var notified []int
	res, err := pipeline.Run(context.Background(), bytes.NewReader(flvtest.Stream(in...)), pipeline.Options{
		Path:    pathIn(dir),
		MaxSize: 8000,
		OnSegment: func(s pipeline.Segment) {
			mu.Lock()
			notified = append(notified, s.Index)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(res.Segments), 2)

	var payload int64
	for i, seg := range res.Segments {
		assert.Equal(t, i, seg.Index)
		assert.Equal(t, flv.CodecMetadata{Codec: flv.VideoCodecAVC, Width: 1920, Height: 1080}, seg.Metadata)
		payload += seg.PayloadBytes

		st, err := os.Stat(seg.Path)
		require.NoError(t, err)
		assert.Equal(t, st.Size(), seg.Size)

		c := readSegment(t, seg.Path)
		require.NotEmpty(t, c.media)
		first, err := flv.ParseVideoTagHeader(c.media[0].Data)
		require.NoError(t, err)
		assert.True(t, first.IsKeyframe(), "segment %d must start on a keyframe", i)
		assert.Zero(t, c.media[0].Timestamp)
	}
	assert.Equal(t, payloadOf(in), payload)
	assert.Equal(t, int64(len(in)), res.Tags)

	mu.Lock()
	defer mu.Unlock()
	for i, idx := range notified {
		assert.Equal(t, i, idx)
	}
	assert.Len(t, notified, len(res.Segments))

	parts, _ := filepath.Glob(filepath.Join(dir, "*"+pipeline.PartSuffix))
	assert.Empty(t, parts)
}

func TestRunSplitsAtDuration(t *testing.T) {
	dir := t.TempDir()
	in := liveStream(100, 25, 10) // 4s at 25fps, keyframe every second

	res, err := pipeline.Run(context.Background(), bytes.NewReader(flvtest.Stream(in...)), pipeline.Options{
		Path:        pathIn(dir),
		MaxDuration: 1500 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, 1980*time.Millisecond, res.Segments[0].Duration)
}

func TestRunTimestampResetContinuesClock(t *testing.T) {
	dir := t.TempDir()
	in := []*flv.Tag{flvtest.AVCSequenceHeader(0, 1920, 1080)}
	// 4s of video, then the encoder restarts its clock at zero for another 4s.
	for round := 0; round < 2; round++ {
		for i := 0; i < 100; i++ {
			in = append(in, flvtest.VideoFrame(uint32(i*40), i%25 == 0, []byte{byte(round), byte(i)}))
		}
	}

	res, err := pipeline.Run(context.Background(), bytes.NewReader(flvtest.Stream(in...)), pipeline.Options{
		Path:        pathIn(dir),
		MaxDuration: 6 * time.Second,
	})
	require.NoError(t, err)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, 6960*time.Millisecond, res.Segments[0].Duration)
	assert.Equal(t, 960*time.Millisecond, res.Segments[1].Duration)

	frames := 0
	for _, seg := range res.Segments {
		c := readSegment(t, seg.Path)
		for i := 1; i < len(c.media); i++ {
			assert.Greater(t, c.media[i].Timestamp, c.media[i-1].Timestamp, "segment %d tag %d", seg.Index, i)
		}
		frames += len(c.media)
	}
	assert.Equal(t, 200, frames)

	// The first post-reset frame lands one frame interval after the last one.
	first := readSegment(t, res.Segments[0].Path)
	assert.Equal(t, uint32(3960), first.media[99].Timestamp)
	assert.Equal(t, uint32(4000), first.media[100].Timestamp)
}

func TestRunSmallBackstepIsClamped(t *testing.T) {
	dir := t.TempDir()
	in := []*flv.Tag{
		flvtest.AVCSequenceHeader(0, 1920, 1080),
		flvtest.VideoFrame(1000, true, []byte{1}),
		flvtest.VideoFrame(1040, false, []byte{2}),
		flvtest.AudioFrame(1020, []byte{3, 0x21}),
		flvtest.VideoFrame(1080, false, []byte{4}),
	}

	res, err := pipeline.Run(context.Background(), bytes.NewReader(flvtest.Stream(in...)), pipeline.Options{Path: pathIn(dir)})
	require.NoError(t, err)
	require.Len(t, res.Segments, 1)

	c := readSegment(t, res.Segments[0].Path)
	require.Len(t, c.media, 4)
	got := make([]uint32, 0, len(c.media))
	for _, tag := range c.media {
		got = append(got, tag.Timestamp)
	}
	assert.Equal(t, []uint32{0, 40, 40, 80}, got)
}

func TestRunForcesCutOnResolutionChange(t *testing.T) {
	dir := t.TempDir()
	in := []*flv.Tag{
		flvtest.AVCSequenceHeader(0, 1920, 1080),
		flvtest.VideoFrame(0, true, []byte{1}),
		flvtest.VideoFrame(40, false, []byte{2}),
		flvtest.VideoFrame(80, false, []byte{3}),
		flvtest.AVCSequenceHeader(120, 1280, 720),
		flvtest.VideoFrame(120, true, []byte{4}),
		flvtest.VideoFrame(160, false, []byte{5}),
	}

	res, err := pipeline.Run(context.Background(), bytes.NewReader(flvtest.Stream(in...)), pipeline.Options{Path: pathIn(dir)})
	require.NoError(t, err)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, flv.CodecMetadata{Codec: flv.VideoCodecAVC, Width: 1920, Height: 1080}, res.Segments[0].Metadata)
	assert.Equal(t, flv.CodecMetadata{Codec: flv.VideoCodecAVC, Width: 1280, Height: 720}, res.Segments[1].Metadata)
	assert.Equal(t, flv.CodecMetadata{Codec: flv.VideoCodecAVC, Width: 1280, Height: 720}, res.Metadata)

	first := readSegment(t, res.Segments[0].Path)
	assert.Len(t, first.media, 3)

	second := readSegment(t, res.Segments[1].Path)
	require.Len(t, second.media, 2)
	assert.Equal(t, []byte{4}, second.media[0].Data[9:])
	w, _ := second.meta.Get("width")
	assert.Equal(t, 1280.0, w)
	// The replayed header is the new one.
	m, err := flv.ParseVideoSequenceHeader(second.tags[1].Data)
	require.NoError(t, err)
	assert.Equal(t, 720, m.Height)
}

func TestRunCancellationLeavesValidSegment(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	dir := t.TempDir()
	in := liveStream(5, 5, 64)

	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type out struct {
		res pipeline.Result
		err error
	}
	done := make(chan out, 1)
	go func() {
		res, err := pipeline.Run(ctx, pr, pipeline.Options{Path: pathIn(dir)})
		done <- out{res, err}
	}()

	_, err := pw.Write(flvtest.Stream(in...))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		parts, _ := filepath.Glob(filepath.Join(dir, "*"+pipeline.PartSuffix))
		return len(parts) == 1
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	var o out
	select {
	case o = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}
	assert.ErrorIs(t, o.err, context.Canceled)
	require.Len(t, o.res.Segments, 1)

	c := readSegment(t, o.res.Segments[0].Path)
	written := in[3:]
	require.LessOrEqual(t, len(c.media), len(written))
	for i, tag := range c.media {
		assert.Equal(t, written[i].Data, tag.Data, "tag %d is not a prefix of the input", i)
	}
	_ = pw.Close()
}

func TestRunNoSegments(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"header only", flvtest.Stream()},
		{"headers without media", flvtest.Stream(flvtest.Script(0), flvtest.AVCSequenceHeader(0, 1280, 720))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			res, err := pipeline.Run(context.Background(), bytes.NewReader(tt.data), pipeline.Options{Path: pathIn(dir)})
			assert.ErrorIs(t, err, pipeline.ErrNoSegments)
			assert.Empty(t, res.Segments)
			entries, _ := os.ReadDir(dir)
			assert.Empty(t, entries)
		})
	}
}

func TestRunFramingErrorKeepsClosedSegments(t *testing.T) {
	dir := t.TempDir()
	in := liveStream(20, 5, 100)
	raw := flvtest.Stream(in...)
	raw = raw[:len(raw)-10]

	res, err := pipeline.Run(context.Background(), bytes.NewReader(raw), pipeline.Options{Path: pathIn(dir), MaxSize: 600})
	require.ErrorIs(t, err, flv.ErrTruncated)
	require.NotEmpty(t, res.Segments)
	for _, seg := range res.Segments {
		readSegment(t, seg.Path)
	}
}

func TestRunNotFLV(t *testing.T) {
	_, err := pipeline.Run(context.Background(), bytes.NewReader([]byte("#EXTM3U\n#EXT-X-VERSION:3\n")), pipeline.Options{Path: pathIn(t.TempDir())})
	assert.ErrorIs(t, err, flv.ErrNotFLV)
}

func TestRunDuplicateFilter(t *testing.T) {
	dir := t.TempDir()
	in := liveStream(4, 2, 10)
	dup := append([]*flv.Tag{}, in[:4]...)
	dup = append(dup, in[3].Clone())
	dup = append(dup, in[4:]...)

	res, err := pipeline.Run(context.Background(), bytes.NewReader(flvtest.Stream(dup...)), pipeline.Options{
		Path:            pathIn(dir),
		DuplicateFilter: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Duplicates)
	c := readSegment(t, res.Segments[0].Path)
	assert.Len(t, c.media, 8)
}

func TestRunReportsProgress(t *testing.T) {
	var mu sync.Mutex
	var last pipeline.Progress
	_, err := pipeline.Run(context.Background(), bytes.NewReader(flvtest.Stream(liveStream(10, 5, 100)...)), pipeline.Options{
		Path:          pathIn(t.TempDir()),
		StatsInterval: time.Millisecond,
		OnProgress: func(p pipeline.Progress) {
			mu.Lock()
			last = p
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, last.Bytes)
	assert.Equal(t, 1, last.Segments)
}
