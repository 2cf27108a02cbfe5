// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ffmpeg

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamrec/internal/engine"
)

const progressBlocks = `frame=120
fps=30.00
bitrate=2500.5kbits/s
total_size=1048576
out_time_us=4000000
out_time_ms=4000000
out_time=00:00:04.000000
dup_frames=0
speed=1.01x
progress=continue
bitrate=N/A
total_size=2097152
out_time_us=8500000
out_time=00:00:08.500000
speed=N/A
progress=end
`

func TestProgressParser_Blocks(t *testing.T) {
	var p ProgressParser
	var snaps []engine.Progress
	for _, line := range strings.Split(progressBlocks, "\n") {
		if snap, ok := p.Feed(line); ok {
			snaps = append(snaps, snap)
		}
	}
	require.Len(t, snaps, 2)

	assert.Equal(t, int64(1048576), snaps[0].Bytes)
	assert.Equal(t, 4*time.Second, snaps[0].OutTime)
	assert.InDelta(t, 2500500, snaps[0].Bitrate, 0.1)
	assert.InDelta(t, 1.01, snaps[0].Speed, 1e-9)

	assert.Equal(t, int64(2097152), snaps[1].Bytes)
	assert.Equal(t, 8500*time.Millisecond, snaps[1].OutTime)
	assert.Zero(t, snaps[1].Bitrate)
	assert.Zero(t, snaps[1].Speed)

	assert.True(t, p.Ended())
	assert.Equal(t, snaps[1], p.Last())
}

func TestProgressParser_OutTimeFallback(t *testing.T) {
	var p ProgressParser
	p.Feed("out_time=01:02:03.500000")
	snap, ok := p.Feed("progress=continue")
	require.True(t, ok)
	assert.Equal(t, time.Hour+2*time.Minute+3500*time.Millisecond, snap.OutTime)
	assert.False(t, p.Ended())
}

func TestProgressParser_IgnoresNoise(t *testing.T) {
	var p ProgressParser
	for _, line := range []string{"", "garbage", "total_size=-5", "out_time_us=abc"} {
		_, ok := p.Feed(line)
		assert.False(t, ok, line)
	}
	snap, ok := p.Feed("progress=continue")
	require.True(t, ok)
	assert.Equal(t, engine.Progress{}, snap)
}

func TestParseBitrate(t *testing.T) {
	assert.InDelta(t, 800, parseBitrate("800bits/s"), 0)
	assert.InDelta(t, 1.5e6, parseBitrate("1.5Mbits/s"), 0)
	assert.Zero(t, parseBitrate("N/A"))
}
