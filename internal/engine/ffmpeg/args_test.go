// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ffmpeg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArgs_HTTPInput(t *testing.T) {
	args, err := BuildArgs(
		InputSpec{URL: "https://cdn.example/live.flv", UserAgent: "ua/1", Headers: map[string]string{"Referer": "r", "Cookie": "c=1"}},
		OutputSpec{Path: "/out/a.flv.part", Muxer: "flv", MaxDuration: 90 * time.Second, MaxSize: 1 << 20},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "warning", "-nostats", "-progress", "pipe:1", "-y",
		"-rw_timeout", "15000000",
		"-user_agent", "ua/1",
		"-headers", "Cookie: c=1\r\nReferer: r\r\n",
		"-i", "https://cdn.example/live.flv", "-map", "0", "-c", "copy",
		"-t", "90.000",
		"-fs", "1048576",
		"-f", "flv", "/out/a.flv.part",
	}, args)
}

func TestBuildArgs_PipeInput(t *testing.T) {
	args, err := BuildArgs(
		InputSpec{URL: "pipe:0", UserAgent: "ignored"},
		OutputSpec{Path: "/out/b.ts.part", Muxer: "mpegts"},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "warning", "-nostats", "-progress", "pipe:1", "-y",
		"-i", "pipe:0", "-map", "0", "-c", "copy",
		"-f", "mpegts", "/out/b.ts.part",
	}, args)
}

func TestBuildArgs_Validation(t *testing.T) {
	_, err := BuildArgs(InputSpec{}, OutputSpec{Path: "x", Muxer: "flv"})
	assert.Error(t, err)
	_, err = BuildArgs(InputSpec{URL: "pipe:0"}, OutputSpec{Path: "x"})
	assert.Error(t, err)
}

func TestCurlArgs(t *testing.T) {
	got := CurlArgs(InputSpec{URL: "https://cdn.example/live.flv", UserAgent: "ua/1", Headers: map[string]string{"Referer": "r"}})
	assert.Equal(t, []string{
		"-sS", "-L", "--fail", "--connect-timeout", "10",
		"--retry", "3", "--retry-delay", "1", "--retry-connrefused",
		"--user-agent", "ua/1",
		"-H", "Referer: r",
		"https://cdn.example/live.flv",
	}, got)
}

func TestParseProbe(t *testing.T) {
	res, err := parseProbe([]byte(`{"streams":[{"codec_type":"audio","codec_name":"aac"},{"codec_type":"video","codec_name":"h264","width":1920,"height":1080}]}`))
	require.NoError(t, err)
	assert.Equal(t, Resolution{Codec: "h264", Width: 1920, Height: 1080}, res)

	_, err = parseProbe([]byte(`{"streams":[{"codec_type":"audio","codec_name":"aac"}]}`))
	require.ErrorIs(t, err, ErrNoVideoStream)

	_, err = parseProbe([]byte(`not json`))
	assert.Error(t, err)
}
