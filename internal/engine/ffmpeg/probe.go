// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
)

// ErrNoVideoStream is returned when the probed source has no video stream.
var ErrNoVideoStream = errors.New("ffprobe: no video stream")

// Resolution is the video frame size reported by ffprobe.
type Resolution struct {
	Codec  string
	Width  int
	Height int
}

// Probe runs ffprobe against url and returns the first video stream.
func Probe(ctx context.Context, bin string, in InputSpec) (Resolution, error) {
	if bin == "" {
		bin = "ffprobe"
	}
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "v:0",
	}
	if in.UserAgent != "" {
		args = append(args, "-user_agent", in.UserAgent)
	}
	if h := headerBlock(in.Headers); h != "" {
		args = append(args, "-headers", h)
	}
	args = append(args, in.URL)

	// #nosec G204 -- binary comes from configuration, url is passed as one argument
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := stderr.String()
		if len(msg) > 1024 {
			msg = msg[:1024] + "..."
		}
		return Resolution{}, fmt.Errorf("ffprobe failed: %w (stderr: %s)", err, msg)
	}
	return parseProbe(out)
}

type probeData struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

func parseProbe(out []byte) (Resolution, error) {
	var data probeData
	if err := json.Unmarshal(out, &data); err != nil {
		return Resolution{}, fmt.Errorf("ffprobe json decode: %w", err)
	}
	for _, s := range data.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			return Resolution{Codec: s.CodecName, Width: s.Width, Height: s.Height}, nil
		}
	}
	return Resolution{}, ErrNoVideoStream
}
