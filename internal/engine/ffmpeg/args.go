// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ffmpeg

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// InputSpec describes what ffmpeg reads.
type InputSpec struct {
	// URL is the media URL, or "pipe:0" when a fetch helper feeds stdin.
	URL       string
	UserAgent string
	Headers   map[string]string
}

// OutputSpec describes the part ffmpeg writes.
type OutputSpec struct {
	Path        string
	Muxer       string
	MaxDuration time.Duration
	MaxSize     int64
}

// BuildArgs returns the ffmpeg argument list for one part.
func BuildArgs(in InputSpec, out OutputSpec) ([]string, error) {
	if in.URL == "" {
		return nil, fmt.Errorf("ffmpeg: input url is required")
	}
	if out.Path == "" || out.Muxer == "" {
		return nil, fmt.Errorf("ffmpeg: output path and muxer are required")
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-nostats",
		"-progress", "pipe:1",
		"-y",
	}
	if in.URL != "pipe:0" {
		args = append(args, "-rw_timeout", "15000000")
		if in.UserAgent != "" {
			args = append(args, "-user_agent", in.UserAgent)
		}
		if h := headerBlock(in.Headers); h != "" {
			args = append(args, "-headers", h)
		}
	}
	args = append(args, "-i", in.URL, "-map", "0", "-c", "copy")
	if out.MaxDuration > 0 {
		args = append(args, "-t", strconv.FormatFloat(out.MaxDuration.Seconds(), 'f', 3, 64))
	}
	if out.MaxSize > 0 {
		args = append(args, "-fs", strconv.FormatInt(out.MaxSize, 10))
	}
	args = append(args, "-f", out.Muxer, out.Path)
	return args, nil
}

// CurlArgs returns the arguments of the fetch helper writing the body to stdout.
func CurlArgs(in InputSpec) []string {
	args := []string{
		"-sS",
		"-L",
		"--fail",
		"--connect-timeout", "10",
		"--retry", "3",
		"--retry-delay", "1",
		"--retry-connrefused",
	}
	if in.UserAgent != "" {
		args = append(args, "--user-agent", in.UserAgent)
	}
	for _, k := range sortedKeys(in.Headers) {
		args = append(args, "-H", k+": "+in.Headers[k])
	}
	return append(args, in.URL)
}

func headerBlock(h map[string]string) string {
	var b strings.Builder
	for _, k := range sortedKeys(h) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(h[k])
		b.WriteString("\r\n")
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
