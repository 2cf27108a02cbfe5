// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package engine performs single capture attempts against a media origin.
package engine

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ManuGH/streamrec/internal/pipeline"
)

// Format is the container format of the media source.
type Format string

const (
	FormatUnknown Format = ""
	FormatFLV     Format = "flv"
	FormatHLS     Format = "hls"
)

// DetectFormat picks the source format from the declared format, the response
// content type and the URL path, in that order.
func DetectFormat(declared Format, contentType, rawURL string) Format {
	if declared != FormatUnknown {
		return declared
	}
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch ct {
	case "video/x-flv", "video/flv":
		return FormatFLV
	case "application/vnd.apple.mpegurl", "application/x-mpegurl", "audio/mpegurl", "audio/x-mpegurl":
		return FormatHLS
	}
	if u, err := url.Parse(rawURL); err == nil {
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".flv":
			return FormatFLV
		case ".m3u8":
			return FormatHLS
		}
	}
	return FormatUnknown
}

// Extension is the output file extension for a source format.
func (f Format) Extension() string {
	if f == FormatHLS {
		return ".ts"
	}
	return ".flv"
}

// Media is a resolved, downloadable stream.
type Media struct {
	URL     string
	Headers map[string]string
	Format  Format
}

// Progress is reported while an attempt runs.
type Progress struct {
	Bytes    int64         `json:"bytes"`
	Bitrate  float64       `json:"bitrate"`
	Segments int           `json:"segments"`
	OutTime  time.Duration `json:"outTime"`
	Speed    float64       `json:"speed"`
}

// Callbacks receive attempt events. They run on engine goroutines and must
// not block for long.
type Callbacks struct {
	OnProgress func(Progress)
	OnSegment  func(pipeline.Segment)
}

// Request describes one capture attempt.
type Request struct {
	Streamer string
	Platform string
	Title    string
	Media    Media
	// FirstIndex numbers the first segment written by this attempt.
	FirstIndex int
	Callbacks  Callbacks
}

// Session describes the capture an attempt belongs to.
type Session struct {
	ID             string
	Streamer       string
	Platform       string
	URL            string
	OutputTemplate string
	Bytes          int64
	StartedAt      time.Time
}

// Result is what an attempt produced.
type Result struct {
	Session  Session
	Segments []pipeline.Segment
	// StreamEnded is false when the attempt stopped at a part limit while the
	// stream is still live.
	StreamEnded bool
}

// Engine runs one capture attempt at a time.
type Engine interface {
	Name() string
	// Start blocks until the attempt completes, fails or is stopped.
	Start(ctx context.Context, req Request) (Result, error)
	// Stop asks a running attempt to finish its current segment and return.
	// It reports whether shutdown completed within the stop timeout.
	Stop(reason string) bool
}
