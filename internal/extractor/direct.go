// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/grafov/m3u8"

	"github.com/ManuGH/streamrec/internal/engine"
	"github.com/ManuGH/streamrec/internal/platform/httpx"
	"github.com/ManuGH/streamrec/internal/streamer"
)

var ErrNoMediaURL = errors.New("streamer has no media url")

// maxPlaylistBytes bounds how much of an HLS playlist a probe reads.
const maxPlaylistBytes = 1 << 20

// Direct treats a configured media URL as the stream itself: the streamer is
// live while the origin serves it. An HLS playlist that carries ENDLIST counts
// as offline.
type Direct struct {
	Client    *http.Client
	UserAgent string
}

// NewDirect returns a direct extractor using client for probes.
func NewDirect(client *http.Client, userAgent string) *Direct {
	if client == nil {
		client = httpx.NewClient(0)
	}
	return &Direct{Client: client, UserAgent: userAgent}
}

func (d *Direct) ProbeLive(ctx context.Context, s streamer.Streamer) (bool, error) {
	target := d.mediaURL(s)
	if target == "" {
		return false, fmt.Errorf("%s: %w", s.Name, ErrNoMediaURL)
	}
	if err := engine.CheckMediaURL(target); err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, fmt.Errorf("build probe request: %w", err)
	}
	d.decorate(req, s)

	resp, err := d.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("probe %s: %w", engine.RedactURL(target), err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusGone,
		resp.StatusCode == http.StatusForbidden:
		return false, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return false, &engine.StatusError{Code: resp.StatusCode, URL: engine.RedactURL(target)}
	}

	if engine.DetectFormat(engine.FormatUnknown, resp.Header.Get("Content-Type"), target) != engine.FormatHLS {
		return true, nil
	}
	pl, listType, err := m3u8.DecodeFrom(io.LimitReader(resp.Body, maxPlaylistBytes), false)
	if err != nil {
		return false, fmt.Errorf("decode playlist: %w", err)
	}
	if listType == m3u8.MEDIA {
		if media, ok := pl.(*m3u8.MediaPlaylist); ok && media.Closed {
			return false, nil
		}
	}
	return true, nil
}

func (d *Direct) ResolveMedia(ctx context.Context, s streamer.Streamer) (streamer.MediaInfo, error) {
	target := d.mediaURL(s)
	if target == "" {
		return streamer.MediaInfo{}, fmt.Errorf("%s: %w", s.Name, ErrNoMediaURL)
	}
	if err := engine.CheckMediaURL(target); err != nil {
		return streamer.MediaInfo{}, err
	}
	headers := make(map[string]string, len(s.Headers)+1)
	for k, v := range s.Headers {
		headers[k] = v
	}
	if _, ok := headers["User-Agent"]; !ok && d.UserAgent != "" {
		headers["User-Agent"] = d.UserAgent
	}
	return streamer.MediaInfo{
		Media: engine.Media{
			URL:     target,
			Headers: headers,
			Format:  engine.DetectFormat(engine.FormatUnknown, "", target),
		},
		Title: s.Name,
	}, nil
}

func (d *Direct) mediaURL(s streamer.Streamer) string {
	if s.MediaURL != "" {
		return s.MediaURL
	}
	return s.URL
}

func (d *Direct) decorate(req *http.Request, s streamer.Streamer) {
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}
}
