// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/grafov/m3u8"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/pipeline"
)

const (
	maxPlaylistSize = 4 << 20
	minReload       = 500 * time.Millisecond
)

var errNoVariants = errors.New("hls: master playlist has no variants")

// hlsCapture polls a live media playlist and appends new media segments to
// part files.
type hlsCapture struct {
	n   *Native
	a   *attempt
	req Request
	log zerolog.Logger

	playlistURL *url.URL
	lastSeq     uint64
	started     bool
}

func (h *hlsCapture) run(ctx context.Context, first *http.Response) ([]pipeline.Segment, int64, error) {
	pl, listType, err := h.decode(first)
	if err != nil {
		return nil, 0, err
	}
	if listType == m3u8.MASTER {
		variant, err := pickVariant(pl.(*m3u8.MasterPlaylist))
		if err != nil {
			return nil, 0, err
		}
		h.playlistURL, err = h.playlistURL.Parse(variant.URI)
		if err != nil {
			return nil, 0, fmt.Errorf("hls: variant uri: %w", err)
		}
		h.log.Debug().Uint32("bandwidth", variant.Bandwidth).Msg("variant selected")
		if pl, err = h.fetchPlaylist(ctx); err != nil {
			return nil, 0, err
		}
	}
	media, ok := pl.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, 0, fmt.Errorf("%w: expected media playlist", ErrUnsupportedFormat)
	}

	opts := h.n.pipelineOptions(h.req, FormatHLS, &h.log)
	cw, err := pipeline.NewChunkWriter(opts)
	if err != nil {
		return nil, 0, err
	}
	err = h.poll(ctx, cw, media)
	segs, cerr := cw.Close()
	err = errors.Join(err, cerr)
	var written int64
	for _, s := range segs {
		written += s.Size
	}
	if ctx.Err() != nil {
		return segs, written, ctx.Err()
	}
	if err == nil && len(segs) == 0 {
		err = pipeline.ErrNoSegments
	}
	return segs, written, err
}

func (h *hlsCapture) poll(ctx context.Context, cw *pipeline.ChunkWriter, media *m3u8.MediaPlaylist) error {
	failures := 0
	for {
		if err := h.consume(ctx, cw, media); err != nil {
			return err
		}
		if media.Closed {
			h.log.Info().Msg("playlist ended")
			return nil
		}

		timer := time.NewTimer(h.reloadInterval(media))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		for {
			pl, err := h.fetchPlaylist(ctx)
			if err == nil {
				if m, ok := pl.(*m3u8.MediaPlaylist); ok {
					media = m
					failures = 0
					break
				}
				err = fmt.Errorf("%w: expected media playlist", ErrUnsupportedFormat)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			h.log.Warn().Err(err).Int(xglog.FieldAttempt, failures).Msg("playlist reload failed")
			if failures >= h.n.cfg.PlaylistRetries {
				h.log.Info().Msg("playlist unavailable, treating stream as ended")
				return nil
			}
			timer := time.NewTimer(h.reloadInterval(media))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// consume downloads every segment newer than the last one written.
func (h *hlsCapture) consume(ctx context.Context, cw *pipeline.ChunkWriter, media *m3u8.MediaPlaylist) error {
	i := uint64(0)
	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		seq := media.SeqNo + i
		i++
		if h.started && seq <= h.lastSeq {
			continue
		}
		data, err := h.fetchSegment(ctx, seg.URI)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.log.Warn().Err(err).Uint64("sequence", seq).Msg("segment download failed, skipping")
			h.lastSeq, h.started = seq, true
			continue
		}
		dur := time.Duration(seg.Duration * float64(time.Second))
		if err := cw.WriteChunk(data, dur); err != nil {
			return err
		}
		h.lastSeq, h.started = seq, true
	}
	return nil
}

func (h *hlsCapture) reloadInterval(media *m3u8.MediaPlaylist) time.Duration {
	if h.n.cfg.PlaylistInterval > 0 {
		return h.n.cfg.PlaylistInterval
	}
	d := time.Duration(float64(media.TargetDuration) * float64(time.Second) / 2)
	return max(d, minReload)
}

func (h *hlsCapture) fetchPlaylist(ctx context.Context) (m3u8.Playlist, error) {
	resp, err := h.n.get(ctx, h.playlistURL.String(), h.req.Media.Headers)
	if err != nil {
		return nil, err
	}
	pl, _, err := h.decode(resp)
	return pl, err
}

// decode reads and closes resp. The playlist URL follows redirects so relative
// segment URIs resolve against the final location.
func (h *hlsCapture) decode(resp *http.Response) (m3u8.Playlist, m3u8.ListType, error) {
	defer resp.Body.Close()
	h.n.track(h.a, resp.Body)
	if resp.Request != nil && resp.Request.URL != nil {
		h.playlistURL = resp.Request.URL
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistSize))
	if err != nil {
		return nil, 0, fmt.Errorf("hls: read playlist: %w", err)
	}
	pl, listType, err := m3u8.DecodeFrom(bytes.NewReader(b), false)
	if err != nil {
		return nil, 0, fmt.Errorf("hls: decode playlist: %w", err)
	}
	return pl, listType, nil
}

func (h *hlsCapture) fetchSegment(ctx context.Context, uri string) ([]byte, error) {
	u, err := h.playlistURL.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("hls: segment uri: %w", err)
	}
	resp, err := h.n.get(ctx, u.String(), h.req.Media.Headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	h.n.track(h.a, resp.Body)
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("hls: read segment: %w", err)
	}
	return b, nil
}

func pickVariant(master *m3u8.MasterPlaylist) (*m3u8.Variant, error) {
	var best *m3u8.Variant
	for _, v := range master.Variants {
		if v == nil || v.URI == "" {
			continue
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	if best == nil {
		return nil, errNoVariants
	}
	return best, nil
}
