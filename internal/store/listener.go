// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/pipeline"
	"github.com/ManuGH/streamrec/internal/streamer"
)

const writeTimeout = 5 * time.Second

// Listener mirrors streamer events into the store. Write failures are
// logged and never propagated to the manager.
type Listener struct {
	store  *Store
	logger zerolog.Logger
}

var _ streamer.Listener = (*Listener)(nil)

func NewListener(s *Store) *Listener {
	return &Listener{store: s, logger: xglog.WithComponent("store")}
}

func (l *Listener) OnStateChange(s streamer.Streamer, _, to streamer.State) {
	l.write(s, "state", func(ctx context.Context) error { return l.store.SetState(ctx, s, to) })
}

func (l *Listener) OnLiveStatus(s streamer.Streamer, live bool) {
	l.write(s, "live", func(ctx context.Context) error { return l.store.SetLive(ctx, s, live) })
}

func (l *Listener) OnLastLive(s streamer.Streamer, at time.Time) {
	l.write(s, "last_live", func(ctx context.Context) error { return l.store.SetLastLive(ctx, s, at) })
}

func (l *Listener) OnSegment(s streamer.Streamer, seg pipeline.Segment) {
	l.write(s, "segment", func(ctx context.Context) error { return l.store.AddSegment(ctx, s, seg) })
}

func (l *Listener) OnStreamFinished(s streamer.Streamer, segs []pipeline.Segment) {
	l.write(s, "stream", func(ctx context.Context) error { return l.store.AddStream(ctx, s, segs) })
}

func (l *Listener) OnCancelled(s streamer.Streamer, _ string) {
	l.write(s, "state", func(ctx context.Context) error {
		return l.store.SetState(ctx, s, streamer.StateCancelled)
	})
}

func (l *Listener) write(s streamer.Streamer, what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		l.logger.Warn().Err(err).
			Str(xglog.FieldStreamer, s.Name).
			Str(xglog.FieldEvent, "store.write_failed").
			Str("record", what).
			Msg("failed to persist streamer event")
	}
}
