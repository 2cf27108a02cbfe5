// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package streamer drives the capture lifecycle of a single monitored channel.
package streamer

import (
	"context"
	"time"

	"github.com/ManuGH/streamrec/internal/engine"
	"github.com/ManuGH/streamrec/internal/pipeline"
)

// Streamer is one monitored channel. It is immutable once created.
type Streamer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Platform string `json:"platform"`
	// MediaURL bypasses platform extraction when set.
	MediaURL string            `json:"-"`
	Headers  map[string]string `json:"-"`
}

// Key identifies a streamer across services.
func (s Streamer) Key() string { return s.URL }

// State is the lifecycle state of a Manager.
type State string

const (
	StateIdle          State = "idle"
	StateCheckingLive  State = "checking_live"
	StateLiveCapturing State = "live_capturing"
	StateRetryWait     State = "retry_wait"
	StateCancelled     State = "cancelled"
)

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool { return s == StateCancelled }

// MediaInfo is what an extractor resolves for a live streamer.
type MediaInfo struct {
	Media engine.Media
	Title string
}

// Extractor probes and resolves streams of one platform.
type Extractor interface {
	ProbeLive(ctx context.Context, s Streamer) (bool, error)
	ResolveMedia(ctx context.Context, s Streamer) (MediaInfo, error)
}

// Slots bounds concurrent live captures across the process.
type Slots interface {
	Acquire(ctx context.Context) error
	Release()
}

// RetryState is the backoff bookkeeping of a Manager.
type RetryState struct {
	Failures     int
	LastSegments []pipeline.Segment
}

// Reset clears the failure counter.
func (r *RetryState) Reset() { r.Failures = 0 }

// Snapshot is a point-in-time view of a Manager.
type Snapshot struct {
	Streamer Streamer  `json:"streamer"`
	State    State     `json:"state"`
	Live     bool      `json:"live"`
	LastLive time.Time `json:"lastLive,omitzero"`
	Failures int       `json:"failures"`
}

// Outcome classifies why Run returned.
type Outcome int

const (
	OutcomeCancelled Outcome = iota
	OutcomeFatal
)

func (o Outcome) String() string {
	if o == OutcomeFatal {
		return "fatal"
	}
	return "cancelled"
}
