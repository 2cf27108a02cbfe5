// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package extractor answers "is this streamer live, and where is its media"
// for configured platforms.
package extractor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ManuGH/streamrec/internal/streamer"
)

// PlatformDirect serves streamers configured with a media URL.
const PlatformDirect = "direct"

// Mux routes each streamer to the extractor of its platform.
type Mux struct {
	mu       sync.RWMutex
	byName   map[string]streamer.Extractor
	fallback streamer.Extractor
}

// NewMux returns a mux that falls back to fallback for unknown platforms.
// fallback may be nil.
func NewMux(fallback streamer.Extractor) *Mux {
	return &Mux{byName: make(map[string]streamer.Extractor), fallback: fallback}
}

// Register binds platform to e, replacing any previous binding.
func (m *Mux) Register(platform string, e streamer.Extractor) {
	m.mu.Lock()
	m.byName[platform] = e
	m.mu.Unlock()
}

// Platforms lists registered platform names.
func (m *Mux) Platforms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byName))
	for name := range m.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *Mux) lookup(s streamer.Streamer) (streamer.Extractor, error) {
	m.mu.RLock()
	e, ok := m.byName[s.Platform]
	m.mu.RUnlock()
	if ok {
		return e, nil
	}
	if m.fallback != nil {
		return m.fallback, nil
	}
	return nil, fmt.Errorf("no extractor for platform %q", s.Platform)
}

func (m *Mux) ProbeLive(ctx context.Context, s streamer.Streamer) (bool, error) {
	e, err := m.lookup(s)
	if err != nil {
		return false, err
	}
	return e.ProbeLive(ctx, s)
}

func (m *Mux) ResolveMedia(ctx context.Context, s streamer.Streamer) (streamer.MediaInfo, error) {
	e, err := m.lookup(s)
	if err != nil {
		return streamer.MediaInfo{}, err
	}
	return e.ResolveMedia(ctx, s)
}
