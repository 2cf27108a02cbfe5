// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package platform

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/streamrec/internal/engine"
	"github.com/ManuGH/streamrec/internal/streamer"
)

// Progress is the latest capture progress of one streamer.
type Progress struct {
	Streamer  streamer.Streamer `json:"-"`
	Progress  engine.Progress   `json:"progress"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Registry keeps the live progress of running captures. It is owned by the
// daemon and handed to every Service.
type Registry struct {
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]Progress
}

func NewRegistry() *Registry {
	return &Registry{now: time.Now, entries: make(map[string]Progress)}
}

// Update stores p as the latest progress of s.
func (r *Registry) Update(s streamer.Streamer, p engine.Progress) {
	r.mu.Lock()
	r.entries[s.Key()] = Progress{Streamer: s, Progress: p, UpdatedAt: r.now()}
	r.mu.Unlock()
}

// Remove drops the entry of a streamer that stopped capturing.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

// Get returns the progress stored for key.
func (r *Registry) Get(key string) (Progress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[key]
	return p, ok
}

// Snapshot returns all entries ordered by streamer name.
func (r *Registry) Snapshot() []Progress {
	r.mu.RLock()
	out := make([]Progress, 0, len(r.entries))
	for _, p := range r.entries {
		out = append(out, p)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Progress) int {
		if c := strings.Compare(a.Streamer.Name, b.Streamer.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Streamer.Key(), b.Streamer.Key())
	})
	return out
}
