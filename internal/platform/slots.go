// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package platform

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/streamrec/internal/metrics"
)

// Slots is the process-wide bound on concurrent live captures. It is shared
// by every Service.
type Slots struct {
	sem *semaphore.Weighted
}

// NewSlots returns a bound of n concurrent captures. n <= 0 means unbounded.
func NewSlots(n int) *Slots {
	if n <= 0 {
		return &Slots{}
	}
	return &Slots{sem: semaphore.NewWeighted(int64(n))}
}

// Acquire blocks until a slot is free or ctx is done.
func (s *Slots) Acquire(ctx context.Context) error {
	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return err
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}
	metrics.CaptureSlotsInUse.Inc()
	return nil
}

// Release returns a slot taken by Acquire.
func (s *Slots) Release() {
	metrics.CaptureSlotsInUse.Dec()
	if s.sem != nil {
		s.sem.Release(1)
	}
}
