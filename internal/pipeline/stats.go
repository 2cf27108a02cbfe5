// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"context"
	"time"
)

// statsLoop reports written bytes and bitrate every interval until done closes.
func statsLoop(ctx context.Context, done <-chan struct{}, interval time.Duration, read func() (int64, int), report func(Progress)) {
	t := time.NewTicker(interval)
	defer t.Stop()

	var last int64
	lastAt := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case now := <-t.C:
			total, segs := read()
			elapsed := now.Sub(lastAt).Seconds()
			var bitrate float64
			if elapsed > 0 {
				bitrate = float64(total-last) * 8 / elapsed
			}
			last, lastAt = total, now
			report(Progress{Bytes: total, Bitrate: bitrate, Segments: segs})
		}
	}
}
