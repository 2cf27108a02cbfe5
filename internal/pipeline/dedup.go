// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import "github.com/ManuGH/streamrec/internal/flv"

// dedup drops a tag that repeats the immediately preceding tag byte for byte.
// Only one tag of history is kept.
type dedup struct {
	prev    *flv.Tag
	dropped int64
}

func (d *dedup) keep(t *flv.Tag) bool {
	if d.prev != nil && d.prev.Equal(t) {
		d.dropped++
		return false
	}
	d.prev = t
	return true
}
