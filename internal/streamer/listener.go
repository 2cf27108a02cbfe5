// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package streamer

import (
	"time"

	"github.com/ManuGH/streamrec/internal/pipeline"
)

// Listener receives lifecycle notifications. Calls are fire-and-forget and
// arrive in emission order.
type Listener interface {
	OnStateChange(s Streamer, from, to State)
	OnLiveStatus(s Streamer, live bool)
	OnLastLive(s Streamer, at time.Time)
	OnSegment(s Streamer, seg pipeline.Segment)
	OnStreamFinished(s Streamer, segs []pipeline.Segment)
	OnCancelled(s Streamer, reason string)
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	StateChange    func(s Streamer, from, to State)
	LiveStatus     func(s Streamer, live bool)
	LastLive       func(s Streamer, at time.Time)
	Segment        func(s Streamer, seg pipeline.Segment)
	StreamFinished func(s Streamer, segs []pipeline.Segment)
	Cancelled      func(s Streamer, reason string)
}

func (f ListenerFuncs) OnStateChange(s Streamer, from, to State) {
	if f.StateChange != nil {
		f.StateChange(s, from, to)
	}
}

func (f ListenerFuncs) OnLiveStatus(s Streamer, live bool) {
	if f.LiveStatus != nil {
		f.LiveStatus(s, live)
	}
}

func (f ListenerFuncs) OnLastLive(s Streamer, at time.Time) {
	if f.LastLive != nil {
		f.LastLive(s, at)
	}
}

func (f ListenerFuncs) OnSegment(s Streamer, seg pipeline.Segment) {
	if f.Segment != nil {
		f.Segment(s, seg)
	}
}

func (f ListenerFuncs) OnStreamFinished(s Streamer, segs []pipeline.Segment) {
	if f.StreamFinished != nil {
		f.StreamFinished(s, segs)
	}
}

func (f ListenerFuncs) OnCancelled(s Streamer, reason string) {
	if f.Cancelled != nil {
		f.Cancelled(s, reason)
	}
}
