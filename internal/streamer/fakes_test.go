// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package streamer_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/streamrec/internal/engine"
	"github.com/ManuGH/streamrec/internal/pipeline"
	"github.com/ManuGH/streamrec/internal/streamer"
)

var errProbesExhausted = errors.New("probe script exhausted")

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	delays []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays = append(c.delays, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// scriptExtractor answers probes from a script and cancels the run when the
// script is exhausted.
type scriptExtractor struct {
	mu       sync.Mutex
	probes   []bool
	cancel   context.CancelCauseFunc
	resolved int
}

func (e *scriptExtractor) ProbeLive(ctx context.Context, s streamer.Streamer) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.probes) == 0 {
		e.cancel(errProbesExhausted)
		return false, ctx.Err()
	}
	live := e.probes[0]
	e.probes = e.probes[1:]
	return live, nil
}

func (e *scriptExtractor) ResolveMedia(ctx context.Context, s streamer.Streamer) (streamer.MediaInfo, error) {
	e.mu.Lock()
	e.resolved++
	e.mu.Unlock()
	return streamer.MediaInfo{Media: engine.Media{URL: "http://origin.test/" + s.Name + ".flv"}, Title: "live now"}, nil
}

type attempt struct {
	segments int
	ended    bool
	err      error
}

// scriptEngine returns scripted attempts and blocks once the script is empty.
type scriptEngine struct {
	mu       sync.Mutex
	attempts []attempt
	requests []engine.Request
	stops    []string
	started  chan struct{}
}

func newScriptEngine(attempts ...attempt) *scriptEngine {
	return &scriptEngine{attempts: attempts, started: make(chan struct{}, 16)}
}

func (e *scriptEngine) Name() string { return "script" }

func (e *scriptEngine) Start(ctx context.Context, req engine.Request) (engine.Result, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	if len(e.attempts) == 0 {
		e.mu.Unlock()
		e.started <- struct{}{}
		<-ctx.Done()
		return engine.Result{}, ctx.Err()
	}
	a := e.attempts[0]
	e.attempts = e.attempts[1:]
	e.mu.Unlock()

	var res engine.Result
	for i := 0; i < a.segments; i++ {
		seg := pipeline.Segment{Index: req.FirstIndex + i, Path: fmt.Sprintf("/rec/%s-%d.flv", req.Streamer, req.FirstIndex+i)}
		res.Segments = append(res.Segments, seg)
		req.Callbacks.OnSegment(seg)
	}
	res.StreamEnded = a.ended
	return res, engine.Finish(res.Segments, a.err)
}

func (e *scriptEngine) Stop(reason string) bool {
	e.mu.Lock()
	e.stops = append(e.stops, reason)
	e.mu.Unlock()
	return true
}

func (e *scriptEngine) Requests() []engine.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.Request(nil), e.requests...)
}

func (e *scriptEngine) Stops() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.stops...)
}

// recorder is a Listener that keeps every notification as a string.
type recorder struct {
	mu       sync.Mutex
	events   []string
	finished [][]pipeline.Segment
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *recorder) OnStateChange(s streamer.Streamer, from, to streamer.State) {}

func (r *recorder) OnLiveStatus(s streamer.Streamer, live bool) { r.add("live=%t", live) }

func (r *recorder) OnLastLive(s streamer.Streamer, at time.Time) {}

func (r *recorder) OnSegment(s streamer.Streamer, seg pipeline.Segment) {
	r.add("segment=%d", seg.Index)
}

func (r *recorder) OnStreamFinished(s streamer.Streamer, segs []pipeline.Segment) {
	r.mu.Lock()
	r.finished = append(r.finished, segs)
	r.mu.Unlock()
	r.add("finished=%d", len(segs))
}

func (r *recorder) OnCancelled(s streamer.Streamer, reason string) { r.add("cancelled=%s", reason) }

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type countingSlots struct {
	mu       sync.Mutex
	acquired int
	released int
}

func (s *countingSlots) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquired++
	return ctx.Err()
}

func (s *countingSlots) Release() {
	s.mu.Lock()
	s.released++
	s.mu.Unlock()
}
