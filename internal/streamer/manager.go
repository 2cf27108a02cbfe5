// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package streamer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrec/internal/engine"
	"github.com/ManuGH/streamrec/internal/fsm"
	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/metrics"
	"github.com/ManuGH/streamrec/internal/pipeline"
)

const (
	DefaultCheckInterval         = 60 * time.Second
	DefaultRetryDelay            = 10 * time.Second
	DefaultDownloadCheckInterval = 30 * time.Second
	DefaultMaxRetries            = 3
)

// Config holds the polling policy of a Manager.
type Config struct {
	// CheckInterval is the long poll used while the streamer is offline.
	CheckInterval time.Duration
	// RetryDelay is the short poll after a failed probe or capture.
	RetryDelay time.Duration
	// DownloadCheckInterval is the wait after a stream ended with segments.
	DownloadCheckInterval time.Duration
	// MaxRetries failed probes in a row mark the streamer offline.
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.DownloadCheckInterval <= 0 {
		c.DownloadCheckInterval = DefaultDownloadCheckInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// Clock abstracts timers for tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Deps are the collaborators of a Manager.
type Deps struct {
	Extractor  Extractor
	NewEngine  func() (engine.Engine, error)
	Slots      Slots
	Dispatcher *Dispatcher
	OnProgress func(Streamer, engine.Progress)
	Clock      Clock
}

type event string

const (
	evCheck   event = "check"
	evLive    event = "live"
	evOffline event = "offline"
	evEnded   event = "ended"
	evCancel  event = "cancel"
)

var transitions = []fsm.Transition[State, event]{
	{From: StateIdle, Event: evCheck, To: StateCheckingLive},
	{From: StateRetryWait, Event: evCheck, To: StateCheckingLive},
	{From: StateCheckingLive, Event: evLive, To: StateLiveCapturing},
	{From: StateCheckingLive, Event: evOffline, To: StateRetryWait},
	{From: StateLiveCapturing, Event: evEnded, To: StateRetryWait},
	{From: fsm.Any, Event: evCancel, To: StateCancelled},
}

// Manager runs the poll/capture loop of one streamer.
type Manager struct {
	s     Streamer
	cfg   Config
	deps  Deps
	log   zerolog.Logger
	fsm   *fsm.Machine[State, event]
	state *StateCell

	cancelOnce sync.Once

	mu       sync.Mutex
	retry    RetryState
	live     bool
	lastLive time.Time
}

// NewManager validates deps and returns an idle manager.
func NewManager(s Streamer, cfg Config, deps Deps) (*Manager, error) {
	if deps.Extractor == nil || deps.NewEngine == nil {
		return nil, fmt.Errorf("%w: streamer %q needs an extractor and an engine", engine.ErrInvalidConfig, s.Name)
	}
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	m := &Manager{
		s:     s,
		cfg:   cfg.withDefaults(),
		deps:  deps,
		state: NewStateCell(StateIdle),
		log: xglog.Derive(func(c *zerolog.Context) {
			*c = c.Str(xglog.FieldComponent, "streamer").
				Str(xglog.FieldStreamer, s.Name).
				Str(xglog.FieldPlatform, s.Platform)
		}),
	}
	machine, err := fsm.New(StateIdle, transitions)
	if err != nil {
		return nil, err
	}
	machine.Observe(func(from, to State, ev event) {
		m.state.Set(to)
		m.log.Debug().Str(xglog.FieldOldState, string(from)).Str(xglog.FieldNewState, string(to)).Str(xglog.FieldEvent, string(ev)).Msg("state changed")
		metrics.StreamerTransitionsTotal.WithLabelValues(string(to)).Inc()
		m.emit(func(l Listener) { l.OnStateChange(s, from, to) })
	})
	m.fsm = machine
	return m, nil
}

// Streamer returns the managed streamer.
func (m *Manager) Streamer() Streamer { return m.s }

// State returns the current lifecycle state.
func (m *Manager) State() State { return m.state.Get() }

// Subscribe delivers the current state and every later transition to fn.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	return m.state.Subscribe(fn)
}

// Retry returns a copy of the backoff bookkeeping.
func (m *Manager) Retry() RetryState {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.retry
	r.LastSegments = append([]pipeline.Segment(nil), r.LastSegments...)
	return r
}

// Snapshot returns a point-in-time view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Streamer: m.s,
		State:    m.state.Get(),
		Live:     m.live,
		LastLive: m.lastLive,
		Failures: m.retry.Failures,
	}
}

// Run polls and captures until ctx is cancelled or a configuration error
// makes capturing impossible. The cancellation cause, if any, is reported as
// the cancel reason.
func (m *Manager) Run(ctx context.Context) Outcome {
	eng, err := m.deps.NewEngine()
	if err != nil {
		m.log.Error().Err(err).Msg("engine setup failed")
		m.fire(ctx, evCancel)
		return OutcomeFatal
	}

	var delay time.Duration
	for {
		if !m.sleep(ctx, delay) {
			return m.cancelled(ctx)
		}
		m.fire(ctx, evCheck)

		live := m.probe(ctx)
		if ctx.Err() != nil {
			return m.cancelled(ctx)
		}
		if !live {
			m.fire(ctx, evOffline)
			delay = m.offline()
			continue
		}

		m.fire(ctx, evLive)
		m.wentLive()
		var fatal bool
		delay, fatal = m.capture(ctx, eng)
		if ctx.Err() != nil {
			return m.cancelled(ctx)
		}
		if fatal {
			m.fire(ctx, evCancel)
			return OutcomeFatal
		}
		m.fire(ctx, evEnded)
	}
}

func (m *Manager) probe(ctx context.Context) bool {
	live, err := m.deps.Extractor.ProbeLive(ctx, m.s)
	switch {
	case err != nil:
		if ctx.Err() == nil {
			m.log.Warn().Err(err).Msg("live probe failed")
			metrics.RecordLiveProbe(m.s.Platform, "error")
		}
		return false
	case live:
		metrics.RecordLiveProbe(m.s.Platform, "live")
	default:
		metrics.RecordLiveProbe(m.s.Platform, "offline")
	}
	return live
}

// offline records a failed probe or empty capture and returns the next delay.
func (m *Manager) offline() time.Duration {
	m.mu.Lock()
	m.retry.Failures++
	failures := m.retry.Failures
	if failures < m.cfg.MaxRetries {
		m.mu.Unlock()
		return m.cfg.RetryDelay
	}
	m.retry.Reset()
	wasLive := m.live
	m.live = false
	m.mu.Unlock()

	if wasLive {
		m.log.Info().Msg("streamer went offline")
		m.emit(func(l Listener) { l.OnLiveStatus(m.s, false) })
	}
	return m.cfg.CheckInterval
}

func (m *Manager) wentLive() {
	now := m.deps.Clock.Now()
	m.mu.Lock()
	m.retry.Reset()
	wasLive := m.live
	m.live = true
	m.lastLive = now
	m.mu.Unlock()

	if !wasLive {
		m.log.Info().Msg("streamer went live")
		m.emit(func(l Listener) { l.OnLiveStatus(m.s, true) })
	}
	m.emit(func(l Listener) { l.OnLastLive(m.s, now) })
}

// capture loops engine parts while the stream stays live and returns the
// delay before the next probe. fatal is true for configuration errors.
func (m *Manager) capture(ctx context.Context, eng engine.Engine) (delay time.Duration, fatal bool) {
	if m.deps.Slots != nil {
		if err := m.deps.Slots.Acquire(ctx); err != nil {
			return 0, false
		}
		defer m.deps.Slots.Release()
	}
	active := metrics.ActiveCaptures.WithLabelValues(m.s.Platform)
	active.Inc()
	defer active.Dec()

	var (
		segments []pipeline.Segment
		attemptE error
		next     int
	)
	for ctx.Err() == nil {
		info, err := m.deps.Extractor.ResolveMedia(ctx, m.s)
		if err != nil {
			attemptE = fmt.Errorf("resolve media: %w", err)
			break
		}
		req := engine.Request{
			Streamer:   m.s.Name,
			Platform:   m.s.Platform,
			Title:      info.Title,
			Media:      info.Media,
			FirstIndex: next,
			Callbacks: engine.Callbacks{
				OnSegment: func(seg pipeline.Segment) {
					m.emit(func(l Listener) { l.OnSegment(m.s, seg) })
				},
				OnProgress: func(p engine.Progress) {
					if m.deps.OnProgress != nil {
						m.deps.OnProgress(m.s, p)
					}
				},
			},
		}

		stop := context.AfterFunc(ctx, func() { eng.Stop(cancelReason(ctx)) })
		res, err := eng.Start(ctx, req)
		stop()

		segments = append(segments, res.Segments...)
		for _, seg := range res.Segments {
			next = max(next, seg.Index+1)
		}
		attemptE = err
		if err != nil {
			m.logAttempt(err, len(res.Segments))
		}
		if err != nil || res.StreamEnded {
			break
		}
	}

	if len(segments) > 0 {
		all := segments
		m.mu.Lock()
		m.retry.LastSegments = all
		m.mu.Unlock()
		m.log.Info().Int("segments", len(all)).Msg("stream finished")
		m.emit(func(l Listener) { l.OnStreamFinished(m.s, all) })
	}
	if ctx.Err() != nil {
		return 0, false
	}

	switch {
	case errors.Is(attemptE, engine.ErrInvalidConfig):
		m.log.Error().Err(attemptE).Msg("capture configuration is invalid, giving up")
		return 0, true
	case engine.Classify(attemptE) == engine.ClassFatal:
		m.log.Warn().Err(attemptE).Msg("capture failed permanently, falling back to long poll")
		return m.cfg.CheckInterval, false
	case len(segments) > 0:
		return m.cfg.DownloadCheckInterval, false
	default:
		return m.offline(), false
	}
}

func (m *Manager) logAttempt(err error, segments int) {
	switch engine.Classify(err) {
	case engine.ClassCancelled:
		m.log.Debug().Err(err).Msg("capture attempt stopped")
	case engine.ClassFatal:
		m.log.Error().Err(err).Int("segments", segments).Msg("capture attempt failed")
	default:
		m.log.Warn().Err(err).Int("segments", segments).Msg("capture attempt ended with error")
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-m.deps.Clock.After(d):
		return true
	}
}

func (m *Manager) fire(ctx context.Context, ev event) {
	if _, err := m.fsm.Fire(ctx, ev); err != nil {
		m.log.Error().Err(err).Msg("unexpected state transition")
	}
}

// cancelled moves to the terminal state and emits the cancellation once.
func (m *Manager) cancelled(ctx context.Context) Outcome {
	m.cancelOnce.Do(func() {
		reason := cancelReason(ctx)
		m.fire(context.WithoutCancel(ctx), evCancel)
		m.log.Info().Str(xglog.FieldReason, reason).Msg("streamer stopped")
		m.emit(func(l Listener) { l.OnCancelled(m.s, reason) })
	})
	return OutcomeCancelled
}

func (m *Manager) emit(fn func(Listener)) {
	if m.deps.Dispatcher != nil {
		m.deps.Dispatcher.Emit(fn)
	}
}

func cancelReason(ctx context.Context) string {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause.Error()
	}
	return "cancelled"
}
