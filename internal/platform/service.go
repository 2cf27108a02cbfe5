// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package platform admits streamers of one platform into capture and routes
// their cancellation.
package platform

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/metrics"
	"github.com/ManuGH/streamrec/internal/ratelimit"
	"github.com/ManuGH/streamrec/internal/streamer"
)

const DefaultQueueCapacity = 500

var (
	ErrQueueFull = errors.New("admission queue full")
	ErrClosed    = errors.New("platform service closed")
)

// errShutdown is the cancellation cause seen by managers on service shutdown.
var errShutdown = errors.New("service shutdown")

// Runner is one streamer's capture loop, usually a *streamer.Manager.
type Runner interface {
	Run(ctx context.Context) streamer.Outcome
	Snapshot() streamer.Snapshot
}

// Config is the admission policy of one platform.
type Config struct {
	Name          string
	FetchDelay    time.Duration
	QueueCapacity int
}

// Deps are the collaborators of a Service.
type Deps struct {
	NewRunner func(streamer.Streamer) (Runner, error)
	Limiter   *ratelimit.Limiter
	Registry  *Registry
}

// queued is one admission ticket. The streamer settings live in
// Service.pending so a later Enqueue can replace them before admission.
type queued struct {
	key string
	at  time.Time
}

type active struct {
	runner    Runner
	cancel    context.CancelCauseFunc
	done      chan struct{}
	cancelled bool
	// requeue is enqueued once the manager exits.
	requeue *streamer.Streamer
}

// Service owns the admission queue and the running managers of one platform.
// Queue, active and cancelled membership change only under mu.
type Service struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	queue chan queued

	mu        sync.Mutex
	pending   map[string]*streamer.Streamer
	active    map[string]*active
	cancelled map[string]string
	closed    bool

	wg sync.WaitGroup
}

// NewService validates cfg and returns a service ready to Run.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("platform name is required")
	}
	if deps.NewRunner == nil {
		return nil, fmt.Errorf("platform %q: runner factory is required", cfg.Name)
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.FetchDelay < 0 {
		return nil, fmt.Errorf("platform %q: negative fetch delay", cfg.Name)
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.New(ratelimit.Config{Interval: cfg.FetchDelay})
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	return &Service{
		cfg:       cfg,
		deps:      deps,
		log:       xglog.WithComponent("platform").With().Str(xglog.FieldPlatform, cfg.Name).Logger(),
		queue:     make(chan queued, cfg.QueueCapacity),
		pending:   make(map[string]*streamer.Streamer),
		active:    make(map[string]*active),
		cancelled: make(map[string]string),
	}, nil
}

// Name returns the platform name.
func (s *Service) Name() string { return s.cfg.Name }

// Enqueue queues st for admission. A streamer that is already queued keeps its
// place with st's settings; a running one is left alone unless it was
// cancelled, in which case it restarts with st once the old manager exits.
// A previously cancelled streamer is un-cancelled first.
func (s *Service) Enqueue(st streamer.Streamer) error {
	key := st.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, wasCancelled := s.cancelled[key]
	delete(s.cancelled, key)

	if _, ok := s.pending[key]; ok {
		s.pending[key] = &st
		metrics.RecordAdmission(s.cfg.Name, "duplicate")
		return nil
	}
	if a, ok := s.active[key]; ok {
		if a.cancelled && wasCancelled {
			// The old manager is still winding down; start again once it exits.
			a.requeue = &st
		}
		metrics.RecordAdmission(s.cfg.Name, "duplicate")
		return nil
	}

	select {
	case s.queue <- queued{key: key, at: time.Now()}:
		s.pending[key] = &st
		metrics.SetQueueDepth(s.cfg.Name, len(s.queue))
		return nil
	default:
		metrics.RecordAdmission(s.cfg.Name, "queue_full")
		return fmt.Errorf("%w: platform %q holds %d streamers", ErrQueueFull, s.cfg.Name, cap(s.queue))
	}
}

// Cancel stops st (by URL) with reason. A queued streamer is skipped at
// admission; a running one has its manager cancelled. It reports whether a
// running manager was signalled.
func (s *Service) Cancel(url, reason string) bool {
	if reason == "" {
		reason = "cancelled"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled[url] = reason
	a, ok := s.active[url]
	if !ok {
		return false
	}
	a.cancelled = true
	a.requeue = nil
	a.cancel(errors.New(reason))
	return true
}

// Run admits queued streamers until ctx is done, then cancels every running
// manager and waits for them.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info().Int("queue_capacity", cap(s.queue)).Dur("fetch_delay", s.cfg.FetchDelay).Msg("admission loop started")
	defer s.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case q := <-s.queue:
			metrics.SetQueueDepth(s.cfg.Name, len(s.queue))
			if s.skipCancelled(q.key) {
				continue
			}
			if _, err := s.deps.Limiter.Wait(ctx, s.cfg.Name); err != nil {
				s.mu.Lock()
				delete(s.pending, q.key)
				s.mu.Unlock()
				return nil
			}
			s.admit(ctx, q)
		}
	}
}

// skipCancelled drops a queued streamer whose admission was cancelled.
func (s *Service) skipCancelled(key string) bool {
	s.mu.Lock()
	reason, ok := s.cancelled[key]
	st := s.pending[key]
	if ok {
		delete(s.pending, key)
		delete(s.cancelled, key)
	}
	s.mu.Unlock()
	if ok && st != nil {
		s.logSkipped(*st, reason)
	}
	return ok
}

func (s *Service) logSkipped(st streamer.Streamer, reason string) {
	metrics.RecordAdmission(s.cfg.Name, "skipped_cancelled")
	s.log.Info().Str(xglog.FieldStreamer, st.Name).Str(xglog.FieldReason, reason).Msg("skipping cancelled streamer")
}

func (s *Service) admit(ctx context.Context, q queued) {
	key := q.key
	// Cancel may have arrived while pacing.
	if s.skipCancelled(key) {
		return
	}

	for {
		s.mu.Lock()
		p, ok := s.pending[key]
		s.mu.Unlock()
		if !ok {
			return
		}
		st := *p

		runner, err := s.deps.NewRunner(st)
		if err != nil {
			s.mu.Lock()
			if s.pending[key] == p {
				delete(s.pending, key)
			}
			s.mu.Unlock()
			metrics.RecordAdmission(s.cfg.Name, "setup_failed")
			s.log.Error().Err(err).Str(xglog.FieldStreamer, st.Name).Msg("streamer setup failed")
			return
		}

		s.mu.Lock()
		if s.pending[key] != p {
			// Re-enqueued with new settings while the runner was built.
			s.mu.Unlock()
			continue
		}
		delete(s.pending, key)
		if reason, cancelled := s.cancelled[key]; cancelled {
			delete(s.cancelled, key)
			s.mu.Unlock()
			s.logSkipped(st, reason)
			return
		}
		if _, dup := s.active[key]; dup || s.closed {
			s.mu.Unlock()
			return
		}
		mctx, cancel := context.WithCancelCause(ctx)
		a := &active{runner: runner, cancel: cancel, done: make(chan struct{})}
		s.active[key] = a
		s.wg.Add(1)
		s.mu.Unlock()

		metrics.RecordAdmission(s.cfg.Name, "admitted")
		metrics.AdmissionWaitSeconds.WithLabelValues(s.cfg.Name).Observe(time.Since(q.at).Seconds())
		metrics.ActiveManagers.WithLabelValues(s.cfg.Name).Inc()
		s.log.Info().Str(xglog.FieldStreamer, st.Name).Str(xglog.FieldURL, key).Msg("streamer admitted")

		go s.run(mctx, st, a)
		return
	}
}

func (s *Service) run(ctx context.Context, st streamer.Streamer, a *active) {
	defer s.wg.Done()
	defer close(a.done)

	outcome := a.runner.Run(ctx)
	a.cancel(nil)

	key := st.Key()
	s.mu.Lock()
	delete(s.active, key)
	if a.cancelled && a.requeue == nil {
		delete(s.cancelled, key)
	}
	requeue := a.requeue
	if s.closed {
		requeue = nil
	}
	s.mu.Unlock()

	s.deps.Registry.Remove(key)
	metrics.ActiveManagers.WithLabelValues(s.cfg.Name).Dec()
	s.log.Info().Str(xglog.FieldStreamer, st.Name).Stringer("outcome", outcome).Msg("streamer manager exited")

	if requeue != nil {
		if err := s.Enqueue(*requeue); err != nil {
			s.log.Warn().Err(err).Str(xglog.FieldStreamer, st.Name).Msg("re-enqueue failed")
		}
	}
}

func (s *Service) shutdown() {
	s.mu.Lock()
	s.closed = true
	n := len(s.active)
	for _, a := range s.active {
		a.cancelled = true
		a.cancel(errShutdown)
	}
	s.mu.Unlock()
	if n > 0 {
		s.log.Info().Int("active", n).Msg("cancelling running managers")
	}
	s.wg.Wait()
	metrics.SetQueueDepth(s.cfg.Name, 0)
}

// Active returns the URLs of running managers, sorted.
func (s *Service) Active() []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.active))
	for k := range s.active {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	slices.Sort(keys)
	return keys
}

// Done returns a channel closed when the running manager of url exits, or
// nil when none is running.
func (s *Service) Done(url string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.active[url]; ok {
		return a.done
	}
	return nil
}

// Queued reports whether url is waiting for admission.
func (s *Service) Queued(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[url]
	return ok
}

// Status is the view of one running streamer.
type Status struct {
	streamer.Snapshot
	Progress *Progress `json:"progress,omitempty"`
}

// Status returns a snapshot of every running manager, sorted by URL.
func (s *Service) Status() []Status {
	s.mu.Lock()
	runners := make([]Runner, 0, len(s.active))
	for _, a := range s.active {
		runners = append(runners, a.runner)
	}
	s.mu.Unlock()

	out := make([]Status, 0, len(runners))
	for _, r := range runners {
		st := Status{Snapshot: r.Snapshot()}
		if p, ok := s.deps.Registry.Get(st.Streamer.Key()); ok {
			st.Progress = &p
		}
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b Status) int {
		switch {
		case a.Streamer.Key() < b.Streamer.Key():
			return -1
		case a.Streamer.Key() > b.Streamer.Key():
			return 1
		}
		return 0
	})
	return out
}
