// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrec/internal/config"
	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/platform"
	"github.com/ManuGH/streamrec/internal/ratelimit"
	"github.com/ManuGH/streamrec/internal/streamer"
)

// ReasonRemoved is the cancellation reason for streamers dropped from the
// configuration.
const ReasonRemoved = "removed from config"

// SupervisorDeps are the collaborators shared by every platform service.
type SupervisorDeps struct {
	NewRunner func(streamer.Streamer) (platform.Runner, error)
	// Platform returns the admission policy of a platform.
	Platform func(name string) config.PlatformConfig
	Limiter  *ratelimit.Limiter
	Registry *platform.Registry
}

// Supervisor routes streamers to one platform.Service per platform. Services
// are created on first use and run until the supervisor's context ends.
type Supervisor struct {
	deps SupervisorDeps
	log  zerolog.Logger

	mu       sync.Mutex
	ctx      context.Context
	stopped  bool
	services map[string]*platform.Service
	wg       sync.WaitGroup
}

func NewSupervisor(deps SupervisorDeps) (*Supervisor, error) {
	if deps.NewRunner == nil {
		return nil, ErrMissingRunnerFactory
	}
	if deps.Platform == nil {
		deps.Platform = func(string) config.PlatformConfig { return config.PlatformConfig{} }
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.New(ratelimit.Config{})
	}
	if deps.Registry == nil {
		deps.Registry = platform.NewRegistry()
	}
	return &Supervisor{
		deps:     deps,
		log:      xglog.WithComponent("supervisor"),
		services: make(map[string]*platform.Service),
	}, nil
}

// Run starts the admission loops of all services, including those created
// later, and blocks until ctx is done and every manager has exited.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return fmt.Errorf("supervisor already running")
	}
	s.ctx = ctx
	for _, svc := range s.services {
		s.start(svc)
	}
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Info().Msg("all platform services stopped")
	return nil
}

// start must be called with mu held and ctx set.
func (s *Supervisor) start(svc *platform.Service) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = svc.Run(s.ctx)
	}()
}

func (s *Supervisor) service(name string) (*platform.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrSupervisorStopped
	}
	if svc, ok := s.services[name]; ok {
		return svc, nil
	}
	pc := s.deps.Platform(name)
	s.deps.Limiter.SetKeyInterval(name, pc.FetchDelay)
	svc, err := platform.NewService(platform.Config{
		Name:          name,
		FetchDelay:    pc.FetchDelay,
		QueueCapacity: pc.QueueCapacity,
	}, platform.Deps{
		NewRunner: s.deps.NewRunner,
		Limiter:   s.deps.Limiter,
		Registry:  s.deps.Registry,
	})
	if err != nil {
		return nil, err
	}
	s.services[name] = svc
	if s.ctx != nil {
		s.start(svc)
	}
	s.log.Info().Str(xglog.FieldPlatform, name).Dur("fetch_delay", pc.FetchDelay).Msg("platform service created")
	return svc, nil
}

// Enqueue hands st to its platform service.
func (s *Supervisor) Enqueue(st streamer.Streamer) error {
	svc, err := s.service(st.Platform)
	if err != nil {
		return err
	}
	return svc.Enqueue(st)
}

// Cancel stops st on its platform. It reports whether a running manager was
// signalled.
func (s *Supervisor) Cancel(st streamer.Streamer, reason string) bool {
	_, ok := s.cancel(st, reason)
	return ok
}

// cancel also returns the exit channel of the signalled manager.
func (s *Supervisor) cancel(st streamer.Streamer, reason string) (<-chan struct{}, bool) {
	s.mu.Lock()
	svc, ok := s.services[st.Platform]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	done := svc.Done(st.Key())
	if !svc.Cancel(st.Key(), reason) {
		return nil, false
	}
	return done, true
}

// enqueueAfter enqueues st once done is closed. Used when a streamer moves to
// another platform while its old manager is still stopping.
func (s *Supervisor) enqueueAfter(done <-chan struct{}, st streamer.Streamer) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSupervisorStopped
	}
	var stop <-chan struct{}
	if s.ctx != nil {
		stop = s.ctx.Done()
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		select {
		case <-done:
		case <-stop:
			return
		}
		if err := s.Enqueue(st); err != nil {
			s.log.Warn().Err(err).Str(xglog.FieldStreamer, st.Name).Str(xglog.FieldPlatform, st.Platform).Msg("deferred enqueue failed")
		}
	}()
	return nil
}

// EnqueueAll enqueues every streamer and joins the failures.
func (s *Supervisor) EnqueueAll(streamers []streamer.Streamer) error {
	var errs []error
	for _, st := range streamers {
		if err := s.Enqueue(st); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Apply reconciles running streamers with a configuration change. Changed
// streamers are cancelled first so they restart with their new settings. A
// streamer that moved to another platform starts there only after its old
// manager exited, keeping one capture per URL.
func (s *Supervisor) Apply(changes config.ChangeSummary) error {
	type stopping struct {
		platform string
		done     <-chan struct{}
	}
	exiting := make(map[string]stopping, len(changes.Removed))
	for _, sc := range changes.Removed {
		st := sc.Streamer()
		done, signalled := s.cancel(st, ReasonRemoved)
		if signalled && done != nil {
			exiting[st.Key()] = stopping{platform: st.Platform, done: done}
		}
		s.log.Info().Str(xglog.FieldStreamer, st.Name).Bool("running", signalled).Msg("streamer removed")
	}

	var errs []error
	for _, sc := range changes.Added {
		st := sc.Streamer()
		var err error
		if old, ok := exiting[st.Key()]; ok && old.platform != st.Platform {
			s.log.Info().Str(xglog.FieldStreamer, st.Name).
				Str("from", old.platform).Str("to", st.Platform).
				Msg("platform changed, waiting for old manager to exit")
			err = s.enqueueAfter(old.done, st)
		} else {
			err = s.Enqueue(st)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Status returns the running streamers of every platform, sorted by platform.
func (s *Supervisor) Status() map[string][]platform.Status {
	s.mu.Lock()
	services := maps.Clone(s.services)
	s.mu.Unlock()

	out := make(map[string][]platform.Status, len(services))
	for name, svc := range services {
		out[name] = svc.Status()
	}
	return out
}

// Platforms returns the names of created services.
func (s *Supervisor) Platforms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.services))
}
