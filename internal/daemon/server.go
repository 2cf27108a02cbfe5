// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/streamrec/internal/log"
)

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
	return c
}

// Server serves metrics, health and status, and runs shutdown hooks once it
// stops.
type Server struct {
	cfg     ServerConfig
	handler http.Handler
	logger  zerolog.Logger

	mu       sync.Mutex
	srv      *http.Server
	addr     net.Addr
	started  bool
	stopping bool
	hooks    []namedHook
}

type namedHook struct {
	name string
	hook ShutdownHook
}

func NewServer(cfg ServerConfig, handler http.Handler) *Server {
	return &Server{
		cfg:     cfg.withDefaults(),
		handler: handler,
		logger:  xglog.WithComponent("ops"),
	}
}

// Start listens and blocks until ctx is cancelled or the listener fails, then
// shuts down. An empty listen address only waits for ctx and runs hooks.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true

	errChan := make(chan error, 1)
	if s.cfg.ListenAddr != "" {
		ln, err := net.Listen("tcp", s.cfg.ListenAddr)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("ops server listen: %w", err)
		}
		s.addr = ln.Addr()
		s.srv = &http.Server{
			Handler:           s.handler,
			ReadHeaderTimeout: s.cfg.ReadTimeout / 2,
			ReadTimeout:       s.cfg.ReadTimeout,
		}
		srv := s.srv
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Str("event", "ops.server.failed").Msg("ops server failed")
				errChan <- fmt.Errorf("ops server: %w", err)
			}
		}()
		s.logger.Info().Str("addr", s.addr.String()).Msg("ops server listening")
	}
	s.mu.Unlock()

	shutdownCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	}
	select {
	case err := <-errChan:
		sctx, cancel := shutdownCtx()
		defer cancel()
		if shutdownErr := s.Shutdown(sctx); shutdownErr != nil {
			return fmt.Errorf("server error and shutdown failure: %w", errors.Join(err, shutdownErr))
		}
		return err
	case <-ctx.Done():
		sctx, cancel := shutdownCtx()
		defer cancel()
		return s.Shutdown(sctx)
	}
}

// Addr returns the bound address once listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Shutdown stops the listener and runs the hooks in reverse order.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	if !s.started {
		s.mu.Unlock()
		return ErrServerNotStarted
	}
	s.stopping = true
	srv := s.srv
	hooks := append([]namedHook(nil), s.hooks...)
	s.mu.Unlock()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ops server shutdown: %w", err))
		}
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(ctx); err != nil {
			s.logger.Error().Err(err).Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		s.logger.Debug().Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	s.logger.Info().Msg("ops server stopped cleanly")
	return nil
}

// RegisterShutdownHook registers a cleanup function to be called during shutdown.
func (s *Server) RegisterShutdownHook(name string, hook ShutdownHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, namedHook{name: name, hook: hook})
}
