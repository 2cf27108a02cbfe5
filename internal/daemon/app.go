// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package daemon wires the capture runtime together and owns its lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/streamrec/internal/config"
	"github.com/ManuGH/streamrec/internal/engine/factory"
	"github.com/ManuGH/streamrec/internal/events"
	"github.com/ManuGH/streamrec/internal/extractor"
	"github.com/ManuGH/streamrec/internal/health"
	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/platform"
	"github.com/ManuGH/streamrec/internal/platform/httpx"
	"github.com/ManuGH/streamrec/internal/ratelimit"
	"github.com/ManuGH/streamrec/internal/store"
	"github.com/ManuGH/streamrec/internal/streamer"
	"github.com/ManuGH/streamrec/internal/telemetry"
)

const probeTimeout = 15 * time.Second

// Options are process-level settings that do not live in the config file.
type Options struct {
	Version   string
	LogOutput io.Writer
}

// App owns the long-lived runtime: platform services, the event dispatcher,
// sinks, the ops server and config reloads.
type App struct {
	opts   Options
	holder *config.ConfigHolder
	logger zerolog.Logger

	supervisor *Supervisor
	dispatcher *streamer.Dispatcher
	registry   *platform.Registry
	health     *health.Manager
	server     *Server

	store     *store.Store
	publisher *events.Publisher
}

// New builds the runtime from the holder's current configuration. Nothing
// runs until Run is called.
func New(ctx context.Context, holder *config.ConfigHolder, opts Options) (a *App, err error) {
	cfg := holder.Get()
	a = &App{
		opts:     opts,
		holder:   holder,
		logger:   xglog.WithComponent("daemon"),
		registry: platform.NewRegistry(),
		health:   health.NewManager(opts.Version),
	}
	var hooks []namedHook
	defer func() {
		if err != nil {
			for i := len(hooks) - 1; i >= 0; i-- {
				_ = hooks[i].hook(context.WithoutCancel(ctx))
			}
		}
	}()

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return nil, err
	}

	tcfg := cfg.Telemetry
	tcfg.ServiceVersion = opts.Version
	tp, err := telemetry.NewProvider(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	hooks = append(hooks, namedHook{"telemetry", tp.Shutdown})

	var listeners []streamer.Listener
	if path := cfg.StorePath(); path != "" {
		st, err := store.Open(path)
		if err != nil {
			return nil, err
		}
		a.store = st
		hooks = append(hooks, namedHook{"store", func(context.Context) error { return st.Close() }})
		listeners = append(listeners, store.NewListener(st))
		a.health.RegisterChecker(health.NewFuncChecker("store", st.Check))
	}
	if cfg.Events.RedisAddr != "" {
		pub, err := events.New(ctx, events.Config{Addr: cfg.Events.RedisAddr, Channel: cfg.Events.Channel})
		if err != nil {
			return nil, err
		}
		a.publisher = pub
		hooks = append(hooks, namedHook{"events", func(context.Context) error { return pub.Close() }})
		listeners = append(listeners, pub)
		a.health.RegisterChecker(health.NewFuncChecker("events", pub.HealthCheck).Informational())
	}
	a.dispatcher = streamer.NewDispatcher(listeners...)
	// Hooks run in reverse, so queued events drain before the sinks close.
	dispatcher := a.dispatcher
	hooks = append(hooks, namedHook{"dispatcher", func(context.Context) error { dispatcher.Close(); return nil }})

	newEngine, err := factory.New(cfg.EngineConfig(), factory.Deps{FFmpeg: cfg.FFmpegOptions()})
	if err != nil {
		return nil, err
	}

	probeClient, err := httpx.NewStreamClient(httpx.StreamOptions{Proxy: cfg.Download.Proxy})
	if err != nil {
		return nil, fmt.Errorf("probe client: %w", err)
	}
	probeClient.Timeout = probeTimeout
	direct := extractor.NewDirect(probeClient, cfg.Download.UserAgent)
	mux := extractor.NewMux(direct)
	mux.Register(extractor.PlatformDirect, direct)

	slots := platform.NewSlots(cfg.MaxConcurrentDownloads)
	managerCfg := cfg.ManagerConfig()
	a.supervisor, err = NewSupervisor(SupervisorDeps{
		NewRunner: func(s streamer.Streamer) (platform.Runner, error) {
			return streamer.NewManager(s, managerCfg, streamer.Deps{
				Extractor:  mux,
				NewEngine:  newEngine,
				Slots:      slots,
				Dispatcher: dispatcher,
				OnProgress: a.registry.Update,
			})
		},
		Platform: cfg.Platform,
		Limiter:  ratelimit.New(ratelimit.Config{}),
		Registry: a.registry,
	})
	if err != nil {
		return nil, err
	}

	a.health.RegisterChecker(health.NewWritableDirChecker("output_dir", cfg.OutputDir()))

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = "streamrec-ops"
	}
	a.server = NewServer(ServerConfig{ListenAddr: cfg.Metrics.ListenAddr}, NewRouter(RouterDeps{
		Health:         a.health,
		Status:         a.supervisor.Status,
		TracingService: tracing,
	}))
	for _, h := range hooks {
		a.server.RegisterShutdownHook(h.name, h.hook)
	}
	hooks = nil
	return a, nil
}

// Supervisor exposes the platform services.
func (a *App) Supervisor() *Supervisor { return a.supervisor }

// Server exposes the ops server.
func (a *App) Server() *Server { return a.server }

// Run enqueues the configured streamers and blocks until ctx is cancelled.
// The ops server and sinks stay up until every manager has exited.
func (a *App) Run(ctx context.Context) error {
	cfg := a.holder.Get()
	reloads := make(chan config.Reload, 4)
	a.holder.RegisterListener(reloads)

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(context.WithoutCancel(ctx))
	defer stopServer()

	g.Go(func() error {
		defer stopServer()
		return a.supervisor.Run(gctx)
	})
	g.Go(func() error {
		if err := a.server.Start(serverCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := a.holder.Watch(gctx); err != nil {
			a.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watcher_start_failed").Msg("config watcher stopped")
		}
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case r := <-reloads:
				a.applyReload(r)
			}
		}
	})

	active := cfg.ActiveStreamers()
	if err := a.supervisor.EnqueueAll(active); err != nil {
		a.logger.Error().Err(err).Msg("some streamers could not be enqueued")
	}
	a.logger.Info().Int("streamers", len(active)).Str("version", a.opts.Version).Msg("daemon started")

	err := g.Wait()

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if serr := a.server.Shutdown(sctx); serr != nil && !errors.Is(serr, ErrServerNotStarted) {
		err = errors.Join(err, serr)
	}
	a.logger.Info().Msg("daemon stopped")
	return err
}

func (a *App) applyReload(r config.Reload) {
	if slices.Contains(r.Changes.ChangedFields, "logLevel") {
		xglog.Configure(xglog.Config{
			Level:   r.New.LogLevel,
			Output:  a.opts.LogOutput,
			Service: r.New.LogService,
			Version: a.opts.Version,
		})
		a.logger = xglog.WithComponent("daemon")
		a.logger.Info().Str("level", r.New.LogLevel).Msg("log level changed")
	}
	if r.Changes.RestartRequired {
		a.logger.Warn().Strs("changed", r.Changes.ChangedFields).Msg("some changes only apply after a restart")
	}
	if err := a.supervisor.Apply(r.Changes); err != nil {
		a.logger.Error().Err(err).Msg("applying streamer changes failed")
	}
}
