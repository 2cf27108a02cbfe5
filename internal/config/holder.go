// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/streamrec/internal/log"
)

const reloadDebounce = 500 * time.Millisecond

// Reload is delivered to listeners after a successful reload.
type Reload struct {
	Old, New AppConfig
	Changes  ChangeSummary
}

// ConfigHolder holds the current configuration and swaps it atomically on
// reload. A failed reload keeps the previous configuration.
type ConfigHolder struct {
	mu      sync.RWMutex
	current AppConfig
	loader  *Loader
	logger  zerolog.Logger

	reloadMu  sync.Mutex
	listeners []chan<- Reload
}

func NewConfigHolder(initial AppConfig, loader *Loader) *ConfigHolder {
	return &ConfigHolder{
		current: initial,
		loader:  loader,
		logger:  xglog.WithComponent("config"),
	}
}

// Get returns the current configuration.
func (h *ConfigHolder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// RegisterListener adds ch to the reload notifications. Sends never block: a
// full channel misses the notification.
func (h *ConfigHolder) RegisterListener(ch chan<- Reload) {
	h.reloadMu.Lock()
	h.listeners = append(h.listeners, ch)
	h.reloadMu.Unlock()
}

// Reload loads and validates the configuration, then swaps it in.
func (h *ConfigHolder) Reload(_ context.Context) error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	h.logger.Info().Str(xglog.FieldEvent, "config.reload_start").Msg("reloading configuration")
	next, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Str(xglog.FieldEvent, "config.reload_failed").Msg("configuration reload failed, keeping previous")
		return fmt.Errorf("reload: %w", err)
	}

	h.mu.Lock()
	old := h.current
	h.current = next
	h.mu.Unlock()

	changes := Diff(old, next)
	ev := h.logger.Info().Str(xglog.FieldEvent, "config.reload_success").
		Strs("changed", changes.ChangedFields).
		Int("streamers_added", len(changes.Added)).
		Int("streamers_removed", len(changes.Removed))
	if changes.RestartRequired {
		ev = ev.Bool("restart_required", true)
	}
	ev.Msg("configuration reloaded")

	r := Reload{Old: old, New: next, Changes: changes}
	for _, ch := range h.listeners {
		select {
		case ch <- r:
		default:
			h.logger.Warn().Str(xglog.FieldEvent, "config.listener_skip").Msg("skipped reload listener (channel full)")
		}
	}
	return nil
}

// Watch reloads on SIGHUP and on changes to the config file until ctx is
// done. Without a config file only SIGHUP is handled.
func (h *ConfigHolder) Watch(ctx context.Context) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
		target string
	)
	if path := h.loader.Path(); path != "" {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer func() { _ = w.Close() }()
		// Watch the directory: editors and renameio replace the file.
		target = filepath.Clean(path)
		if err := w.Add(filepath.Dir(target)); err != nil {
			return fmt.Errorf("watch config dir: %w", err)
		}
		events, errs = w.Events, w.Errors
		h.logger.Info().Str(xglog.FieldEvent, "config.watcher_started").Str(xglog.FieldPath, target).Msg("watching config file for changes")
	}

	var debounce *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str(xglog.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			return nil
		case <-hup:
			h.logger.Info().Str(xglog.FieldEvent, "config.sighup").Msg("SIGHUP received")
			_ = h.Reload(ctx)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			_ = h.Reload(ctx)
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			h.logger.Error().Err(err).Str(xglog.FieldEvent, "config.watcher_error").Msg("config watcher error")
		}
	}
}
