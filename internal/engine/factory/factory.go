// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package factory selects and builds capture engines from configuration.
package factory

import (
	"fmt"
	"net/http"

	"github.com/ManuGH/streamrec/internal/engine"
	"github.com/ManuGH/streamrec/internal/engine/ffmpeg"
	"github.com/ManuGH/streamrec/internal/platform/httpx"
)

// Deps are the shared resources engines are built with.
type Deps struct {
	// Client is used by native engines. Nil builds a stream client from the
	// configured proxy.
	Client *http.Client
	FFmpeg ffmpeg.Options
}

// Factory builds a fresh engine per streamer.
type Factory func() (engine.Engine, error)

// New validates cfg and returns a factory for the configured engine.
func New(cfg engine.Config, deps Deps) (Factory, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Engine {
	case engine.EngineNative:
		client := deps.Client
		if client == nil {
			var err error
			client, err = httpx.NewStreamClient(httpx.StreamOptions{Proxy: cfg.Proxy})
			if err != nil {
				return nil, fmt.Errorf("%w: %v", engine.ErrInvalidConfig, err)
			}
		}
		return func() (engine.Engine, error) {
			return engine.NewNative(cfg, client), nil
		}, nil
	case engine.EngineFFmpeg:
		opts := deps.FFmpeg
		return func() (engine.Engine, error) {
			return ffmpeg.New(cfg, opts), nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", engine.ErrInvalidConfig, cfg.Engine)
	}
}
