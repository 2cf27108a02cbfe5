// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"fmt"
	"time"
)

const (
	EngineNative = "native"
	EngineFFmpeg = "ffmpeg"

	DefaultStopTimeout     = 10 * time.Second
	DefaultPlaylistRetries = 3
)

// Config is shared by all engine implementations.
type Config struct {
	Engine         string
	OutputDir      string
	OutputTemplate string

	// MaxPartSize and MaxPartDuration bound one output part; zero disables.
	MaxPartSize     int64
	MaxPartDuration time.Duration
	DuplicateFilter bool

	UserAgent     string
	Proxy         string
	StopTimeout   time.Duration
	StatsInterval time.Duration

	// PlaylistRetries is the number of consecutive playlist failures that end
	// an HLS capture.
	PlaylistRetries int
	// PlaylistInterval overrides the HLS reload interval derived from the
	// playlist target duration.
	PlaylistInterval time.Duration
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Engine == "" {
		c.Engine = EngineNative
	}
	if c.OutputTemplate == "" {
		c.OutputTemplate = DefaultOutputTemplate
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.PlaylistRetries <= 0 {
		c.PlaylistRetries = DefaultPlaylistRetries
	}
	return c
}

// Validate reports configuration errors wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	switch c.Engine {
	case EngineNative, EngineFFmpeg:
	default:
		return fmt.Errorf("%w: unknown engine %q", ErrInvalidConfig, c.Engine)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output directory is required", ErrInvalidConfig)
	}
	if c.MaxPartSize < 0 || c.MaxPartDuration < 0 {
		return fmt.Errorf("%w: negative part limit", ErrInvalidConfig)
	}
	return nil
}

// Namer returns the namer for the configured output layout.
func (c Config) Namer() Namer {
	return Namer{Dir: c.OutputDir, Template: c.OutputTemplate}
}
