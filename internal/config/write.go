// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

var ErrExists = errors.New("config file already exists")

// Encode writes cfg as YAML.
func Encode(w io.Writer, cfg AppConfig) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// Save writes cfg to path atomically: readers see the old or the new file,
// never a partial one.
func Save(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o640))
	if err != nil {
		return fmt.Errorf("create pending config file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if err := Encode(pending, cfg); err != nil {
		return err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	return nil
}

// WriteDefault writes the default configuration with one example streamer to
// path. An existing file is kept unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	cfg := Defaults()
	cfg.DataDir = filepath.Join(filepath.Dir(path), "data")
	cfg.Platforms = map[string]PlatformConfig{
		DefaultPlatform: {FetchDelay: 0, QueueCapacity: 500},
	}
	cfg.Streamers = []StreamerConfig{{
		Name:     "example",
		URL:      "https://live.example.com/example",
		MediaURL: "https://cdn.example.com/live/example.flv",
		Disabled: true,
	}}
	return Save(path, cfg)
}
