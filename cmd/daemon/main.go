// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command daemon monitors the configured streamers and records them while live.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ManuGH/streamrec/internal/config"
	"github.com/ManuGH/streamrec/internal/daemon"
	"github.com/ManuGH/streamrec/internal/engine"
	xglog "github.com/ManuGH/streamrec/internal/log"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:], os.Stdout, os.Stderr))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:], os.Stdout, os.Stderr))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	envFile := flag.String("env-file", "", "dotenv file with STREAMREC_* overrides (default ./.env if present)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	xglog.Configure(xglog.Config{Level: "info", Service: "streamrec", Version: version})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	envPath, err := config.LoadEnvFile(*envFile)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "config.env_file_failed").Msg("failed to load env file")
	}
	if envPath != "" {
		logger.Info().Str("path", envPath).Msg("environment seeded from env file")
	}

	path := resolveConfigPath(*configPath)
	loader := config.NewLoader(path, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}

	service := cfg.LogService
	if service == "" {
		service = "streamrec"
	}
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: service, Version: version})
	logger = xglog.WithComponent("daemon")

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str("event", "config.loaded").
		Str("source", source).
		Str("path", path).
		Msg("configuration loaded")
	for _, key := range loader.UnknownEnvKeys() {
		logger.Warn().Str("key", key).Msg("unknown environment variable ignored")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("engine", cfg.Download.Engine).
		Str("output_dir", cfg.OutputDir()).
		Int("streamers", len(cfg.ActiveStreamers())).
		Int("max_concurrent_downloads", cfg.MaxConcurrentDownloads).
		Msg("starting streamrec")
	if cfg.Download.Proxy != "" {
		logger.Info().Str("proxy", engine.RedactURL(cfg.Download.Proxy)).Msg("using download proxy")
	}

	holder := config.NewConfigHolder(cfg, loader)
	app, err := daemon.New(ctx, holder, daemon.Options{Version: version})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.failed").
			Msg("failed to initialise daemon")
	}
	if err := app.Run(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon failed")
	}
	logger.Info().Msg("daemon exiting")
}

// resolveConfigPath prefers an explicit path, then $STREAMREC_DATA_DIR/config.yaml
// when it exists.
func resolveConfigPath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	dataDir := strings.TrimSpace(config.ParseString(config.EnvPrefix+"DATA_DIR", ""))
	if dataDir == "" {
		return ""
	}
	auto := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(auto); err == nil {
		return auto
	}
	return ""
}
