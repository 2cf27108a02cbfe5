// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/streamrec/internal/engine"
	"github.com/ManuGH/streamrec/internal/validate"
)

// Validate reports every problem in cfg at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		v.AddError("logLevel", "must be one of trace, debug, info, warn, error", cfg.LogLevel)
	}
	v.Directory("dataDir", cfg.DataDir, false)

	d := cfg.Download
	v.OneOf("download.engine", d.Engine, []string{engine.EngineNative, engine.EngineFFmpeg})
	v.NotEmpty("download.outputDir", d.OutputDir)
	v.NotEmpty("download.outputTemplate", d.OutputTemplate)
	v.NonNegative("download.maxPartSize", int64(d.MaxPartSize))
	v.MinDuration("download.maxPartDuration", d.MaxPartDuration, 10*time.Second, true)
	v.MinDuration("download.checkInterval", d.CheckInterval, time.Second, false)
	v.MinDuration("download.retryDelay", d.RetryDelay, 100*time.Millisecond, false)
	v.MinDuration("download.downloadCheckInterval", d.DownloadCheckInterval, time.Second, false)
	v.Range("download.maxRetries", d.MaxRetries, 1, 100)
	v.MinDuration("download.stopTimeout", d.StopTimeout, time.Second, false)
	v.Range("download.playlistRetries", d.PlaylistRetries, 1, 100)
	if d.Proxy != "" {
		v.URL("download.proxy", d.Proxy, []string{"http", "https", "socks5", "socks5h"})
	}

	if d.Engine == engine.EngineFFmpeg {
		v.NotEmpty("ffmpeg.bin", cfg.FFmpeg.Bin)
		if cfg.FFmpeg.VerifyCodec {
			v.MinDuration("ffmpeg.verifyInterval", cfg.FFmpeg.VerifyInterval, time.Second, true)
		}
	}

	v.NonNegative("maxConcurrentDownloads", int64(cfg.MaxConcurrentDownloads))
	for name, p := range cfg.Platforms {
		v.NotEmpty("platforms", name)
		v.MinDuration(fmt.Sprintf("platforms.%s.fetchDelay", name), p.FetchDelay, 0, true)
		v.NonNegative(fmt.Sprintf("platforms.%s.queueCapacity", name), int64(p.QueueCapacity))
	}

	seen := make(map[string]int, len(cfg.Streamers))
	for i, s := range cfg.Streamers {
		field := fmt.Sprintf("streamers[%d]", i)
		v.NotEmpty(field+".name", s.Name)
		v.URL(field+".url", s.URL, []string{"http", "https"})
		if s.MediaURL != "" {
			v.MediaURL(field+".mediaUrl", s.MediaURL)
		}
		if prev, dup := seen[s.URL]; dup && s.URL != "" {
			v.AddError(field+".url", fmt.Sprintf("duplicate of streamers[%d]", prev), s.URL)
		}
		seen[s.URL] = i
	}

	v.ListenAddr("metrics.listenAddr", cfg.Metrics.ListenAddr)
	if cfg.Events.RedisAddr != "" {
		v.NotEmpty("events.channel", cfg.Events.Channel)
	}
	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.ExporterType, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
	}

	return v.Err()
}
