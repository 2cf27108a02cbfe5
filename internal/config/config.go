// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the daemon configuration from defaults, a YAML file and
// STREAMREC_* environment variables, in increasing precedence.
package config

import (
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/streamrec/internal/engine"
	"github.com/ManuGH/streamrec/internal/engine/ffmpeg"
	"github.com/ManuGH/streamrec/internal/streamer"
	"github.com/ManuGH/streamrec/internal/telemetry"
)

// ConfigVersion is the current file schema version.
const ConfigVersion = "1"

// AppConfig is the resolved daemon configuration.
type AppConfig struct {
	Version       string `yaml:"-"`
	ConfigVersion string `yaml:"configVersion,omitempty"`

	DataDir    string `yaml:"dataDir"`
	LogLevel   string `yaml:"logLevel"`
	LogService string `yaml:"logService,omitempty"`

	Download DownloadConfig `yaml:"download"`
	FFmpeg   FFmpegConfig   `yaml:"ffmpeg"`

	// MaxConcurrentDownloads bounds live captures across all platforms;
	// zero means unbounded.
	MaxConcurrentDownloads int `yaml:"maxConcurrentDownloads"`

	Platforms map[string]PlatformConfig `yaml:"platforms,omitempty"`
	Streamers []StreamerConfig          `yaml:"streamers"`

	Metrics   MetricsConfig    `yaml:"metrics"`
	Store     StoreConfig      `yaml:"store"`
	Events    EventsConfig     `yaml:"events"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// DownloadConfig is the capture policy shared by all streamers.
type DownloadConfig struct {
	Engine          string        `yaml:"engine"`
	OutputDir       string        `yaml:"outputDir"`
	OutputTemplate  string        `yaml:"outputTemplate"`
	MaxPartSize     ByteSize      `yaml:"maxPartSize"`
	MaxPartDuration time.Duration `yaml:"maxPartDuration"`

	CheckInterval         time.Duration `yaml:"checkInterval"`
	RetryDelay            time.Duration `yaml:"retryDelay"`
	MaxRetries            int           `yaml:"maxRetries"`
	DownloadCheckInterval time.Duration `yaml:"downloadCheckInterval"`

	DuplicateFilter bool          `yaml:"duplicateFilter"`
	UserAgent       string        `yaml:"userAgent"`
	Proxy           string        `yaml:"proxy,omitempty"`
	StopTimeout     time.Duration `yaml:"stopTimeout"`
	StatsInterval   time.Duration `yaml:"statsInterval"`
	PlaylistRetries int           `yaml:"playlistRetries"`
}

// FFmpegConfig configures the subprocess engine.
type FFmpegConfig struct {
	Bin            string        `yaml:"bin"`
	FFprobeBin     string        `yaml:"ffprobeBin,omitempty"`
	UseCurl        bool          `yaml:"useCurl"`
	CurlBin        string        `yaml:"curlBin,omitempty"`
	VerifyCodec    bool          `yaml:"verifyCodec"`
	VerifyInterval time.Duration `yaml:"verifyInterval"`
}

// PlatformConfig is the admission policy of one platform.
type PlatformConfig struct {
	FetchDelay    time.Duration `yaml:"fetchDelay"`
	QueueCapacity int           `yaml:"queueCapacity"`
}

// StreamerConfig is one monitored channel.
type StreamerConfig struct {
	Name     string            `yaml:"name"`
	URL      string            `yaml:"url"`
	Platform string            `yaml:"platform,omitempty"`
	MediaURL string            `yaml:"mediaUrl,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	Disabled bool              `yaml:"disabled,omitempty"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

type StoreConfig struct {
	// Path of the sqlite database; empty disables persistence.
	Path string `yaml:"path"`
}

type EventsConfig struct {
	// RedisAddr enables the post-processing event publisher.
	RedisAddr string `yaml:"redisAddr,omitempty"`
	Channel   string `yaml:"channel"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: ConfigVersion,
		DataDir:       "/var/lib/streamrec",
		LogLevel:      "info",
		Download: DownloadConfig{
			Engine:                engine.EngineNative,
			OutputDir:             "recordings",
			OutputTemplate:        engine.DefaultOutputTemplate,
			MaxPartSize:           2 << 30,
			CheckInterval:         streamer.DefaultCheckInterval,
			RetryDelay:            streamer.DefaultRetryDelay,
			MaxRetries:            streamer.DefaultMaxRetries,
			DownloadCheckInterval: streamer.DefaultDownloadCheckInterval,
			DuplicateFilter:       true,
			UserAgent:             "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
			StopTimeout:           engine.DefaultStopTimeout,
			StatsInterval:         5 * time.Second,
			PlaylistRetries:       engine.DefaultPlaylistRetries,
		},
		FFmpeg: FFmpegConfig{
			Bin:            "ffmpeg",
			VerifyInterval: ffmpeg.DefaultVerifyInterval,
		},
		MaxConcurrentDownloads: 8,
		Metrics:                MetricsConfig{ListenAddr: ":9464"},
		Store:                  StoreConfig{Path: "streamrec.db"},
		Events:                 EventsConfig{Channel: "streamrec:events"},
		Telemetry: telemetry.Config{
			ServiceName:  "streamrec",
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// EngineConfig maps the download section onto the engine configuration.
func (c AppConfig) EngineConfig() engine.Config {
	d := c.Download
	return engine.Config{
		Engine:          d.Engine,
		OutputDir:       c.OutputDir(),
		OutputTemplate:  d.OutputTemplate,
		MaxPartSize:     int64(d.MaxPartSize),
		MaxPartDuration: d.MaxPartDuration,
		DuplicateFilter: d.DuplicateFilter,
		UserAgent:       d.UserAgent,
		Proxy:           d.Proxy,
		StopTimeout:     d.StopTimeout,
		StatsInterval:   d.StatsInterval,
		PlaylistRetries: d.PlaylistRetries,
	}
}

// FFmpegOptions maps the ffmpeg section onto the subprocess engine options.
func (c AppConfig) FFmpegOptions() ffmpeg.Options {
	return ffmpeg.Options{
		Bin:            c.FFmpeg.Bin,
		ProbeBin:       c.FFmpeg.FFprobeBin,
		UseCurl:        c.FFmpeg.UseCurl,
		CurlBin:        c.FFmpeg.CurlBin,
		VerifyCodec:    c.FFmpeg.VerifyCodec,
		VerifyInterval: c.FFmpeg.VerifyInterval,
	}
}

// ManagerConfig maps the polling policy onto the streamer manager.
func (c AppConfig) ManagerConfig() streamer.Config {
	return streamer.Config{
		CheckInterval:         c.Download.CheckInterval,
		RetryDelay:            c.Download.RetryDelay,
		DownloadCheckInterval: c.Download.DownloadCheckInterval,
		MaxRetries:            c.Download.MaxRetries,
	}
}

// Platform returns the admission policy of name, falling back to defaults.
func (c AppConfig) Platform(name string) PlatformConfig {
	if p, ok := c.Platforms[name]; ok {
		return p
	}
	return PlatformConfig{}
}

// OutputDir resolves a relative output directory against DataDir.
func (c AppConfig) OutputDir() string {
	return resolvePath(c.DataDir, c.Download.OutputDir)
}

// StorePath resolves the sqlite path against DataDir; empty stays empty.
func (c AppConfig) StorePath() string {
	if c.Store.Path == "" {
		return ""
	}
	return resolvePath(c.DataDir, c.Store.Path)
}

// ActiveStreamers returns the enabled streamers.
func (c AppConfig) ActiveStreamers() []streamer.Streamer {
	out := make([]streamer.Streamer, 0, len(c.Streamers))
	for _, sc := range c.Streamers {
		if sc.Disabled {
			continue
		}
		out = append(out, sc.Streamer())
	}
	return out
}

// Streamer converts the entry into a streamer with a stable id derived from
// its URL.
func (sc StreamerConfig) Streamer() streamer.Streamer {
	platform := sc.Platform
	if platform == "" {
		platform = DefaultPlatform
	}
	return streamer.Streamer{
		ID:       uuid.NewSHA1(uuid.NameSpaceURL, []byte(sc.URL)).String(),
		Name:     sc.Name,
		URL:      sc.URL,
		Platform: platform,
		MediaURL: sc.MediaURL,
		Headers:  sc.Headers,
	}
}

// DefaultPlatform is used for streamers without an explicit platform.
const DefaultPlatform = "direct"
