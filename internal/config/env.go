// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrec/internal/log"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STREAMREC_"

// ParseString reads key from the environment or returns defaultValue.
func ParseString(key, defaultValue string) string {
	return parseStringWithLogger(log.WithComponent("config"), key, defaultValue)
}

func parseStringWithLogger(logger zerolog.Logger, key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		logger.Debug().Str("key", key).Str("default", defaultValue).Str("source", "default").Msg("using default value")
		return defaultValue
	}
	lower := strings.ToLower(key)
	if strings.Contains(lower, "proxy") || strings.Contains(lower, "password") || strings.Contains(lower, "token") {
		logger.Debug().Str("key", key).Bool("sensitive", true).Str("source", "environment").Msg("using environment variable")
	} else {
		logger.Debug().Str("key", key).Str("value", value).Str("source", "environment").Msg("using environment variable")
	}
	return value
}

// ParseInt reads an integer, falling back to defaultValue on parse errors.
func ParseInt(key string, defaultValue int) int {
	return parseEnv(key, defaultValue, strconv.Atoi, "integer")
}

// ParseDuration reads a Go duration such as "30s".
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(key, defaultValue, time.ParseDuration, "duration")
}

// ParseBool accepts true/false, 1/0 and yes/no in any case.
func ParseBool(key string, defaultValue bool) bool {
	return parseEnv(key, defaultValue, parseBool, "boolean")
}

// ParseFloat reads a float64.
func ParseFloat(key string, defaultValue float64) float64 {
	return parseEnv(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	}, "float")
}

// ParseSize reads a byte size such as "512MiB".
func ParseSize(key string, defaultValue ByteSize) ByteSize {
	return parseEnv(key, defaultValue, ParseByteSize, "size")
}

func parseEnv[T any](key string, defaultValue T, parse func(string) (T, error), kind string) T {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logger.Debug().Str("key", key).Interface("default", defaultValue).Str("source", "default").Msg("using default value")
		return defaultValue
	}
	parsed, err := parse(v)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Interface("default", defaultValue).Msgf("invalid %s in environment variable, using default", kind)
		return defaultValue
	}
	logger.Debug().Str("key", key).Interface("value", parsed).Str("source", "environment").Msg("using environment variable")
	return parsed
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, strconv.ErrSyntax
}

// applyEnv overrides cfg with STREAMREC_* variables and records the keys it
// consulted.
func (l *Loader) applyEnv(cfg *AppConfig) {
	str := func(name string, dst *string) { *dst = l.envString(name, *dst) }
	dur := func(name string, dst *time.Duration) { *dst = l.envDuration(name, *dst) }
	num := func(name string, dst *int) { *dst = l.envInt(name, *dst) }
	flag := func(name string, dst *bool) { *dst = l.envBool(name, *dst) }

	str("DATA_DIR", &cfg.DataDir)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_SERVICE", &cfg.LogService)

	d := &cfg.Download
	str("ENGINE", &d.Engine)
	str("OUTPUT_DIR", &d.OutputDir)
	str("OUTPUT_TEMPLATE", &d.OutputTemplate)
	d.MaxPartSize = l.envSize("MAX_PART_SIZE", d.MaxPartSize)
	dur("MAX_PART_DURATION", &d.MaxPartDuration)
	dur("CHECK_INTERVAL", &d.CheckInterval)
	dur("RETRY_DELAY", &d.RetryDelay)
	num("MAX_RETRIES", &d.MaxRetries)
	dur("DOWNLOAD_CHECK_INTERVAL", &d.DownloadCheckInterval)
	flag("DUPLICATE_FILTER", &d.DuplicateFilter)
	str("USER_AGENT", &d.UserAgent)
	str("PROXY", &d.Proxy)
	dur("STOP_TIMEOUT", &d.StopTimeout)
	dur("STATS_INTERVAL", &d.StatsInterval)
	num("PLAYLIST_RETRIES", &d.PlaylistRetries)

	f := &cfg.FFmpeg
	str("FFMPEG_BIN", &f.Bin)
	str("FFPROBE_BIN", &f.FFprobeBin)
	flag("FFMPEG_USE_CURL", &f.UseCurl)
	str("CURL_BIN", &f.CurlBin)
	flag("FFMPEG_VERIFY_CODEC", &f.VerifyCodec)
	dur("FFMPEG_VERIFY_INTERVAL", &f.VerifyInterval)

	num("MAX_CONCURRENT_DOWNLOADS", &cfg.MaxConcurrentDownloads)
	str("METRICS_LISTEN", &cfg.Metrics.ListenAddr)
	str("STORE_PATH", &cfg.Store.Path)
	str("REDIS_ADDR", &cfg.Events.RedisAddr)
	str("REDIS_CHANNEL", &cfg.Events.Channel)

	t := &cfg.Telemetry
	flag("TELEMETRY_ENABLED", &t.Enabled)
	str("TELEMETRY_EXPORTER", &t.ExporterType)
	str("TELEMETRY_ENDPOINT", &t.Endpoint)
	t.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", t.SamplingRate)
}

func (l *Loader) track(name string) string {
	key := EnvPrefix + name
	l.ConsumedEnvKeys[key] = struct{}{}
	return key
}

func (l *Loader) envString(name, def string) string { return ParseString(l.track(name), def) }

func (l *Loader) envInt(name string, def int) int { return ParseInt(l.track(name), def) }

func (l *Loader) envBool(name string, def bool) bool { return ParseBool(l.track(name), def) }

func (l *Loader) envDuration(name string, def time.Duration) time.Duration {
	return ParseDuration(l.track(name), def)
}

func (l *Loader) envFloat(name string, def float64) float64 { return ParseFloat(l.track(name), def) }

func (l *Loader) envSize(name string, def ByteSize) ByteSize { return ParseSize(l.track(name), def) }

// UnknownEnvKeys returns STREAMREC_* variables that no setting consumed,
// usually typos.
func (l *Loader) UnknownEnvKeys() []string {
	var out []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			out = append(out, key)
		}
	}
	return out
}
