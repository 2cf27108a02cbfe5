// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrec/internal/config"
	"github.com/ManuGH/streamrec/internal/engine"
	"github.com/ManuGH/streamrec/internal/log"
)

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// PerformStartupChecks validates the environment before any streamer starts.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	for _, dir := range []string{cfg.DataDir, cfg.OutputDir()} {
		if err := ensureDir(logger, dir); err != nil {
			return err
		}
	}

	if cfg.Download.Engine == engine.EngineFFmpeg {
		if err := checkBinary(logger, "ffmpeg", cfg.FFmpeg.Bin); err != nil {
			return err
		}
		if cfg.FFmpeg.UseCurl {
			if err := checkBinary(logger, "curl", cfg.FFmpeg.CurlBin); err != nil {
				return err
			}
		}
		if cfg.FFmpeg.VerifyCodec && cfg.FFmpeg.FFprobeBin == "" {
			logger.Warn().Msg("codec verification enabled but ffprobe not found; verification disabled")
		}
	}

	tempDir := filepath.Clean(os.TempDir())
	out := filepath.Clean(cfg.OutputDir())
	if tempDir != "." && (out == tempDir || strings.HasPrefix(out, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str("output_dir", out).
			Msg("output directory is under temp; recordings may be lost on reboot")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func ensureDir(logger zerolog.Logger, dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	if err := checkWritable(dir); err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", dir, err)
	}
	logger.Debug().Str("path", dir).Msg("directory is writable")
	return nil
}

func checkBinary(logger zerolog.Logger, what, bin string) error {
	if bin == "" {
		bin = what
	}
	path, err := lookPath(bin)
	if err != nil {
		return fmt.Errorf("%s binary not found (%s): %w", what, bin, err)
	}
	logger.Info().Str(what, path).Msg("binary available")
	return nil
}
