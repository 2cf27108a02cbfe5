// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"path/filepath"
	"strings"
)

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}

// ResolveFFprobeBin picks the ffprobe binary: an explicit setting wins, then a
// sibling of an absolute ffmpeg path if it exists, else "" for PATH lookup.
func ResolveFFprobeBin(ffprobeBin, ffmpegBin string) string {
	return resolveFFprobeBin(ffprobeBin, ffmpegBin, os.Stat)
}

func resolveFFprobeBin(ffprobeBin, ffmpegBin string, stat func(string) (os.FileInfo, error)) string {
	if bin := strings.TrimSpace(ffprobeBin); bin != "" {
		return bin
	}
	ffmpegBin = strings.TrimSpace(ffmpegBin)
	if !strings.ContainsRune(ffmpegBin, '/') || filepath.Base(ffmpegBin) != "ffmpeg" {
		return ""
	}
	sibling := filepath.Join(filepath.Dir(ffmpegBin), "ffprobe")
	if fi, err := stat(sibling); err == nil && !fi.IsDir() {
		return sibling
	}
	return ""
}
