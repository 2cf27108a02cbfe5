// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package procgroup runs capture helpers (ffmpeg, curl, ffprobe) in their own
// process group so a stop reaches the whole pipe chain.
package procgroup

import "errors"

var ErrKillFailed = errors.New("procgroup: kill operation failed")
