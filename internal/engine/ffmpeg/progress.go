// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ffmpeg

import (
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/streamrec/internal/engine"
)

// ProgressParser accumulates the key=value lines written by -progress and
// yields a snapshot at the end of each block.
type ProgressParser struct {
	cur  engine.Progress
	last engine.Progress
	done bool
}

// Feed consumes one line. It returns a snapshot and true when the line closes a
// block ("progress=continue" or "progress=end").
func (p *ProgressParser) Feed(line string) (engine.Progress, bool) {
	key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return engine.Progress{}, false
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)

	switch key {
	case "total_size":
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n >= 0 {
			p.cur.Bytes = n
		}
	case "out_time_us", "out_time_ms":
		// out_time_ms is in microseconds as well.
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n >= 0 {
			p.cur.OutTime = time.Duration(n) * time.Microsecond
		}
	case "out_time":
		if d, ok := parseClock(val); ok && p.cur.OutTime == 0 {
			p.cur.OutTime = d
		}
	case "bitrate":
		p.cur.Bitrate = parseBitrate(val)
	case "speed":
		if f, err := strconv.ParseFloat(strings.TrimSuffix(val, "x"), 64); err == nil {
			p.cur.Speed = f
		}
	case "progress":
		p.last = p.cur
		p.done = val == "end"
		p.cur = engine.Progress{Bytes: p.last.Bytes, OutTime: p.last.OutTime}
		return p.last, true
	}
	return engine.Progress{}, false
}

// Last returns the most recent complete snapshot.
func (p *ProgressParser) Last() engine.Progress { return p.last }

// Ended reports whether the final block ("progress=end") was seen.
func (p *ProgressParser) Ended() bool { return p.done }

// parseBitrate converts "1234.5kbits/s" to bits per second.
func parseBitrate(s string) float64 {
	s = strings.TrimSuffix(s, "/s")
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "kbits"):
		s, mult = strings.TrimSuffix(s, "kbits"), 1e3
	case strings.HasSuffix(s, "Mbits"):
		s, mult = strings.TrimSuffix(s, "Mbits"), 1e6
	case strings.HasSuffix(s, "bits"):
		s = strings.TrimSuffix(s, "bits")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return f * mult
}

// parseClock parses HH:MM:SS.micro.
func parseClock(s string) (time.Duration, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil || h < 0 || m < 0 || sec < 0 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec*float64(time.Second)), true
}
