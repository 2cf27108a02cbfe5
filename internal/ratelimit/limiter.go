// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ratelimit paces how fast streamers are admitted and probed.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var admissionDelayed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "streamrec",
	Name:      "ratelimit_delayed_total",
	Help:      "Admissions that had to wait for the pacer",
}, []string{"key"})

// Config holds pacing configuration.
type Config struct {
	// Interval is the minimum spacing between two admissions of one key.
	// Zero disables per-key pacing.
	Interval time.Duration
	Burst    int

	// GlobalRate bounds admissions across all keys. Zero disables it.
	GlobalRate  rate.Limit
	GlobalBurst int
}

// Limiter paces admissions per key (platform) and globally.
type Limiter struct {
	config Config
	global *rate.Limiter

	mu    sync.Mutex
	perID map[string]*rate.Limiter
}

// New creates a limiter.
func New(config Config) *Limiter {
	if config.Burst < 1 {
		config.Burst = 1
	}
	if config.GlobalBurst < 1 {
		config.GlobalBurst = 1
	}
	l := &Limiter{config: config, perID: make(map[string]*rate.Limiter)}
	if config.GlobalRate > 0 {
		l.global = rate.NewLimiter(config.GlobalRate, config.GlobalBurst)
	}
	return l
}

func (l *Limiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.perID[key]
	if !ok {
		r := rate.Inf
		if l.config.Interval > 0 {
			r = rate.Every(l.config.Interval)
		}
		lim = rate.NewLimiter(r, l.config.Burst)
		l.perID[key] = lim
	}
	return lim
}

// Wait blocks until key may be admitted and returns how long it waited.
func (l *Limiter) Wait(ctx context.Context, key string) (time.Duration, error) {
	start := time.Now()
	if l.global != nil {
		if err := l.global.Wait(ctx); err != nil {
			return time.Since(start), err
		}
	}
	if err := l.limiter(key).Wait(ctx); err != nil {
		return time.Since(start), err
	}
	waited := time.Since(start)
	if waited > time.Millisecond {
		admissionDelayed.WithLabelValues(key).Inc()
	}
	return waited, nil
}

// SetKeyInterval overrides the spacing of one key. Zero or negative
// disables pacing for it.
func (l *Limiter) SetKeyInterval(key string, d time.Duration) {
	r := rate.Inf
	if d > 0 {
		r = rate.Every(d)
	}
	l.limiter(key).SetLimit(r)
}
