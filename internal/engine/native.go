// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/metrics"
	"github.com/ManuGH/streamrec/internal/pipeline"
	"github.com/ManuGH/streamrec/internal/telemetry"
)

// Native downloads FLV and HLS streams in-process.
type Native struct {
	cfg    Config
	client *http.Client
	namer  Namer
	log    zerolog.Logger
	now    func() time.Time

	mu  sync.Mutex
	cur *attempt
}

type attempt struct {
	cancel context.CancelFunc
	done   chan struct{}
	// guarded by Native.mu
	body       io.Closer
	stopReason string
}

// NewNative returns a native engine. client must not carry an overall timeout.
func NewNative(cfg Config, client *http.Client) *Native {
	cfg = cfg.WithDefaults()
	return &Native{
		cfg:    cfg,
		client: client,
		namer:  cfg.Namer(),
		log:    xglog.WithComponent("engine"),
		now:    time.Now,
	}
}

func (n *Native) Name() string { return EngineNative }

// Start runs one attempt and blocks until the source ends, fails or is stopped.
func (n *Native) Start(ctx context.Context, req Request) (res Result, err error) {
	if err := CheckMediaURL(req.Media.URL); err != nil {
		return res, err
	}

	actx, cancel := context.WithCancel(ctx)
	a := &attempt{cancel: cancel, done: make(chan struct{})}
	n.mu.Lock()
	if n.cur != nil {
		n.mu.Unlock()
		cancel()
		return res, ErrBusy
	}
	n.cur = a
	n.mu.Unlock()
	defer func() {
		cancel()
		n.mu.Lock()
		n.cur = nil
		n.mu.Unlock()
		close(a.done)
	}()

	res.Session = Session{
		ID:             uuid.NewString(),
		Streamer:       req.Streamer,
		Platform:       req.Platform,
		URL:            req.Media.URL,
		OutputTemplate: n.namer.Template,
		StartedAt:      n.now(),
	}
	actx = xglog.ContextWithStreamer(actx, req.Streamer, req.Platform)
	actx = xglog.ContextWithSessionID(actx, res.Session.ID)
	logger := xglog.WithContext(actx, n.log)
	actx, span := telemetry.StartCapture(actx, telemetry.CaptureAttributes(req.Streamer, req.Platform, res.Session.ID, n.Name())...)
	defer func() {
		class := Classify(err)
		metrics.RecordEngineAttempt(n.Name(), class.String())
		telemetry.EndCapture(span, len(res.Segments), res.Session.Bytes, res.StreamEnded, class.String(), err)
	}()

	logger.Info().Str(xglog.FieldURL, RedactURL(req.Media.URL)).Msg("capture started")

	resp, err := n.get(actx, req.Media.URL, req.Media.Headers)
	if err != nil {
		return res, n.stopped(a, err)
	}
	n.track(a, resp.Body)

	format := DetectFormat(req.Media.Format, resp.Header.Get("Content-Type"), req.Media.URL)
	logger = logger.With().Str(xglog.FieldFormat, string(format)).Logger()

	switch format {
	case FormatFLV:
		var r pipeline.Result
		r, err = pipeline.Run(actx, resp.Body, n.pipelineOptions(req, format, &logger))
		_ = resp.Body.Close()
		res.Segments, res.Session.Bytes = r.Segments, r.Bytes
	case FormatHLS:
		h := &hlsCapture{n: n, a: a, req: req, log: logger}
		res.Segments, res.Session.Bytes, err = h.run(actx, resp)
	default:
		_ = resp.Body.Close()
		return res, fmt.Errorf("%w: content type %q", ErrUnsupportedFormat, resp.Header.Get("Content-Type"))
	}
	res.StreamEnded = true

	err = n.stopped(a, err)
	if err != nil && len(res.Segments) > 0 {
		logger.Warn().Err(err).Int("segments", len(res.Segments)).Msg("capture ended with error, keeping segments")
	} else if err == nil {
		logger.Info().Int("segments", len(res.Segments)).Int64(xglog.FieldBytes, res.Session.Bytes).Msg("capture finished")
	}
	return res, Finish(res.Segments, err)
}

// Stop cancels the running attempt and waits up to the stop timeout. On
// timeout the connection is closed forcefully and false is returned.
func (n *Native) Stop(reason string) bool {
	n.mu.Lock()
	a := n.cur
	if a != nil {
		a.stopReason = reason
	}
	n.mu.Unlock()
	if a == nil {
		return true
	}
	n.log.Info().Str(xglog.FieldReason, reason).Msg("stopping capture")
	a.cancel()

	timer := time.NewTimer(n.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-a.done:
		return true
	case <-timer.C:
	}

	n.mu.Lock()
	body := a.body
	n.mu.Unlock()
	if body != nil {
		_ = body.Close()
	}
	n.log.Warn().Str(xglog.FieldReason, reason).Dur("timeout", n.cfg.StopTimeout).Msg("capture did not stop in time, connection closed")
	return false
}

func (n *Native) track(a *attempt, body io.Closer) {
	n.mu.Lock()
	a.body = body
	n.mu.Unlock()
}

// stopped replaces the cancellation error of a stopped attempt with ErrStopped.
func (n *Native) stopped(a *attempt, err error) error {
	if err == nil || !errors.Is(err, context.Canceled) {
		return err
	}
	n.mu.Lock()
	reason := a.stopReason
	n.mu.Unlock()
	if reason == "" {
		return err
	}
	return fmt.Errorf("%w: %s", ErrStopped, reason)
}

func (n *Native) get(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	if n.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", n.cfg.UserAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", RedactURL(rawURL), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, URL: RedactURL(rawURL)}
	}
	return resp, nil
}

func (n *Native) pipelineOptions(req Request, format Format, logger *zerolog.Logger) pipeline.Options {
	name := n.Name()
	return pipeline.Options{
		Path: n.namer.PathFunc(NameFields{
			Streamer: req.Streamer,
			Title:    req.Title,
			Platform: req.Platform,
		}, format.Extension()),
		FirstIndex:      req.FirstIndex,
		MaxSize:         n.cfg.MaxPartSize,
		MaxDuration:     n.cfg.MaxPartDuration,
		DuplicateFilter: n.cfg.DuplicateFilter,
		StatsInterval:   n.cfg.StatsInterval,
		Logger:          logger,
		Now:             n.now,
		OnSegment: func(s pipeline.Segment) {
			metrics.ObserveSegment(req.Platform, name, s.Duration)
			metrics.AddBytesWritten(req.Platform, s.Size)
			if req.Callbacks.OnSegment != nil {
				req.Callbacks.OnSegment(s)
			}
		},
		OnProgress: func(p pipeline.Progress) {
			if req.Callbacks.OnProgress != nil {
				req.Callbacks.OnProgress(Progress{Bytes: p.Bytes, Bitrate: p.Bitrate, Segments: p.Segments})
			}
		},
	}
}

// CheckMediaURL rejects URLs no engine can download.
func CheckMediaURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty media url", ErrUnsupportedURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrUnsupportedURL)
	}
	return nil
}

// RedactURL drops query and credentials, which often carry access tokens.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
