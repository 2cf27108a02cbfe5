// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ffmpeg captures streams by running ffmpeg as a subprocess, one part
// per invocation.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrec/internal/engine"
	"github.com/ManuGH/streamrec/internal/flv"
	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/metrics"
	"github.com/ManuGH/streamrec/internal/pipeline"
	"github.com/ManuGH/streamrec/internal/procgroup"
	"github.com/ManuGH/streamrec/internal/telemetry"
)

const (
	DefaultVerifyInterval = 30 * time.Second

	// minPartSize is the size below which a part without progress is
	// considered empty.
	minPartSize = 4096
)

const (
	abortStop       = "stop"
	abortCancel     = "cancel"
	abortResolution = "resolution_change"
)

// Options configures the helper binaries.
type Options struct {
	Bin            string
	ProbeBin       string
	UseCurl        bool
	CurlBin        string
	VerifyCodec    bool
	VerifyInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Bin == "" {
		o.Bin = "ffmpeg"
	}
	if o.ProbeBin == "" {
		o.ProbeBin = "ffprobe"
	}
	if o.CurlBin == "" {
		o.CurlBin = "curl"
	}
	if o.VerifyInterval <= 0 {
		o.VerifyInterval = DefaultVerifyInterval
	}
	return o
}

// Engine implements engine.Engine on top of ffmpeg.
type Engine struct {
	cfg   engine.Config
	opts  Options
	namer engine.Namer
	log   zerolog.Logger
	now   func() time.Time
	probe func(ctx context.Context, in InputSpec) (Resolution, error)

	mu  sync.Mutex
	cur *run
}

type run struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	reason   string // guarded by Engine.mu
	forced   bool   // written before done is closed
}

// New returns a subprocess engine.
func New(cfg engine.Config, opts Options) *Engine {
	cfg = cfg.WithDefaults()
	opts = opts.withDefaults()
	e := &Engine{
		cfg:   cfg,
		opts:  opts,
		namer: cfg.Namer(),
		log:   xglog.WithComponent("ffmpeg"),
		now:   time.Now,
	}
	e.probe = func(ctx context.Context, in InputSpec) (Resolution, error) {
		return Probe(ctx, e.opts.ProbeBin, in)
	}
	return e
}

func (e *Engine) Name() string { return engine.EngineFFmpeg }

type exitInfo struct {
	err      error
	abort    string
	forced   bool
	progress engine.Progress
	stderr   []string
	res      Resolution
}

// Start records one part and blocks until ffmpeg exits.
func (e *Engine) Start(ctx context.Context, req engine.Request) (res engine.Result, err error) {
	if err := engine.CheckMediaURL(req.Media.URL); err != nil {
		return res, err
	}
	r := &run{stop: make(chan struct{}), done: make(chan struct{})}
	e.mu.Lock()
	if e.cur != nil {
		e.mu.Unlock()
		return res, engine.ErrBusy
	}
	e.cur = r
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cur = nil
		e.mu.Unlock()
		close(r.done)
	}()

	res.Session = engine.Session{
		ID:             uuid.NewString(),
		Streamer:       req.Streamer,
		Platform:       req.Platform,
		URL:            req.Media.URL,
		OutputTemplate: e.namer.Template,
		StartedAt:      e.now(),
	}
	ctx = xglog.ContextWithStreamer(ctx, req.Streamer, req.Platform)
	ctx = xglog.ContextWithSessionID(ctx, res.Session.ID)
	logger := xglog.WithContext(ctx, e.log)
	ctx, span := telemetry.StartCapture(ctx, telemetry.CaptureAttributes(req.Streamer, req.Platform, res.Session.ID, e.Name())...)
	defer func() {
		class := engine.Classify(err)
		metrics.RecordEngineAttempt(e.Name(), class.String())
		telemetry.EndCapture(span, len(res.Segments), res.Session.Bytes, res.StreamEnded, class.String(), err)
	}()

	muxer, ext := "flv", ".flv"
	if engine.DetectFormat(req.Media.Format, "", req.Media.URL) == engine.FormatHLS {
		muxer, ext = "mpegts", ".ts"
	}
	created := e.now()
	path, err := e.namer.Path(engine.NameFields{Streamer: req.Streamer, Title: req.Title, Platform: req.Platform}, req.FirstIndex, created, ext)
	if err != nil {
		return res, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}
	part := path + pipeline.PartSuffix

	in := InputSpec{URL: req.Media.URL, UserAgent: e.cfg.UserAgent, Headers: req.Media.Headers}
	ffIn := in
	if e.opts.UseCurl {
		ffIn.URL = "pipe:0"
	}
	args, err := BuildArgs(ffIn, OutputSpec{Path: part, Muxer: muxer, MaxDuration: e.cfg.MaxPartDuration, MaxSize: e.cfg.MaxPartSize})
	if err != nil {
		return res, fmt.Errorf("%w: %v", engine.ErrInvalidConfig, err)
	}

	logger.Info().Str(xglog.FieldURL, engine.RedactURL(req.Media.URL)).Bool("curl", e.opts.UseCurl).Msg("starting ffmpeg")
	info, err := e.execute(ctx, r, in, args, req.Callbacks, logger)
	if err != nil {
		_ = os.Remove(part)
		return res, err
	}
	r.forced = info.forced

	seg, ok, ferr := e.finalize(part, path, req.FirstIndex, created, info)
	if ok {
		res.Segments = []pipeline.Segment{seg}
		res.Session.Bytes = seg.Size
		metrics.ObserveSegment(req.Platform, e.Name(), seg.Duration)
		metrics.AddBytesWritten(req.Platform, seg.Size)
		logger.Info().Int(xglog.FieldSegment, seg.Index).Str(xglog.FieldFinalPath, seg.Path).Int64(xglog.FieldBytes, seg.Size).Msg("segment closed")
		if req.Callbacks.OnSegment != nil {
			req.Callbacks.OnSegment(seg)
		}
	}

	res.StreamEnded = true
	switch info.abort {
	case abortResolution:
		res.StreamEnded = false
	case abortStop:
		e.mu.Lock()
		reason := r.reason
		e.mu.Unlock()
		err = fmt.Errorf("%w: %s", engine.ErrStopped, reason)
	case abortCancel:
		err = ctx.Err()
	default:
		if info.err != nil {
			err = fmt.Errorf("ffmpeg exited with code %d: %s", engine.ExitCode(info.err), strings.Join(info.stderr, " | "))
		} else {
			res.StreamEnded = !e.limitReached(info.progress, seg.Size)
		}
	}
	if err == nil && ferr == nil && !ok {
		err = pipeline.ErrNoSegments
	}
	err = errors.Join(err, ferr)
	if err != nil && ok {
		logger.Warn().Err(err).Msg("ffmpeg ended with error, keeping part")
	}
	return res, engine.Finish(res.Segments, err)
}

// Stop terminates the running ffmpeg group: SIGTERM so the trailer is
// written, SIGKILL after the stop timeout. It reports false when SIGKILL was
// needed.
func (e *Engine) Stop(reason string) bool {
	e.mu.Lock()
	r := e.cur
	if r != nil && r.reason == "" {
		r.reason = reason
	}
	e.mu.Unlock()
	if r == nil {
		return true
	}
	e.log.Info().Str(xglog.FieldReason, reason).Msg("stopping ffmpeg")
	r.stopOnce.Do(func() { close(r.stop) })

	timer := time.NewTimer(2*e.cfg.StopTimeout + time.Second)
	defer timer.Stop()
	select {
	case <-r.done:
		return !r.forced
	case <-timer.C:
		return false
	}
}

func (e *Engine) execute(ctx context.Context, r *run, in InputSpec, args []string, cb engine.Callbacks, logger zerolog.Logger) (exitInfo, error) {
	var info exitInfo
	ring := NewLineRing(defaultRingLines)

	// Termination goes through the process group, not CommandContext.
	// #nosec G204 -- binary comes from configuration
	cmd := exec.Command(e.opts.Bin, args...)
	procgroup.Set(cmd)
	cmd.Stderr = ring

	var curl *exec.Cmd
	if e.opts.UseCurl {
		// #nosec G204 -- binary comes from configuration
		curl = exec.Command(e.opts.CurlBin, CurlArgs(in)...)
		procgroup.Set(curl)
		curl.Stderr = &prefixWriter{prefix: "curl: ", ring: ring}
		pipe, err := curl.StdoutPipe()
		if err != nil {
			return info, fmt.Errorf("create curl pipe: %w", err)
		}
		cmd.Stdin = pipe
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return info, fmt.Errorf("create progress pipe: %w", err)
	}

	if curl != nil {
		if err := curl.Start(); err != nil {
			if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
				return info, fmt.Errorf("%w: curl start failed: %v", engine.ErrInvalidConfig, err)
			}
			return info, fmt.Errorf("curl start failed: %w", err)
		}
	}
	if err := cmd.Start(); err != nil {
		if curl != nil {
			_ = procgroup.Kill(curl, syscall.SIGKILL)
			_ = curl.Wait()
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return info, fmt.Errorf("%w: ffmpeg start failed: %v", engine.ErrInvalidConfig, err)
		}
		return info, fmt.Errorf("ffmpeg start failed: %w", err)
	}
	logger.Debug().Str("command", cmd.String()).Msg("ffmpeg process started")

	var parser ProgressParser
	waitCh := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(stdout)
		for sc.Scan() {
			if p, ok := parser.Feed(sc.Text()); ok && cb.OnProgress != nil {
				cb.OnProgress(p)
			}
		}
		waitCh <- cmd.Wait()
	}()

	vctx, vcancel := context.WithCancel(ctx)
	defer vcancel()
	abortCh := make(chan string, 1)
	watch := &resolutionWatch{}
	if e.opts.VerifyCodec {
		go e.verify(vctx, in, watch, abortCh, logger)
	}

	select {
	case info.err = <-waitCh:
	case <-ctx.Done():
		info.abort = abortCancel
	case <-r.stop:
		info.abort = abortStop
	case reason := <-abortCh:
		info.abort = reason
		logger.Warn().Str(xglog.FieldReason, reason).Msg("aborting ffmpeg")
	}
	if info.abort != "" {
		info.forced, info.err = procgroup.Terminate(cmd, waitCh, e.cfg.StopTimeout)
		if info.forced {
			logger.Warn().Dur("timeout", e.cfg.StopTimeout).Msg("ffmpeg ignored SIGTERM, killed")
		}
	}
	vcancel()
	if curl != nil {
		_ = procgroup.Kill(curl, syscall.SIGTERM)
		_ = curl.Wait()
	}

	info.progress = parser.Last()
	info.stderr = ring.LastN(10)
	info.res = watch.get()
	return info, nil
}

// verify probes the source periodically and requests an abort when the video
// resolution differs from the first probe.
func (e *Engine) verify(ctx context.Context, in InputSpec, watch *resolutionWatch, abortCh chan<- string, logger zerolog.Logger) {
	ticker := time.NewTicker(e.opts.VerifyInterval)
	defer ticker.Stop()
	check := func() bool {
		res, err := e.probe(ctx, in)
		if err != nil {
			if ctx.Err() == nil {
				logger.Debug().Err(err).Msg("codec probe failed")
			}
			return false
		}
		base, ok := watch.baseline(res)
		if !ok {
			logger.Info().
				Str(xglog.FieldResolution, fmt.Sprintf("%dx%d", res.Width, res.Height)).
				Str("previous", fmt.Sprintf("%dx%d", base.Width, base.Height)).
				Msg("video resolution changed")
			select {
			case abortCh <- abortResolution:
			default:
			}
			return true
		}
		return false
	}
	if check() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if check() {
				return
			}
		}
	}
}

func (e *Engine) limitReached(p engine.Progress, size int64) bool {
	if d := e.cfg.MaxPartDuration; d > 0 && p.OutTime >= d-time.Second {
		return true
	}
	if m := e.cfg.MaxPartSize; m > 0 && max(size, p.Bytes) >= m-m/20 {
		return true
	}
	return false
}

func (e *Engine) finalize(part, path string, index int, created time.Time, info exitInfo) (pipeline.Segment, bool, error) {
	fi, err := os.Stat(part)
	if errors.Is(err, fs.ErrNotExist) {
		return pipeline.Segment{}, false, nil
	}
	if err != nil {
		return pipeline.Segment{}, false, fmt.Errorf("stat part: %w", err)
	}
	if fi.Size() == 0 || (fi.Size() < minPartSize && info.progress.OutTime == 0) {
		_ = os.Remove(part)
		return pipeline.Segment{}, false, nil
	}
	if err := os.Rename(part, path); err != nil {
		return pipeline.Segment{}, false, fmt.Errorf("finalize part: %w", err)
	}
	return pipeline.Segment{
		Index:        index,
		Path:         path,
		Size:         fi.Size(),
		PayloadBytes: fi.Size(),
		Duration:     info.progress.OutTime,
		Metadata:     info.res.metadata(),
		CreatedAt:    created,
		ClosedAt:     e.now(),
	}, true, nil
}

type resolutionWatch struct {
	mu    sync.Mutex
	first Resolution
	set   bool
}

// baseline records the first resolution and reports whether res matches it.
func (w *resolutionWatch) baseline(res Resolution) (Resolution, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.set {
		w.first, w.set = res, true
		return res, true
	}
	return w.first, w.first.Width == res.Width && w.first.Height == res.Height
}

func (w *resolutionWatch) get() Resolution {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.first
}

func (r Resolution) metadata() flv.CodecMetadata {
	var codec flv.VideoCodec
	switch r.Codec {
	case "h264":
		codec = flv.VideoCodecAVC
	case "hevc":
		codec = flv.VideoCodecHEVC
	case "av1":
		codec = flv.VideoCodecAV1
	}
	return flv.CodecMetadata{Codec: codec, Width: r.Width, Height: r.Height}
}

type prefixWriter struct {
	prefix string
	ring   *LineRing
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(string(p), "\n") {
		if strings.TrimSpace(line) != "" {
			w.ring.Add(w.prefix + line)
		}
	}
	return len(p), nil
}
