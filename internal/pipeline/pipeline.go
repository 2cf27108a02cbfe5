// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/streamrec/internal/flv"
)

// Run consumes an FLV stream from r and writes segments until the stream
// ends, an error occurs or ctx is cancelled. Segments closed before a failure
// are returned together with the error. If r is an io.Closer it is closed once
// the run stops, so a read blocked on the network returns.
func Run(ctx context.Context, r io.Reader, opts Options) (Result, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return Result{}, err
	}
	var (
		tagCount atomic.Int64
		parseErr error
		dd       dedup
		an       = analyzer{log: opts.Logger}
		seg      = newSegmenter(opts)
		segCount atomic.Int32
	)
	if opts.OnSegment != nil {
		onSegment := opts.OnSegment
		seg.opts.OnSegment = func(s Segment) {
			segCount.Add(1)
			onSegment(s)
		}
	} else {
		seg.opts.OnSegment = func(Segment) { segCount.Add(1) }
	}

	g, gctx := errgroup.WithContext(ctx)
	if c, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(gctx, func() { _ = c.Close() })
		defer stop()
	}
	tags := make(chan *flv.Tag, opts.TagBuffer)
	filtered := make(chan *flv.Tag, opts.TagBuffer)
	items := make(chan item, opts.TagBuffer)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(tags)
		// Framing errors stop the parser but let later stages drain what was
		// already read, so the open segment keeps every good tag.
		parseErr = parse(gctx, r, tags, &tagCount)
		return nil
	})
	g.Go(func() error {
		defer close(filtered)
		for t := range tags {
			if opts.DuplicateFilter && !dd.keep(t) {
				continue
			}
			select {
			case filtered <- t:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	g.Go(func() error {
		defer close(items)
		for t := range filtered {
			select {
			case items <- an.inspect(t):
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	g.Go(func() error {
		defer close(done)
		return seg.run(gctx, items)
	})
	if opts.OnProgress != nil {
		g.Go(func() error {
			statsLoop(gctx, done, opts.StatsInterval, func() (int64, int) {
				return seg.bytes.Load(), int(segCount.Load())
			}, opts.OnProgress)
			return nil
		})
	}

	err := g.Wait()
	res := Result{
		Segments:   seg.segments,
		Tags:       tagCount.Load(),
		Duplicates: dd.dropped,
		Bytes:      seg.bytes.Load(),
		Metadata:   an.meta,
	}
	if opts.OnProgress != nil {
		opts.OnProgress(Progress{Bytes: res.Bytes, Segments: len(res.Segments)})
	}

	switch {
	case ctx.Err() != nil:
		err = ctx.Err()
	case err == nil:
		err = parseErr
	}
	if err == nil && len(res.Segments) == 0 {
		err = ErrNoSegments
	}
	return res, err
}

func parse(ctx context.Context, r io.Reader, out chan<- *flv.Tag, count *atomic.Int64) error {
	fr := flv.NewReader(r)
	if _, err := fr.ReadHeader(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("flv header: %w", err)
	}
	for {
		t, err := fr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		count.Add(1)
		select {
		case out <- t:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
