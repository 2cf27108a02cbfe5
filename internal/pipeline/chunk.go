// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	xglog "github.com/ManuGH/streamrec/internal/log"
)

// ChunkWriter splits a sequence of opaque media chunks (MPEG-TS segments of an
// HLS playlist) into part files. Cuts only happen between chunks.
type ChunkWriter struct {
	opts Options

	mu       sync.Mutex
	cur      *chunkFile
	next     int
	segments []Segment
	bytes    int64
	closed   bool
}

type chunkFile struct {
	index    int
	path     string
	partPath string
	created  time.Time
	f        *os.File
	bw       *bufio.Writer
	size     int64
	dur      time.Duration
	chunks   int
}

// NewChunkWriter returns a writer using the same limits and callbacks as Run.
func NewChunkWriter(opts Options) (*ChunkWriter, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &ChunkWriter{opts: opts, next: opts.FirstIndex}, nil
}

// WriteChunk appends one chunk of the given media duration.
func (w *ChunkWriter) WriteChunk(data []byte, dur time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("pipeline: chunk writer closed")
	}
	if len(data) == 0 {
		return nil
	}
	if w.cur != nil && w.limitReached() {
		if err := w.closeCurrent(); err != nil {
			return err
		}
	}
	if w.cur == nil {
		if err := w.open(); err != nil {
			return err
		}
	}
	n, err := w.cur.bw.Write(data)
	w.cur.size += int64(n)
	w.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}
	w.cur.dur += dur
	w.cur.chunks++

	if w.opts.OnProgress != nil {
		var bitrate float64
		if dur > 0 {
			bitrate = float64(len(data)) * 8 / dur.Seconds()
		}
		w.opts.OnProgress(Progress{Bytes: w.bytes, Bitrate: bitrate, Segments: len(w.segments)})
	}
	return nil
}

func (w *ChunkWriter) limitReached() bool {
	if w.opts.MaxSize > 0 && w.cur.size >= w.opts.MaxSize {
		return true
	}
	return w.opts.MaxDuration > 0 && w.cur.dur >= w.opts.MaxDuration
}

func (w *ChunkWriter) open() error {
	created := w.opts.Now()
	path, err := w.opts.Path(w.next, created)
	if err != nil {
		return fmt.Errorf("segment %d path: %w", w.next, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create segment dir: %w", err)
	}
	f, err := os.Create(path + PartSuffix)
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	w.cur = &chunkFile{
		index:    w.next,
		path:     path,
		partPath: path + PartSuffix,
		created:  created,
		f:        f,
		bw:       bufio.NewWriterSize(f, segmentWriteBuffer),
	}
	w.next++
	w.opts.Logger.Debug().Int(xglog.FieldSegment, w.cur.index).Str(xglog.FieldPath, w.cur.partPath).Msg("segment opened")
	return nil
}

func (w *ChunkWriter) closeCurrent() error {
	c := w.cur
	w.cur = nil

	err := c.bw.Flush()
	if err == nil {
		err = c.f.Sync()
	}
	if cerr := c.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("close segment %d: %w", c.index, err)
	}
	if c.chunks == 0 {
		w.next = c.index
		return os.Remove(c.partPath)
	}
	if err := os.Rename(c.partPath, c.path); err != nil {
		return fmt.Errorf("finalize segment %d: %w", c.index, err)
	}
	seg := Segment{
		Index:        c.index,
		Path:         c.path,
		Size:         c.size,
		PayloadBytes: c.size,
		Tags:         c.chunks,
		Duration:     c.dur,
		CreatedAt:    c.created,
		ClosedAt:     w.opts.Now(),
	}
	w.segments = append(w.segments, seg)
	w.opts.Logger.Info().
		Int(xglog.FieldSegment, seg.Index).
		Str(xglog.FieldFinalPath, seg.Path).
		Int64(xglog.FieldBytes, seg.Size).
		Msg("segment closed")
	if w.opts.OnSegment != nil {
		w.opts.OnSegment(seg)
	}
	return nil
}

// Close finalizes the open part and returns every closed segment.
func (w *ChunkWriter) Close() ([]Segment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err error
	if w.cur != nil {
		err = w.closeCurrent()
	}
	w.closed = true
	return w.segments, err
}
