// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrec/internal/flv"
	xglog "github.com/ManuGH/streamrec/internal/log"
)

// segmenter owns the open segment and decides where files are cut.
type segmenter struct {
	opts Options
	log  *zerolog.Logger

	cur      *segmentFile
	next     int
	segments []Segment

	videoSeq *flv.Tag
	audioSeq *flv.Tag
	props    []flv.Property
	meta     flv.CodecMetadata

	// pending is input payload absorbed while no segment was open.
	pending  int64
	cutDue   bool
	hasVideo bool

	bytes atomic.Int64
}

func newSegmenter(opts Options) *segmenter {
	return &segmenter{opts: opts, log: opts.Logger, next: opts.FirstIndex}
}

func (s *segmenter) run(ctx context.Context, in <-chan item) (err error) {
	defer func() {
		if s.cur != nil {
			err = errors.Join(err, s.closeCurrent())
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case it, ok := <-in:
			if !ok {
				return nil
			}
			if err := s.handle(it); err != nil {
				return err
			}
		}
	}
}

func (s *segmenter) handle(it item) error {
	payload := int64(len(it.tag.Data))

	switch it.kind {
	case kindMetaData:
		s.props = it.props
		s.absorb(payload)
		return nil
	case kindEndOfSequence:
		// Every segment gets its own end-of-sequence marker on close.
		s.absorb(payload)
		return nil
	case kindVideoSeq:
		s.hasVideo = true
		if it.forceCut && s.cur != nil {
			if err := s.closeCurrent(); err != nil {
				return err
			}
		}
		s.videoSeq = it.tag
		if !it.meta.IsZero() {
			s.meta = it.meta
		}
		return s.writeHeaderTag(it.tag, payload)
	case kindAudioSeq:
		s.audioSeq = it.tag
		return s.writeHeaderTag(it.tag, payload)
	}

	if it.video {
		s.hasVideo = true
	}
	if s.cur != nil && s.cutDue && (!s.hasVideo || (it.video && it.keyframe)) {
		if err := s.closeCurrent(); err != nil {
			return err
		}
	}
	if s.cur == nil {
		if err := s.open(); err != nil {
			return err
		}
	}
	if err := s.cur.write(it.tag, payload, true); err != nil {
		return err
	}
	s.bytes.Add(int64(it.tag.Size()))
	if s.limitReached() && !s.cutDue {
		s.cutDue = true
		s.log.Debug().Int(xglog.FieldSegment, s.cur.index).Msg("segment limit reached, cutting at next keyframe")
	}
	return nil
}

func (s *segmenter) absorb(payload int64) {
	if s.cur != nil {
		s.cur.payload += payload
		return
	}
	s.pending += payload
}

// writeHeaderTag passes a sequence header into the open segment. Before the
// first media tag it is only remembered and replayed when a segment opens.
func (s *segmenter) writeHeaderTag(t *flv.Tag, payload int64) error {
	if s.cur == nil {
		s.pending += payload
		return nil
	}
	if err := s.cur.write(t, payload, false); err != nil {
		return err
	}
	s.bytes.Add(int64(t.Size()))
	return nil
}

func (s *segmenter) limitReached() bool {
	if s.opts.MaxSize > 0 && s.cur.size() >= s.opts.MaxSize {
		return true
	}
	return s.opts.MaxDuration > 0 && s.cur.duration() >= s.opts.MaxDuration
}

func (s *segmenter) open() error {
	idx := s.next
	created := s.opts.Now()
	path, err := s.opts.Path(idx, created)
	if err != nil {
		return fmt.Errorf("segment %d path: %w", idx, err)
	}
	cur, err := createSegment(openParams{
		index:    idx,
		path:     path,
		created:  created,
		props:    s.props,
		meta:     s.meta,
		videoSeq: s.videoSeq,
		audioSeq: s.audioSeq,
	})
	if err != nil {
		return err
	}
	cur.payload += s.pending
	s.pending = 0
	s.next++
	s.cur = cur
	s.cutDue = false
	s.bytes.Add(cur.size())
	s.log.Debug().Int(xglog.FieldSegment, idx).Str(xglog.FieldPath, cur.partPath).Msg("segment opened")
	return nil
}

func (s *segmenter) closeCurrent() error {
	cur := s.cur
	s.cur = nil
	s.cutDue = false

	seg, ok, err := cur.finalize(s.opts.Now())
	if err != nil {
		return fmt.Errorf("close segment %d: %w", cur.index, err)
	}
	if !ok {
		s.next = cur.index
		s.log.Debug().Int(xglog.FieldSegment, cur.index).Msg("discarded segment without media")
		return nil
	}
	s.segments = append(s.segments, seg)
	s.log.Info().
		Int(xglog.FieldSegment, seg.Index).
		Str(xglog.FieldFinalPath, seg.Path).
		Int64(xglog.FieldBytes, seg.Size).
		Dur("duration", seg.Duration).
		Msg("segment closed")
	if s.opts.OnSegment != nil {
		s.opts.OnSegment(seg)
	}
	return nil
}
