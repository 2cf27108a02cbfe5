// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/streamrec/internal/flv"
)

const segmentWriteBuffer = 256 * 1024

const (
	// Backward steps up to jitterTolerance are audio/video interleaving and are
	// clamped; larger ones are a source timestamp reset.
	jitterTolerance = 1000
	// defaultTagStep is the gap inserted after a reset before any tag spacing
	// has been observed (one frame at 25 fps).
	defaultTagStep = 40
	maxTagStep     = 1000
)

// segmentFile is one open ".part" output.
type segmentFile struct {
	index    int
	path     string
	partPath string
	created  time.Time

	f  *os.File
	bw *bufio.Writer
	w  *flv.Writer

	metaOff flv.MetaDataOffsets
	metaPos int64

	base     int64
	lastTS   uint32
	step     uint32
	started  bool
	tags     int
	media    int
	payload  int64
	codec    flv.VideoCodec
	enhanced bool
	metadata flv.CodecMetadata
	wroteEOS bool
}

type openParams struct {
	index    int
	path     string
	created  time.Time
	props    []flv.Property
	meta     flv.CodecMetadata
	videoSeq *flv.Tag
	audioSeq *flv.Tag
}

func createSegment(p openParams) (_ *segmentFile, err error) {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return nil, fmt.Errorf("create segment dir: %w", err)
	}
	s := &segmentFile{
		index:    p.index,
		path:     p.path,
		partPath: p.path + PartSuffix,
		created:  p.created,
		metadata: p.meta,
		codec:    p.meta.Codec,
	}
	s.f, err = os.OpenFile(s.partPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create segment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = s.f.Close()
			_ = os.Remove(s.partPath)
		}
	}()
	s.bw = bufio.NewWriterSize(s.f, segmentWriteBuffer)
	s.w = flv.NewWriter(s.bw)

	if err = s.w.WriteHeader(flv.DefaultHeader()); err != nil {
		return nil, err
	}

	data, off, err := flv.EncodeOnMetaData(metaDataProps(p.props, p.meta))
	if err != nil {
		return nil, fmt.Errorf("encode onMetaData: %w", err)
	}
	s.metaOff = off
	s.metaPos = s.w.Written() + flv.TagHeaderSize
	if err = s.w.WriteTag(&flv.Tag{Type: flv.TagTypeScript, Data: data}); err != nil {
		return nil, err
	}
	for _, seq := range []*flv.Tag{p.videoSeq, p.audioSeq} {
		if seq == nil {
			continue
		}
		out := *seq
		out.Timestamp = 0
		if err = s.w.WriteTag(&out); err != nil {
			return nil, err
		}
		s.tags++
	}
	if p.videoSeq != nil {
		if h, herr := flv.ParseVideoTagHeader(p.videoSeq.Data); herr == nil {
			s.codec, s.enhanced = h.Codec, h.Enhanced
		}
	}
	return s, nil
}

// metaDataProps merges the source onMetaData fields with the detected picture size.
func metaDataProps(src []flv.Property, meta flv.CodecMetadata) []flv.Property {
	out := make([]flv.Property, 0, len(src)+2)
	for _, p := range src {
		if meta.Width > 0 && (p.Key == "width" || p.Key == "height") {
			continue
		}
		switch p.Key {
		case "keyframes", "times", "filepositions", "lasttimestamp", "lastkeyframetimestamp", "lastkeyframelocation":
			// Seek indexes describe the source, not this file.
			continue
		}
		out = append(out, p)
	}
	if meta.Width > 0 {
		out = append(out,
			flv.Property{Key: "width", Value: float64(meta.Width)},
			flv.Property{Key: "height", Value: float64(meta.Height)})
	}
	return out
}

// write appends t with its timestamp rebased onto the segment start. Small
// backward steps are clamped; a reset of the source clock moves the base so
// the file continues one tag step after the last written timestamp.
func (s *segmentFile) write(t *flv.Tag, payload int64, media bool) error {
	if !s.started {
		s.base = int64(t.Timestamp)
		s.started = true
	}
	ts := s.rebase(t.Timestamp)
	out := *t
	out.Timestamp = ts
	if err := s.w.WriteTag(&out); err != nil {
		return fmt.Errorf("write tag: %w", err)
	}
	if d := ts - s.lastTS; d > 0 && d <= maxTagStep {
		s.step = d
	}
	s.lastTS = ts
	s.tags++
	s.payload += payload
	if media {
		s.media++
	}
	return nil
}

func (s *segmentFile) rebase(src uint32) uint32 {
	rel := int64(src) - s.base
	last := int64(s.lastTS)
	switch {
	case rel >= last:
		return uint32(rel)
	case last-rel <= jitterTolerance:
		return s.lastTS
	}
	step := s.step
	if step == 0 {
		step = defaultTagStep
	}
	next := last + int64(step)
	s.base = int64(src) - next
	return uint32(next)
}

func (s *segmentFile) size() int64 { return s.w.Written() }

func (s *segmentFile) duration() time.Duration {
	return time.Duration(s.lastTS) * time.Millisecond
}

// finalize writes the trailer, patches onMetaData, syncs and renames the file.
// A segment without media is removed and reported with ok=false.
func (s *segmentFile) finalize(closedAt time.Time) (seg Segment, ok bool, err error) {
	if s.media == 0 {
		cerr := s.f.Close()
		rerr := os.Remove(s.partPath)
		if errors.Is(rerr, os.ErrNotExist) {
			rerr = nil
		}
		return Segment{}, false, errors.Join(cerr, rerr)
	}

	if !s.wroteEOS && (s.codec == flv.VideoCodecAVC || s.codec == flv.VideoCodecHEVC) {
		if werr := s.w.WriteTag(flv.EndOfSequenceTag(s.codec, s.enhanced, s.lastTS)); werr != nil {
			err = errors.Join(err, fmt.Errorf("write end of sequence: %w", werr))
		}
		s.wroteEOS = true
	}
	if ferr := s.bw.Flush(); ferr != nil {
		err = errors.Join(err, fmt.Errorf("flush segment: %w", ferr))
	}
	size := s.w.Written()
	if err == nil {
		var num [8]byte
		flv.PutNumber(num[:], 0, s.duration().Seconds())
		if _, werr := s.f.WriteAt(num[:], s.metaPos+int64(s.metaOff.Duration)); werr != nil {
			err = fmt.Errorf("patch duration: %w", werr)
		}
		flv.PutNumber(num[:], 0, float64(size))
		if _, werr := s.f.WriteAt(num[:], s.metaPos+int64(s.metaOff.FileSize)); werr != nil && err == nil {
			err = fmt.Errorf("patch filesize: %w", werr)
		}
	}
	if err == nil {
		if serr := s.f.Sync(); serr != nil {
			err = fmt.Errorf("sync segment: %w", serr)
		}
	}
	if cerr := s.f.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close segment: %w", cerr)
	}
	if err != nil {
		// The .part file stays behind as an incomplete segment.
		return Segment{}, false, err
	}
	if rerr := os.Rename(s.partPath, s.path); rerr != nil {
		return Segment{}, false, fmt.Errorf("finalize segment: %w", rerr)
	}
	return Segment{
		Index:        s.index,
		Path:         s.path,
		Size:         size,
		PayloadBytes: s.payload,
		Tags:         s.tags,
		Duration:     s.duration(),
		Metadata:     s.metadata,
		CreatedAt:    s.created,
		ClosedAt:     closedAt,
	}, true, nil
}
