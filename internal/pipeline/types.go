// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrec/internal/flv"
	xglog "github.com/ManuGH/streamrec/internal/log"
)

// PartSuffix marks a segment that has not been finalized yet.
const PartSuffix = ".part"

const (
	DefaultTagBuffer     = 256
	DefaultStatsInterval = time.Second
)

// ErrNoSegments is returned when the source ended before any media tag was written.
var ErrNoSegments = errors.New("pipeline: no segments downloaded")

// Segment describes one finished output file.
type Segment struct {
	Index int
	Path  string
	// Size is the on-disk size of the finalized file.
	Size int64
	// PayloadBytes is the input tag payload attributed to this segment.
	PayloadBytes int64
	Tags         int
	Duration     time.Duration
	Metadata     flv.CodecMetadata
	CreatedAt    time.Time
	ClosedAt     time.Time
}

// Progress is reported periodically while a capture runs.
type Progress struct {
	Bytes    int64
	Bitrate  float64 // bits per second over the last interval
	Segments int
}

// PathFunc returns the final path of the segment with the given index.
type PathFunc func(index int, createdAt time.Time) (string, error)

// Options configures Run and ChunkWriter.
type Options struct {
	Path PathFunc
	// FirstIndex is the index of the first segment written.
	FirstIndex int

	// MaxSize and MaxDuration bound a segment; zero disables the limit.
	MaxSize     int64
	MaxDuration time.Duration

	DuplicateFilter bool
	TagBuffer       int
	StatsInterval   time.Duration

	OnSegment  func(Segment)
	OnProgress func(Progress)

	Logger *zerolog.Logger
	Now    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TagBuffer <= 0 {
		o.TagBuffer = DefaultTagBuffer
	}
	if o.StatsInterval <= 0 {
		o.StatsInterval = DefaultStatsInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		l := xglog.WithComponent("pipeline")
		o.Logger = &l
	}
	return o
}

func (o Options) validate() error {
	if o.Path == nil {
		return errors.New("pipeline: Options.Path is required")
	}
	if o.MaxSize < 0 || o.MaxDuration < 0 || o.FirstIndex < 0 {
		return errors.New("pipeline: negative segment limit")
	}
	return nil
}

// Result summarizes one Run.
type Result struct {
	Segments   []Segment
	Tags       int64
	Duplicates int64
	Bytes      int64
	Metadata   flv.CodecMetadata
}
