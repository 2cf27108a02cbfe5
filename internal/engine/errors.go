// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/ManuGH/streamrec/internal/flv"
	"github.com/ManuGH/streamrec/internal/pipeline"
)

var (
	ErrInvalidConfig     = errors.New("invalid engine configuration")
	ErrUnsupportedFormat = errors.New("unsupported container format")
	ErrUnsupportedURL    = errors.New("unsupported media url")
	ErrPartial           = errors.New("capture ended with error after producing segments")
	ErrStopped           = errors.New("capture stopped")
	ErrBusy              = errors.New("engine already running")
)

// Class is the retry classification of an attempt error.
type Class int

const (
	ClassNone Class = iota
	ClassCancelled
	ClassFatal
	ClassRetryable
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassCancelled:
		return "cancelled"
	case ClassFatal:
		return "fatal"
	case ClassRetryable:
		return "retryable"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Classify maps an attempt error to its class. Structural container errors are
// fatal; a stream cut inside a tag is a dropped connection and retryable.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, context.Canceled), errors.Is(err, ErrStopped):
		return ClassCancelled
	case errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrUnsupportedURL),
		errors.Is(err, flv.ErrNotFLV),
		errors.Is(err, flv.ErrUnknownTagType),
		errors.Is(err, flv.ErrEncryptedTag),
		errors.Is(err, flv.ErrReservedBits),
		errors.Is(err, flv.ErrTagTooLarge):
		return ClassFatal
	default:
		return ClassRetryable
	}
}

type partialError struct {
	segments int
	err      error
}

func (e *partialError) Error() string {
	return fmt.Sprintf("%s (%d segments kept): %v", ErrPartial, e.segments, e.err)
}

func (e *partialError) Is(target error) bool { return target == ErrPartial }

func (e *partialError) Unwrap() error { return e.err }

// Finish applies the failure policy: with at least one segment an error is
// wrapped in ErrPartial and the segments are kept.
func Finish(segments []pipeline.Segment, err error) error {
	if err == nil || len(segments) == 0 {
		return err
	}
	return &partialError{segments: len(segments), err: err}
}

// StatusError is returned when the origin answers with a non-success status.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("origin returned HTTP %d", e.Code)
}

// ExitCode extracts the exit code of a helper process error, or -1.
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
