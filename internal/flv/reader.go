// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package flv

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrTruncated is returned when the stream ends inside a tag.
var ErrTruncated = errors.New("flv: truncated tag")

const defaultReadBuffer = 64 * 1024

// Reader decodes an FLV byte stream into tags.
type Reader struct {
	r      *bufio.Reader
	hdr    [TagHeaderSize]byte
	offset int64

	headerDone bool
	eofAfter   bool

	// BackPointerMismatches counts tags whose trailing previous-tag-size did not
	// match the decoded tag. Some origins emit garbage there; it is not fatal.
	BackPointerMismatches int
}

// NewReader wraps r with a buffered FLV decoder.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, defaultReadBuffer)}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 { return r.offset }

// ReadHeader consumes the file header and PreviousTagSize0.
func (r *Reader) ReadHeader() (Header, error) {
	var b [HeaderSize]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Header{}, io.EOF
		}
		return Header{}, fmt.Errorf("read flv header: %w", err)
	}
	h, err := ParseHeader(b[:])
	if err != nil {
		return Header{}, err
	}
	r.offset += HeaderSize

	// Data offset may point past the 9 bytes we know about.
	if extra := int64(binary.BigEndian.Uint32(b[5:9])) - HeaderSize; extra > 0 {
		n, err := io.CopyN(io.Discard, r.r, extra)
		r.offset += n
		if err != nil {
			return Header{}, fmt.Errorf("skip flv header padding: %w", err)
		}
	}

	var prev [PreviousTagSizeLen]byte
	if _, err := io.ReadFull(r.r, prev[:]); err != nil {
		return Header{}, fmt.Errorf("read PreviousTagSize0: %w", err)
	}
	r.offset += PreviousTagSizeLen
	r.headerDone = true
	return h, nil
}

// Next returns the next tag. It returns io.EOF when the stream ends exactly at a
// tag boundary and an error wrapping ErrTruncated when it ends inside a tag.
func (r *Reader) Next() (*Tag, error) {
	if !r.headerDone {
		return nil, errors.New("flv: Next called before ReadHeader")
	}
	if r.eofAfter {
		return nil, io.EOF
	}

	n, err := io.ReadFull(r.r, r.hdr[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w at offset %d: %w", ErrTruncated, r.offset, io.ErrUnexpectedEOF)
		}
		return nil, err
	}

	h, err := ParseTagHeader(r.hdr[:])
	if err != nil {
		return nil, fmt.Errorf("tag at offset %d: %w", r.offset, err)
	}

	data := make([]byte, h.DataSize)
	if _, err := io.ReadFull(r.r, data); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w at offset %d: declared %d bytes: %w", ErrTruncated, r.offset, h.DataSize, io.ErrUnexpectedEOF)
		}
		return nil, err
	}

	var prev [PreviousTagSizeLen]byte
	pn, err := io.ReadFull(r.r, prev[:])
	switch {
	case err == nil:
		if binary.BigEndian.Uint32(prev[:]) != TagHeaderSize+h.DataSize {
			r.BackPointerMismatches++
		}
	case errors.Is(err, io.EOF) && pn == 0:
		// Tag body is complete; the origin closed before the back pointer.
		r.eofAfter = true
	case errors.Is(err, io.ErrUnexpectedEOF):
		r.eofAfter = true
	default:
		return nil, err
	}

	r.offset += int64(TagHeaderSize) + int64(h.DataSize) + int64(pn)
	return &Tag{
		Type:      h.Type,
		Timestamp: h.Timestamp,
		StreamID:  h.StreamID,
		Data:      data,
	}, nil
}
