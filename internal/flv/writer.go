// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package flv

import (
	"errors"
	"io"
)

// Writer serializes an FLV stream.
type Writer struct {
	w   io.Writer
	buf []byte
	n   int64

	headerDone bool
}

// NewWriter returns a Writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes the file header and PreviousTagSize0.
func (w *Writer) WriteHeader(h Header) error {
	if w.headerDone {
		return errors.New("flv: header already written")
	}
	n, err := w.w.Write(h.Encode())
	w.n += int64(n)
	if err != nil {
		return err
	}
	w.headerDone = true
	return nil
}

// WriteTag writes a tag followed by its previous-tag-size field.
func (w *Writer) WriteTag(t *Tag) error {
	if !w.headerDone {
		return errors.New("flv: WriteTag called before WriteHeader")
	}
	var err error
	w.buf, err = t.AppendTo(w.buf[:0])
	if err != nil {
		return err
	}
	n, err := w.w.Write(w.buf)
	w.n += int64(n)
	if err == nil && n != len(w.buf) {
		err = io.ErrShortWrite
	}
	return err
}

// Written returns the number of bytes written so far.
func (w *Writer) Written() int64 { return w.n }
