// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package flv

import "errors"

var errBitsExhausted = errors.New("flv: bitstream exhausted")

// bitReader reads MSB-first bits and Exp-Golomb codes from an RBSP.
type bitReader struct {
	b   []byte
	pos int // bit position
}

func newBitReader(b []byte) *bitReader { return &bitReader{b: b} }

func (r *bitReader) remaining() int { return len(r.b)*8 - r.pos }

func (r *bitReader) bit() (uint32, error) {
	if r.pos >= len(r.b)*8 {
		return 0, errBitsExhausted
	}
	v := (r.b[r.pos>>3] >> (7 - uint(r.pos&7))) & 1
	r.pos++
	return uint32(v), nil
}

func (r *bitReader) bits(n int) (uint32, error) {
	var v uint32
	for i := 0; i < n; i++ {
		b, err := r.bit()
		if err != nil {
			return 0, err
		}
		v = v<<1 | b
	}
	return v, nil
}

func (r *bitReader) flag() (bool, error) {
	b, err := r.bit()
	return b == 1, err
}

func (r *bitReader) skip(n int) error {
	if r.remaining() < n {
		r.pos = len(r.b) * 8
		return errBitsExhausted
	}
	r.pos += n
	return nil
}

// ue reads an unsigned Exp-Golomb code.
func (r *bitReader) ue() (uint32, error) {
	zeros := 0
	for {
		b, err := r.bit()
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		zeros++
		if zeros > 31 {
			return 0, errors.New("flv: exp-golomb code too long")
		}
	}
	if zeros == 0 {
		return 0, nil
	}
	v, err := r.bits(zeros)
	if err != nil {
		return 0, err
	}
	return (1<<uint(zeros) - 1) + v, nil
}

// se reads a signed Exp-Golomb code.
func (r *bitReader) se() (int32, error) {
	v, err := r.ue()
	if err != nil {
		return 0, err
	}
	if v&1 == 1 {
		return int32((v + 1) / 2), nil
	}
	return -int32(v / 2), nil
}
