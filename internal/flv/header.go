// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package flv

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// HeaderSize is the size of the FLV file header, excluding PreviousTagSize0.
const HeaderSize = 9

var (
	signature = []byte{'F', 'L', 'V'}

	ErrNotFLV = errors.New("flv: not an flv stream")
)

// Header is the FLV file header.
type Header struct {
	Version  uint8
	HasAudio bool
	HasVideo bool
}

// DefaultHeader describes a version 1 file carrying audio and video.
func DefaultHeader() Header {
	return Header{Version: 1, HasAudio: true, HasVideo: true}
}

// ParseHeader decodes the 9-byte file header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize || !bytes.Equal(b[:3], signature) {
		return Header{}, ErrNotFLV
	}
	if binary.BigEndian.Uint32(b[5:9]) < HeaderSize {
		return Header{}, ErrNotFLV
	}
	return Header{
		Version:  b[3],
		HasAudio: b[4]&0x04 != 0,
		HasVideo: b[4]&0x01 != 0,
	}, nil
}

// Encode returns the 9-byte header followed by PreviousTagSize0.
func (h Header) Encode() []byte {
	b := make([]byte, HeaderSize+PreviousTagSizeLen)
	copy(b, signature)
	b[3] = h.Version
	if b[3] == 0 {
		b[3] = 1
	}
	if h.HasAudio {
		b[4] |= 0x04
	}
	if h.HasVideo {
		b[4] |= 0x01
	}
	binary.BigEndian.PutUint32(b[5:9], HeaderSize)
	return b
}
