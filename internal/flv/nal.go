// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package flv

import (
	"bytes"
	"errors"
	"fmt"
)

// NALFraming describes how NAL units are delimited in a buffer.
type NALFraming uint8

const (
	NALFramingUnknown NALFraming = iota
	NALFramingLengthPrefixed
	NALFramingAnnexB
)

func (f NALFraming) String() string {
	switch f {
	case NALFramingLengthPrefixed:
		return "length-prefixed"
	case NALFramingAnnexB:
		return "annexb"
	default:
		return "unknown"
	}
}

// AVCNALType is the 5-bit H.264 nal_unit_type.
type AVCNALType uint8

const (
	AVCNALSlice    AVCNALType = 1
	AVCNALIDR      AVCNALType = 5
	AVCNALSEI      AVCNALType = 6
	AVCNALSPS      AVCNALType = 7
	AVCNALPPS      AVCNALType = 8
	AVCNALAUD      AVCNALType = 9
	AVCNALEndOfSeq AVCNALType = 10
)

// AVCNALTypeOf returns the nal_unit_type of an H.264 NAL unit.
func AVCNALTypeOf(nal []byte) AVCNALType {
	if len(nal) == 0 {
		return 0
	}
	return AVCNALType(nal[0] & 0x1f)
}

// HEVCNALType is the 6-bit H.265 nal_unit_type.
type HEVCNALType uint8

const (
	HEVCNALIDRWRADL HEVCNALType = 19
	HEVCNALIDRNLP   HEVCNALType = 20
	HEVCNALCRA      HEVCNALType = 21
	HEVCNALVPS      HEVCNALType = 32
	HEVCNALSPS      HEVCNALType = 33
	HEVCNALPPS      HEVCNALType = 34
	HEVCNALAUD      HEVCNALType = 35
)

// HEVCNALTypeOf returns the nal_unit_type of an H.265 NAL unit.
func HEVCNALTypeOf(nal []byte) HEVCNALType {
	if len(nal) == 0 {
		return 0
	}
	return HEVCNALType((nal[0] >> 1) & 0x3f)
}

var ErrBadNALLength = errors.New("flv: NAL length exceeds buffer")

// SplitNALUnits splits length-prefixed NAL units. lengthSize is 1, 2 or 4.
func SplitNALUnits(data []byte, lengthSize int) ([][]byte, error) {
	if lengthSize != 1 && lengthSize != 2 && lengthSize != 4 {
		return nil, fmt.Errorf("flv: invalid NAL length size %d", lengthSize)
	}
	var out [][]byte
	for len(data) > 0 {
		if len(data) < lengthSize {
			return out, ErrBadNALLength
		}
		var n int
		for i := 0; i < lengthSize; i++ {
			n = n<<8 | int(data[i])
		}
		data = data[lengthSize:]
		if n > len(data) {
			return out, ErrBadNALLength
		}
		if n > 0 {
			out = append(out, data[:n])
		}
		data = data[n:]
	}
	return out, nil
}

var startCode = []byte{0, 0, 1}

// SplitAnnexB splits a start-code delimited buffer. Both 3- and 4-byte start
// codes are accepted; trailing zero bytes before a start code are dropped.
func SplitAnnexB(data []byte) [][]byte {
	var out [][]byte
	i := bytes.Index(data, startCode)
	if i < 0 {
		return nil
	}
	data = data[i+3:]
	for len(data) > 0 {
		j := bytes.Index(data, startCode)
		if j < 0 {
			if nal := bytes.TrimRight(data, "\x00"); len(nal) > 0 {
				out = append(out, nal)
			}
			break
		}
		if nal := bytes.TrimRight(data[:j], "\x00"); len(nal) > 0 {
			out = append(out, nal)
		}
		data = data[j+3:]
	}
	return out
}

// IsAnnexB reports whether data starts with a 3- or 4-byte start code.
func IsAnnexB(data []byte) bool {
	return bytes.HasPrefix(data, startCode) || bytes.HasPrefix(data, []byte{0, 0, 0, 1})
}

// DetectNALFraming guesses the framing of data. A buffer that parses cleanly as
// 4-byte length-prefixed units wins over a start-code prefix.
func DetectNALFraming(data []byte) NALFraming {
	if len(data) < 4 {
		return NALFramingUnknown
	}
	if _, err := SplitNALUnits(data, 4); err == nil && !bytes.HasPrefix(data, []byte{0, 0, 0, 1}) {
		return NALFramingLengthPrefixed
	}
	if IsAnnexB(data) {
		return NALFramingAnnexB
	}
	return NALFramingUnknown
}

// RemoveEmulationPrevention converts an EBSP into an RBSP by dropping the 0x03
// byte of every 00 00 03 sequence.
func RemoveEmulationPrevention(b []byte) []byte {
	if bytes.Index(b, []byte{0, 0, 3}) < 0 {
		return b
	}
	out := make([]byte, 0, len(b))
	zeros := 0
	for _, c := range b {
		if zeros >= 2 && c == 3 {
			zeros = 0
			continue
		}
		out = append(out, c)
		if c == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}
