// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package flv

import (
	"errors"
	"fmt"
)

var (
	ErrNotSequenceHeader = errors.New("flv: not a video sequence header")
	ErrUnsupportedCodec  = errors.New("flv: unsupported video codec")
	ErrNoSPS             = errors.New("flv: sequence header carries no sps")
)

// CodecMetadata is the decoded picture description of a video stream.
type CodecMetadata struct {
	Codec  VideoCodec
	Width  int
	Height int
}

// IsZero reports whether no metadata has been decoded.
func (m CodecMetadata) IsZero() bool { return m == CodecMetadata{} }

func (m CodecMetadata) String() string {
	return fmt.Sprintf("%s %dx%d", m.Codec, m.Width, m.Height)
}

// Resolution formats the picture size as WxH.
func (m CodecMetadata) Resolution() string {
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}

// ParseVideoSequenceHeader extracts CodecMetadata from the data of an AVC or
// HEVC sequence header tag. A payload that starts with a start code instead of
// a configuration record is scanned as Annex B.
func ParseVideoSequenceHeader(data []byte) (CodecMetadata, error) {
	h, err := ParseVideoTagHeader(data)
	if err != nil {
		return CodecMetadata{}, err
	}
	if !h.IsSequenceHeader() {
		return CodecMetadata{}, ErrNotSequenceHeader
	}
	payload := data[h.PayloadOffset:]

	switch h.Codec {
	case VideoCodecAVC:
		return avcMetadata(payload)
	case VideoCodecHEVC:
		return hevcMetadata(payload)
	default:
		return CodecMetadata{Codec: h.Codec}, fmt.Errorf("%w: %s", ErrUnsupportedCodec, h.Codec)
	}
}

func avcMetadata(payload []byte) (CodecMetadata, error) {
	m := CodecMetadata{Codec: VideoCodecAVC}
	var spsList [][]byte
	if IsAnnexB(payload) {
		for _, nal := range SplitAnnexB(payload) {
			if AVCNALTypeOf(nal) == AVCNALSPS {
				spsList = append(spsList, nal)
			}
		}
	} else {
		cfg, err := ParseAVCDecoderConfig(payload)
		if err != nil {
			return m, err
		}
		spsList = cfg.SPS
	}
	if len(spsList) == 0 {
		return m, ErrNoSPS
	}
	sps, err := ParseAVCSPS(spsList[0])
	if err != nil {
		return m, err
	}
	m.Width, m.Height = sps.Width, sps.Height
	return m, nil
}

func hevcMetadata(payload []byte) (CodecMetadata, error) {
	m := CodecMetadata{Codec: VideoCodecHEVC}
	var spsList [][]byte
	if IsAnnexB(payload) {
		for _, nal := range SplitAnnexB(payload) {
			if HEVCNALTypeOf(nal) == HEVCNALSPS {
				spsList = append(spsList, nal)
			}
		}
	} else {
		cfg, err := ParseHEVCDecoderConfig(payload)
		if err != nil {
			return m, err
		}
		spsList = cfg.SPS
	}
	if len(spsList) == 0 {
		return m, ErrNoSPS
	}
	sps, err := ParseHEVCSPS(spsList[0])
	if err != nil {
		return m, err
	}
	m.Width, m.Height = sps.Width, sps.Height
	return m, nil
}
