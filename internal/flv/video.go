// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package flv

import (
	"errors"
	"fmt"
)

// VideoCodec identifies the video codec of a tag, covering both the legacy
// 4-bit codec id and the enhanced-FLV FourCC signalling.
type VideoCodec uint8

const (
	VideoCodecUnknown VideoCodec = 0
	VideoCodecH263    VideoCodec = 2
	VideoCodecScreen  VideoCodec = 3
	VideoCodecVP6     VideoCodec = 4
	VideoCodecVP6A    VideoCodec = 5
	VideoCodecScreen2 VideoCodec = 6
	VideoCodecAVC     VideoCodec = 7
	VideoCodecHEVC    VideoCodec = 12
	VideoCodecAV1     VideoCodec = 13
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecH263:
		return "h263"
	case VideoCodecScreen, VideoCodecScreen2:
		return "screen"
	case VideoCodecVP6, VideoCodecVP6A:
		return "vp6"
	case VideoCodecAVC:
		return "avc"
	case VideoCodecHEVC:
		return "hevc"
	case VideoCodecAV1:
		return "av1"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// FrameType is the 4-bit (3-bit in enhanced mode) frame type.
type FrameType uint8

const (
	FrameKey        FrameType = 1
	FrameInter      FrameType = 2
	FrameDisposable FrameType = 3
	FrameGenerated  FrameType = 4
	FrameCommand    FrameType = 5
)

// VideoPacketType normalizes the legacy AVCPacketType and the enhanced PacketType.
type VideoPacketType uint8

const (
	VideoPacketSequenceHeader VideoPacketType = iota
	VideoPacketCodedFrames
	VideoPacketEndOfSequence
	VideoPacketMetadata
	VideoPacketOther
)

const exHeaderBit = 0x80

// Enhanced-FLV packet types.
const (
	exPacketSequenceStart        = 0
	exPacketCodedFrames          = 1
	exPacketSequenceEnd          = 2
	exPacketCodedFramesX         = 3
	exPacketMetadata             = 4
	exPacketMPEG2TSSequenceStart = 5
)

var (
	ErrShortVideoTag = errors.New("flv: short video tag")

	fourCCs = map[string]VideoCodec{
		"avc1": VideoCodecAVC,
		"hvc1": VideoCodecHEVC,
		"av01": VideoCodecAV1,
	}
)

// VideoTagHeader is the decoded prefix of a video tag payload.
type VideoTagHeader struct {
	FrameType       FrameType
	Codec           VideoCodec
	PacketType      VideoPacketType
	CompositionTime int32
	Enhanced        bool
	FourCC          string
	// PayloadOffset is where the codec payload starts within the tag data.
	PayloadOffset int
}

// IsSequenceHeader reports whether the tag carries decoder configuration.
func (h VideoTagHeader) IsSequenceHeader() bool {
	return h.PacketType == VideoPacketSequenceHeader
}

// IsKeyframe reports whether the tag is a keyframe.
func (h VideoTagHeader) IsKeyframe() bool {
	return h.FrameType == FrameKey
}

// ParseVideoTagHeader decodes the legacy or enhanced video tag header.
func ParseVideoTagHeader(data []byte) (VideoTagHeader, error) {
	if len(data) < 1 {
		return VideoTagHeader{}, ErrShortVideoTag
	}
	if data[0]&exHeaderBit != 0 {
		return parseEnhancedVideoHeader(data)
	}

	h := VideoTagHeader{
		FrameType:     FrameType(data[0] >> 4),
		Codec:         VideoCodec(data[0] & 0x0f),
		PacketType:    VideoPacketCodedFrames,
		PayloadOffset: 1,
	}
	switch h.Codec {
	case VideoCodecAVC, VideoCodecHEVC, VideoCodecAV1:
		if len(data) < 5 {
			return h, ErrShortVideoTag
		}
		switch data[1] {
		case 0:
			h.PacketType = VideoPacketSequenceHeader
		case 1:
			h.PacketType = VideoPacketCodedFrames
		case 2:
			h.PacketType = VideoPacketEndOfSequence
		default:
			h.PacketType = VideoPacketOther
		}
		h.CompositionTime = int24(data[2:5])
		h.PayloadOffset = 5
	}
	return h, nil
}

func parseEnhancedVideoHeader(data []byte) (VideoTagHeader, error) {
	if len(data) < 5 {
		return VideoTagHeader{}, ErrShortVideoTag
	}
	h := VideoTagHeader{
		FrameType:     FrameType((data[0] >> 4) & 0x07),
		Enhanced:      true,
		FourCC:        string(data[1:5]),
		PayloadOffset: 5,
	}
	h.Codec = fourCCs[h.FourCC]

	switch data[0] & 0x0f {
	case exPacketSequenceStart, exPacketMPEG2TSSequenceStart:
		h.PacketType = VideoPacketSequenceHeader
	case exPacketCodedFrames:
		h.PacketType = VideoPacketCodedFrames
		if h.Codec == VideoCodecAVC || h.Codec == VideoCodecHEVC {
			if len(data) < 8 {
				return h, ErrShortVideoTag
			}
			h.CompositionTime = int24(data[5:8])
			h.PayloadOffset = 8
		}
	case exPacketCodedFramesX:
		h.PacketType = VideoPacketCodedFrames
	case exPacketSequenceEnd:
		h.PacketType = VideoPacketEndOfSequence
	case exPacketMetadata:
		h.PacketType = VideoPacketMetadata
	default:
		h.PacketType = VideoPacketOther
	}
	return h, nil
}

// EndOfSequenceTag builds the end-of-sequence marker written when a segment closes.
func EndOfSequenceTag(codec VideoCodec, enhanced bool, ts uint32) *Tag {
	var data []byte
	if enhanced || codec == VideoCodecAV1 {
		fourCC := "avc1"
		for k, v := range fourCCs {
			if v == codec {
				fourCC = k
			}
		}
		data = append([]byte{exHeaderBit | byte(FrameKey)<<4 | exPacketSequenceEnd}, fourCC...)
	} else {
		data = []byte{byte(FrameKey)<<4 | byte(codec), 2, 0, 0, 0}
	}
	return &Tag{Type: TagTypeVideo, Timestamp: ts, Data: data}
}

func int24(b []byte) int32 {
	v := int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	if v&0x800000 != 0 {
		v -= 1 << 24
	}
	return v
}
