// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package flv

import (
	"errors"
	"fmt"
)

// SoundFormat is the 4-bit audio codec id.
type SoundFormat uint8

const (
	SoundFormatPCM      SoundFormat = 0
	SoundFormatADPCM    SoundFormat = 1
	SoundFormatMP3      SoundFormat = 2
	SoundFormatPCMLE    SoundFormat = 3
	SoundFormatNelly16  SoundFormat = 4
	SoundFormatNelly8   SoundFormat = 5
	SoundFormatNelly    SoundFormat = 6
	SoundFormatG711A    SoundFormat = 7
	SoundFormatG711U    SoundFormat = 8
	SoundFormatExHeader SoundFormat = 9
	SoundFormatAAC      SoundFormat = 10
	SoundFormatSpeex    SoundFormat = 11
	SoundFormatMP38k    SoundFormat = 14
	SoundFormatDevice   SoundFormat = 15
)

func (f SoundFormat) String() string {
	switch f {
	case SoundFormatAAC:
		return "aac"
	case SoundFormatMP3, SoundFormatMP38k:
		return "mp3"
	case SoundFormatPCM, SoundFormatPCMLE:
		return "pcm"
	case SoundFormatSpeex:
		return "speex"
	case SoundFormatG711A, SoundFormatG711U:
		return "g711"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(f))
	}
}

// AACPacketType distinguishes the AudioSpecificConfig from raw frames.
type AACPacketType uint8

const (
	AACSequenceHeader AACPacketType = 0
	AACRaw            AACPacketType = 1
)

var ErrShortAudioTag = errors.New("flv: short audio tag")

// AudioTagHeader is the decoded prefix of an audio tag payload.
type AudioTagHeader struct {
	Format     SoundFormat
	Rate       uint8
	Size16Bit  bool
	Stereo     bool
	PacketType AACPacketType
	// PayloadOffset is where the codec payload starts within the tag data.
	PayloadOffset int
}

// IsSequenceHeader reports whether the tag is an AAC AudioSpecificConfig.
func (h AudioTagHeader) IsSequenceHeader() bool {
	return h.Format == SoundFormatAAC && h.PacketType == AACSequenceHeader
}

// ParseAudioTagHeader decodes the audio tag header.
func ParseAudioTagHeader(data []byte) (AudioTagHeader, error) {
	if len(data) < 1 {
		return AudioTagHeader{}, ErrShortAudioTag
	}
	h := AudioTagHeader{
		Format:        SoundFormat(data[0] >> 4),
		Rate:          (data[0] >> 2) & 0x03,
		Size16Bit:     data[0]&0x02 != 0,
		Stereo:        data[0]&0x01 != 0,
		PacketType:    AACRaw,
		PayloadOffset: 1,
	}
	if h.Format == SoundFormatAAC {
		if len(data) < 2 {
			return h, ErrShortAudioTag
		}
		h.PacketType = AACPacketType(data[1])
		h.PayloadOffset = 2
	}
	return h, nil
}
