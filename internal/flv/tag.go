// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package flv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// TagType is the FLV tag type byte.
type TagType uint8

const (
	TagTypeAudio  TagType = 8
	TagTypeVideo  TagType = 9
	TagTypeScript TagType = 18
)

const (
	// TagHeaderSize is the fixed size of a tag header.
	TagHeaderSize = 11
	// PreviousTagSizeLen is the size of the back-pointer that follows every tag.
	PreviousTagSizeLen = 4
	// MaxTagDataSize is the largest payload the 24-bit size field can express.
	MaxTagDataSize = 1<<24 - 1

	tagFilterBit = 0x20
	tagReserved  = 0xc0
)

var (
	ErrUnknownTagType = errors.New("flv: unknown tag type")
	ErrEncryptedTag   = errors.New("flv: filtered (encrypted) tags are not supported")
	ErrReservedBits   = errors.New("flv: reserved tag header bits set")
	ErrTagTooLarge    = errors.New("flv: tag data exceeds maximum size")
	ErrShortHeader    = errors.New("flv: short tag header")
)

// Known reports whether t is one of the tag types defined by the container.
func (t TagType) Known() bool {
	switch t {
	case TagTypeAudio, TagTypeVideo, TagTypeScript:
		return true
	default:
		return false
	}
}

func (t TagType) String() string {
	switch t {
	case TagTypeAudio:
		return "audio"
	case TagTypeVideo:
		return "video"
	case TagTypeScript:
		return "script"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// TagHeader is the decoded 11-byte tag header.
type TagHeader struct {
	Type      TagType
	DataSize  uint32
	Timestamp uint32
	StreamID  uint32
}

// ParseTagHeader decodes a tag header. It rejects unknown and filtered tag
// types and set reserved bits, so a parsed header always re-encodes to the
// same bytes.
func ParseTagHeader(b []byte) (TagHeader, error) {
	if len(b) < TagHeaderSize {
		return TagHeader{}, ErrShortHeader
	}
	if b[0]&tagReserved != 0 {
		return TagHeader{}, fmt.Errorf("%w: 0x%02x", ErrReservedBits, b[0])
	}
	if b[0]&tagFilterBit != 0 {
		return TagHeader{}, ErrEncryptedTag
	}
	typ := TagType(b[0] & 0x1f)
	if !typ.Known() {
		return TagHeader{}, fmt.Errorf("%w: %d", ErrUnknownTagType, b[0])
	}
	h := TagHeader{
		Type:      typ,
		DataSize:  uint24(b[1:4]),
		Timestamp: uint24(b[4:7]) | uint32(b[7])<<24,
		StreamID:  uint24(b[8:11]),
	}
	return h, nil
}

// Tag is one framed unit of an FLV stream.
type Tag struct {
	Type      TagType
	Timestamp uint32
	StreamID  uint32
	Data      []byte
}

// Header returns the tag header describing t.
func (t *Tag) Header() TagHeader {
	return TagHeader{Type: t.Type, DataSize: uint32(len(t.Data)), Timestamp: t.Timestamp, StreamID: t.StreamID}
}

// Size is the number of bytes AppendTo writes for t.
func (t *Tag) Size() int {
	return TagHeaderSize + len(t.Data) + PreviousTagSizeLen
}

// AppendTo serializes the tag header, data and the trailing previous-tag-size field.
func (t *Tag) AppendTo(dst []byte) ([]byte, error) {
	if len(t.Data) > MaxTagDataSize {
		return dst, ErrTagTooLarge
	}
	var hdr [TagHeaderSize]byte
	hdr[0] = byte(t.Type)
	putUint24(hdr[1:4], uint32(len(t.Data)))
	putUint24(hdr[4:7], t.Timestamp&0xffffff)
	hdr[7] = byte(t.Timestamp >> 24)
	putUint24(hdr[8:11], t.StreamID)

	dst = append(dst, hdr[:]...)
	dst = append(dst, t.Data...)
	dst = binary.BigEndian.AppendUint32(dst, uint32(TagHeaderSize+len(t.Data)))
	return dst, nil
}

// Equal reports whether both tags would serialize to identical bytes.
func (t *Tag) Equal(o *Tag) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.Type == o.Type &&
		t.Timestamp == o.Timestamp &&
		t.StreamID == o.StreamID &&
		bytes.Equal(t.Data, o.Data)
}

// Clone returns a deep copy of t.
func (t *Tag) Clone() *Tag {
	c := *t
	c.Data = append([]byte(nil), t.Data...)
	return &c
}

// IsVideo reports whether t carries video data.
func (t *Tag) IsVideo() bool { return t.Type == TagTypeVideo }

// IsAudio reports whether t carries audio data.
func (t *Tag) IsAudio() bool { return t.Type == TagTypeAudio }

// IsScript reports whether t carries AMF script data.
func (t *Tag) IsScript() bool { return t.Type == TagTypeScript }

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}
