// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package flv_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamrec/internal/flv"
	"github.com/ManuGH/streamrec/internal/flv/flvtest"
)

func sampleTags() []*flv.Tag {
	return []*flv.Tag{
		flvtest.Script(0, flv.Property{Key: "width", Value: 1920.0}),
		flvtest.AVCSequenceHeader(0, 1920, 1080),
		flvtest.AudioSequenceHeader(0),
		flvtest.VideoFrame(0, true, []byte{0x65, 0x88, 0x84}),
		flvtest.AudioFrame(23, []byte{0x21, 0x10}),
		flvtest.VideoFrame(33, false, []byte{0x41, 0x9a}),
		// Extended timestamp byte in use.
		flvtest.VideoFrame(0x01000010, false, []byte{0x41, 0x9b}),
		{Type: flv.TagTypeAudio, Timestamp: 90, StreamID: 7, Data: nil},
	}
}

func readAll(t *testing.T, b []byte) (flv.Header, []*flv.Tag, error) {
	t.Helper()
	r := flv.NewReader(bytes.NewReader(b))
	h, err := r.ReadHeader()
	require.NoError(t, err)
	var tags []*flv.Tag
	for {
		tag, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return h, tags, nil
			}
			return h, tags, err
		}
		tags = append(tags, tag)
	}
}

func TestRoundTrip(t *testing.T) {
	in := flvtest.Stream(sampleTags()...)

	h, tags, err := readAll(t, in)
	require.NoError(t, err)
	require.Len(t, tags, len(sampleTags()))
	assert.Equal(t, uint32(0x01000010), tags[6].Timestamp)
	assert.Equal(t, uint32(7), tags[7].StreamID)

	var out bytes.Buffer
	w := flv.NewWriter(&out)
	require.NoError(t, w.WriteHeader(h))
	for _, tag := range tags {
		require.NoError(t, w.WriteTag(tag))
	}
	assert.Equal(t, in, out.Bytes())
	assert.Equal(t, int64(len(in)), w.Written())
}

func TestReaderTruncatedTag(t *testing.T) {
	in := flvtest.Stream(sampleTags()[:4]...)
	// Drop the back pointer and part of the last tag body.
	cut := in[:len(in)-6]

	_, tags, err := readAll(t, cut)
	require.Error(t, err)
	assert.ErrorIs(t, err, flv.ErrTruncated)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Len(t, tags, 3)
}

func TestReaderTruncatedHeader(t *testing.T) {
	in := flvtest.Stream(sampleTags()[:2]...)
	cut := append(in[:len(in):len(in)], byte(flv.TagTypeVideo), 0, 0)

	_, tags, err := readAll(t, cut)
	assert.ErrorIs(t, err, flv.ErrTruncated)
	assert.Len(t, tags, 2)
}

func TestReaderMissingFinalBackPointer(t *testing.T) {
	in := flvtest.Stream(sampleTags()[:3]...)
	_, tags, err := readAll(t, in[:len(in)-4])
	require.NoError(t, err)
	assert.Len(t, tags, 3)
}

func TestReaderUnknownTagType(t *testing.T) {
	in := flvtest.Stream(sampleTags()[:1]...)
	bad := append(in[:len(in):len(in)], 0x0f, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0xaa, 0, 0, 0, 12)

	_, _, err := readAll(t, bad)
	assert.ErrorIs(t, err, flv.ErrUnknownTagType)
}

func TestReaderEncryptedTag(t *testing.T) {
	_, err := flv.ParseTagHeader([]byte{0x28, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, flv.ErrEncryptedTag)
}

func TestReaderReservedBits(t *testing.T) {
	for _, b0 := range []byte{0x49, 0x89, 0xc8} {
		_, err := flv.ParseTagHeader([]byte{b0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0})
		assert.ErrorIs(t, err, flv.ErrReservedBits, "type byte 0x%02x", b0)
	}

	var buf bytes.Buffer
	buf.Write(flv.Header{Version: 1, HasVideo: true}.Encode())
	buf.Write([]byte{0x89, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0x17, 0, 0, 0, 12})
	r := flv.NewReader(&buf)
	_, err := r.ReadHeader()
	require.NoError(t, err)
	_, err = r.Next()
	assert.ErrorIs(t, err, flv.ErrReservedBits)
}

func TestParseHeader(t *testing.T) {
	h, err := flv.ParseHeader(flv.Header{Version: 1, HasAudio: true}.Encode())
	require.NoError(t, err)
	assert.True(t, h.HasAudio)
	assert.False(t, h.HasVideo)

	_, err = flv.ParseHeader([]byte("GIF89a\x00\x00\x00"))
	assert.ErrorIs(t, err, flv.ErrNotFLV)
}

func TestTagAppendTooLarge(t *testing.T) {
	tag := &flv.Tag{Type: flv.TagTypeVideo, Data: make([]byte, flv.MaxTagDataSize+1)}
	_, err := tag.AppendTo(nil)
	assert.ErrorIs(t, err, flv.ErrTagTooLarge)
}

func TestTagEqualAndClone(t *testing.T) {
	a := flvtest.VideoFrame(10, true, []byte{1, 2, 3})
	b := a.Clone()
	assert.True(t, a.Equal(b))
	b.Data[len(b.Data)-1] = 9
	assert.False(t, a.Equal(b))
	assert.Equal(t, "video", a.Type.String())
	assert.Equal(t, "unknown(3)", flv.TagType(3).String())
}
