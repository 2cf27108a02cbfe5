// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrec/internal/flv"
	xglog "github.com/ManuGH/streamrec/internal/log"
)

type itemKind uint8

const (
	kindMedia itemKind = iota
	kindVideoSeq
	kindAudioSeq
	kindMetaData
	kindEndOfSequence
)

// item is a tag annotated by the analyzer for the segmenter.
type item struct {
	tag      *flv.Tag
	kind     itemKind
	keyframe bool
	video    bool
	// forceCut is set on a sequence header whose metadata differs from the
	// one in effect.
	forceCut bool
	meta     flv.CodecMetadata
	codec    flv.VideoCodec
	enhanced bool
	props    []flv.Property
}

type analyzer struct {
	log     *zerolog.Logger
	meta    flv.CodecMetadata
	lastSeq []byte
}

func (a *analyzer) inspect(t *flv.Tag) item {
	it := item{tag: t, kind: kindMedia, meta: a.meta}
	switch t.Type {
	case flv.TagTypeVideo:
		it.video = true
		h, err := flv.ParseVideoTagHeader(t.Data)
		if err != nil {
			a.log.Debug().Err(err).Uint32("ts", t.Timestamp).Msg("unparseable video tag header")
			return it
		}
		it.codec, it.enhanced = h.Codec, h.Enhanced
		it.keyframe = h.IsKeyframe()
		switch h.PacketType {
		case flv.VideoPacketSequenceHeader:
			it.kind = kindVideoSeq
			a.sequenceHeader(&it)
		case flv.VideoPacketEndOfSequence:
			it.kind = kindEndOfSequence
		}
	case flv.TagTypeAudio:
		if h, err := flv.ParseAudioTagHeader(t.Data); err == nil && h.IsSequenceHeader() {
			it.kind = kindAudioSeq
		}
	case flv.TagTypeScript:
		name, v, err := flv.ParseScriptData(t.Data)
		if err != nil {
			a.log.Debug().Err(err).Msg("unparseable script tag")
			return it
		}
		if name == "onMetaData" {
			it.kind = kindMetaData
			it.props = flv.Properties(v)
		}
	}
	return it
}

func (a *analyzer) sequenceHeader(it *item) {
	if string(a.lastSeq) == string(it.tag.Data) {
		return
	}
	a.lastSeq = it.tag.Data
	m, err := flv.ParseVideoSequenceHeader(it.tag.Data)
	if err != nil {
		a.log.Warn().Err(err).Msg("video sequence header without usable sps")
		return
	}
	if !a.meta.IsZero() && m != a.meta {
		it.forceCut = true
		a.log.Info().
			Str(xglog.FieldCodec, m.Codec.String()).
			Str("old_resolution", a.meta.Resolution()).
			Str(xglog.FieldResolution, m.Resolution()).
			Msg("video parameters changed, forcing segment cut")
	} else if a.meta.IsZero() {
		a.log.Info().
			Str(xglog.FieldCodec, m.Codec.String()).
			Str(xglog.FieldResolution, m.Resolution()).
			Msg("video parameters detected")
	}
	a.meta = m
	it.meta = m
}
