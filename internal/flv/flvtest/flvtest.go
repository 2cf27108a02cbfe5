// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package flvtest builds synthetic FLV streams and codec headers for tests.
package flvtest

import (
	"encoding/binary"

	"github.com/ManuGH/streamrec/internal/flv"
)

// BitWriter writes MSB-first bits and Exp-Golomb codes.
type BitWriter struct {
	buf  []byte
	nbit int
}

// U writes the low n bits of v.
func (w *BitWriter) U(n int, v uint64) {
	for i := n - 1; i >= 0; i-- {
		if w.nbit%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if (v>>uint(i))&1 == 1 {
			w.buf[len(w.buf)-1] |= 1 << uint(7-w.nbit%8)
		}
		w.nbit++
	}
}

// Flag writes a single bit.
func (w *BitWriter) Flag(b bool) {
	if b {
		w.U(1, 1)
	} else {
		w.U(1, 0)
	}
}

// UE writes an unsigned Exp-Golomb code.
func (w *BitWriter) UE(v uint32) {
	x := uint64(v) + 1
	n := 0
	for t := x; t > 1; t >>= 1 {
		n++
	}
	w.U(n, 0)
	w.U(n+1, x)
}

// SE writes a signed Exp-Golomb code.
func (w *BitWriter) SE(v int32) {
	if v > 0 {
		w.UE(uint32(2*v - 1))
	} else {
		w.UE(uint32(-2 * v))
	}
}

// RBSP terminates with rbsp_trailing_bits and returns the payload.
func (w *BitWriter) RBSP() []byte {
	w.U(1, 1)
	for w.nbit%8 != 0 {
		w.U(1, 0)
	}
	return w.buf
}

// EBSP inserts emulation prevention bytes into an RBSP.
func EBSP(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+8)
	zeros := 0
	for _, c := range rbsp {
		if zeros >= 2 && c <= 3 {
			out = append(out, 3)
			zeros = 0
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

// AVCSPS returns a High profile 4:2:0 progressive SPS NAL for width x height.
// Both dimensions must be even.
func AVCSPS(width, height int) []byte {
	mbsW := (width + 15) / 16
	mbsH := (height + 15) / 16
	cropRight := (mbsW*16 - width) / 2
	cropBottom := (mbsH*16 - height) / 2

	var w BitWriter
	w.U(8, 100) // profile_idc
	w.U(8, 0)   // constraint flags
	w.U(8, 40)  // level_idc
	w.UE(0)     // seq_parameter_set_id
	w.UE(1)     // chroma_format_idc
	w.UE(0)     // bit_depth_luma_minus8
	w.UE(0)     // bit_depth_chroma_minus8
	w.Flag(false)
	w.Flag(false) // seq_scaling_matrix_present_flag
	w.UE(0)       // log2_max_frame_num_minus4
	w.UE(0)       // pic_order_cnt_type
	w.UE(2)       // log2_max_pic_order_cnt_lsb_minus4
	w.UE(4)       // max_num_ref_frames
	w.Flag(false)
	w.UE(uint32(mbsW - 1))
	w.UE(uint32(mbsH - 1))
	w.Flag(true) // frame_mbs_only_flag
	w.Flag(true) // direct_8x8_inference_flag
	crop := cropRight != 0 || cropBottom != 0
	w.Flag(crop)
	if crop {
		w.UE(0)
		w.UE(uint32(cropRight))
		w.UE(0)
		w.UE(uint32(cropBottom))
	}
	w.Flag(false) // vui_parameters_present_flag
	return append([]byte{0x67}, EBSP(w.RBSP())...)
}

// AVCPPS returns a minimal PPS NAL.
func AVCPPS() []byte { return []byte{0x68, 0xee, 0x3c, 0x80} }

// HEVCSPS returns a Main profile 4:2:0 SPS NAL for width x height.
func HEVCSPS(width, height int) []byte {
	codedW := (width + 15) &^ 15
	codedH := (height + 15) &^ 15

	var w BitWriter
	w.U(4, 0)    // sps_video_parameter_set_id
	w.U(3, 0)    // sps_max_sub_layers_minus1
	w.U(1, 1)    // sps_temporal_id_nesting_flag
	w.U(8, 0x01) // profile space, tier, profile_idc
	w.U(32, 0)   // compatibility flags
	w.U(48, 0)   // constraint flags
	w.U(8, 120)  // general_level_idc
	w.UE(0)      // sps_seq_parameter_set_id
	w.UE(1)      // chroma_format_idc
	w.UE(uint32(codedW))
	w.UE(uint32(codedH))
	crop := codedW != width || codedH != height
	w.Flag(crop)
	if crop {
		w.UE(0)
		w.UE(uint32((codedW - width) / 2))
		w.UE(0)
		w.UE(uint32((codedH - height) / 2))
	}
	w.UE(0) // bit_depth_luma_minus8
	w.UE(0) // bit_depth_chroma_minus8
	return append([]byte{0x42, 0x01}, EBSP(w.RBSP())...)
}

// AVCDecoderConfig builds an AVCDecoderConfigurationRecord with 4-byte NAL lengths.
func AVCDecoderConfig(sps, pps []byte) []byte {
	b := []byte{1, sps[1], sps[2], sps[3], 0xff, 0xe1}
	b = binary.BigEndian.AppendUint16(b, uint16(len(sps)))
	b = append(b, sps...)
	b = append(b, 1)
	b = binary.BigEndian.AppendUint16(b, uint16(len(pps)))
	return append(b, pps...)
}

// HEVCDecoderConfig builds an HEVCDecoderConfigurationRecord holding one SPS.
func HEVCDecoderConfig(sps []byte) []byte {
	b := make([]byte, 23)
	b[0] = 1
	b[1] = 0x01
	b[12] = 120
	b[16] = 0xfd // chroma_format_idc 1
	b[21] = 0x0f // lengthSizeMinusOne 3
	b[22] = 1
	b = append(b, 0x80|33, 0, 1)
	b = binary.BigEndian.AppendUint16(b, uint16(len(sps)))
	return append(b, sps...)
}

// AVCSequenceHeader returns a legacy AVC sequence header tag for width x height.
func AVCSequenceHeader(ts uint32, width, height int) *flv.Tag {
	data := append([]byte{0x17, 0, 0, 0, 0}, AVCDecoderConfig(AVCSPS(width, height), AVCPPS())...)
	return &flv.Tag{Type: flv.TagTypeVideo, Timestamp: ts, Data: data}
}

// HEVCSequenceHeader returns an enhanced HEVC sequence start tag for width x height.
func HEVCSequenceHeader(ts uint32, width, height int) *flv.Tag {
	data := append([]byte{0x90, 'h', 'v', 'c', '1'}, HEVCDecoderConfig(HEVCSPS(width, height))...)
	return &flv.Tag{Type: flv.TagTypeVideo, Timestamp: ts, Data: data}
}

// VideoFrame returns an AVC NALU tag carrying payload.
func VideoFrame(ts uint32, keyframe bool, payload []byte) *flv.Tag {
	b0 := byte(0x27)
	if keyframe {
		b0 = 0x17
	}
	data := []byte{b0, 1, 0, 0, 0}
	data = binary.BigEndian.AppendUint32(data, uint32(len(payload)))
	data = append(data, payload...)
	return &flv.Tag{Type: flv.TagTypeVideo, Timestamp: ts, Data: data}
}

// AudioSequenceHeader returns an AAC AudioSpecificConfig tag (LC, 44.1kHz, stereo).
func AudioSequenceHeader(ts uint32) *flv.Tag {
	return &flv.Tag{Type: flv.TagTypeAudio, Timestamp: ts, Data: []byte{0xaf, 0, 0x12, 0x10}}
}

// AudioFrame returns a raw AAC frame tag.
func AudioFrame(ts uint32, payload []byte) *flv.Tag {
	return &flv.Tag{Type: flv.TagTypeAudio, Timestamp: ts, Data: append([]byte{0xaf, 1}, payload...)}
}

// Script returns an onMetaData tag with the given properties.
func Script(ts uint32, props ...flv.Property) *flv.Tag {
	name, _ := flv.AppendAMF0(nil, "onMetaData")
	data, err := flv.AppendAMF0(name, flv.ECMAArray(props))
	if err != nil {
		panic(err)
	}
	return &flv.Tag{Type: flv.TagTypeScript, Timestamp: ts, Data: data}
}

// Stream serializes a file header followed by tags.
func Stream(tags ...*flv.Tag) []byte {
	b := flv.DefaultHeader().Encode()
	for _, t := range tags {
		var err error
		if b, err = t.AppendTo(b); err != nil {
			panic(err)
		}
	}
	return b
}
