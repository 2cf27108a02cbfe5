// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package flv

import (
	"errors"
	"fmt"
)

var ErrBadDecoderConfig = errors.New("flv: malformed decoder configuration record")

// AVCDecoderConfig is an AVCDecoderConfigurationRecord.
type AVCDecoderConfig struct {
	Profile       uint8
	Compatibility uint8
	Level         uint8
	NALLengthSize int
	SPS           [][]byte
	PPS           [][]byte
}

// ParseAVCDecoderConfig decodes the record carried by an AVC sequence header.
func ParseAVCDecoderConfig(b []byte) (AVCDecoderConfig, error) {
	var c AVCDecoderConfig
	if len(b) < 7 || b[0] != 1 {
		return c, ErrBadDecoderConfig
	}
	c.Profile, c.Compatibility, c.Level = b[1], b[2], b[3]
	c.NALLengthSize = int(b[4]&0x03) + 1

	p := 5
	var err error
	c.SPS, p, err = readParamSets(b, p, int(b[p]&0x1f))
	if err != nil {
		return c, fmt.Errorf("avc sps list: %w", err)
	}
	if p >= len(b) {
		// Some encoders omit the PPS list entirely.
		return c, nil
	}
	c.PPS, _, err = readParamSets(b, p, int(b[p]))
	if err != nil {
		return c, fmt.Errorf("avc pps list: %w", err)
	}
	return c, nil
}

// readParamSets reads n 16-bit length-prefixed units; p indexes the count byte.
func readParamSets(b []byte, p, n int) ([][]byte, int, error) {
	p++
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if p+2 > len(b) {
			return out, p, ErrBadDecoderConfig
		}
		l := int(b[p])<<8 | int(b[p+1])
		p += 2
		if p+l > len(b) {
			return out, p, ErrBadDecoderConfig
		}
		out = append(out, b[p:p+l])
		p += l
	}
	return out, p, nil
}

// AVCSPS holds the fields of an H.264 sequence parameter set needed for sizing.
type AVCSPS struct {
	Profile         uint8
	Level           uint8
	ChromaFormatIDC uint32
	POCType         uint32
	FrameMBsOnly    bool
	Width           int
	Height          int
}

var avcHighProfiles = map[uint8]bool{
	100: true, 110: true, 122: true, 244: true, 44: true, 83: true, 86: true,
	118: true, 128: true, 138: true, 139: true, 134: true, 135: true,
}

// ParseAVCSPS parses an H.264 SPS NAL unit, header byte included.
func ParseAVCSPS(nal []byte) (AVCSPS, error) {
	var s AVCSPS
	if len(nal) < 4 || AVCNALTypeOf(nal) != AVCNALSPS {
		return s, fmt.Errorf("flv: not an avc sps nal")
	}
	r := newBitReader(RemoveEmulationPrevention(nal[1:]))
	if err := s.parse(r); err != nil {
		return s, fmt.Errorf("parse avc sps: %w", err)
	}
	return s, nil
}

func (s *AVCSPS) parse(r *bitReader) error {
	v, err := r.bits(8)
	if err != nil {
		return err
	}
	s.Profile = uint8(v)
	if err := r.skip(8); err != nil { // constraint flags
		return err
	}
	if v, err = r.bits(8); err != nil {
		return err
	}
	s.Level = uint8(v)
	if _, err = r.ue(); err != nil { // seq_parameter_set_id
		return err
	}

	s.ChromaFormatIDC = 1
	separateColourPlane := false
	if avcHighProfiles[s.Profile] {
		if s.ChromaFormatIDC, err = r.ue(); err != nil {
			return err
		}
		if s.ChromaFormatIDC == 3 {
			if separateColourPlane, err = r.flag(); err != nil {
				return err
			}
		}
		if _, err = r.ue(); err != nil { // bit_depth_luma_minus8
			return err
		}
		if _, err = r.ue(); err != nil { // bit_depth_chroma_minus8
			return err
		}
		if err = r.skip(1); err != nil { // qpprime_y_zero_transform_bypass_flag
			return err
		}
		present, err := r.flag()
		if err != nil {
			return err
		}
		if present {
			n := 8
			if s.ChromaFormatIDC == 3 {
				n = 12
			}
			for i := 0; i < n; i++ {
				listPresent, err := r.flag()
				if err != nil {
					return err
				}
				if !listPresent {
					continue
				}
				size := 16
				if i >= 6 {
					size = 64
				}
				if err := skipScalingList(r, size); err != nil {
					return err
				}
			}
		}
	}

	if _, err = r.ue(); err != nil { // log2_max_frame_num_minus4
		return err
	}
	if s.POCType, err = r.ue(); err != nil {
		return err
	}
	switch s.POCType {
	case 0:
		if _, err = r.ue(); err != nil {
			return err
		}
	case 1:
		if err = r.skip(1); err != nil {
			return err
		}
		if _, err = r.se(); err != nil {
			return err
		}
		if _, err = r.se(); err != nil {
			return err
		}
		cycle, err := r.ue()
		if err != nil {
			return err
		}
		for i := uint32(0); i < cycle; i++ {
			if _, err = r.se(); err != nil {
				return err
			}
		}
	}

	if _, err = r.ue(); err != nil { // max_num_ref_frames
		return err
	}
	if err = r.skip(1); err != nil { // gaps_in_frame_num_value_allowed_flag
		return err
	}
	wMBs, err := r.ue()
	if err != nil {
		return err
	}
	hMapUnits, err := r.ue()
	if err != nil {
		return err
	}
	if s.FrameMBsOnly, err = r.flag(); err != nil {
		return err
	}
	if !s.FrameMBsOnly {
		if err = r.skip(1); err != nil { // mb_adaptive_frame_field_flag
			return err
		}
	}
	if err = r.skip(1); err != nil { // direct_8x8_inference_flag
		return err
	}
	cropping, err := r.flag()
	if err != nil {
		return err
	}
	var cl, cr, ct, cb uint32
	if cropping {
		for _, p := range []*uint32{&cl, &cr, &ct, &cb} {
			if *p, err = r.ue(); err != nil {
				return err
			}
		}
	}

	frameMBsOnly := 0
	if s.FrameMBsOnly {
		frameMBsOnly = 1
	}
	chromaArrayType := s.ChromaFormatIDC
	if separateColourPlane {
		chromaArrayType = 0
	}
	cropX, cropY := 1, 2-frameMBsOnly
	if chromaArrayType != 0 {
		subW, subH := chromaSubsampling(chromaArrayType)
		cropX = subW
		cropY = subH * (2 - frameMBsOnly)
	}
	s.Width = int(wMBs+1)*16 - cropX*int(cl+cr)
	s.Height = (2-frameMBsOnly)*int(hMapUnits+1)*16 - cropY*int(ct+cb)
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", s.Width, s.Height)
	}
	return nil
}

func skipScalingList(r *bitReader, size int) error {
	last, next := int32(8), int32(8)
	for j := 0; j < size; j++ {
		if next != 0 {
			delta, err := r.se()
			if err != nil {
				return err
			}
			next = (last + delta + 256) % 256
		}
		if next != 0 {
			last = next
		}
	}
	return nil
}

// chromaSubsampling returns SubWidthC and SubHeightC for chroma_format_idc.
func chromaSubsampling(chromaFormat uint32) (int, int) {
	switch chromaFormat {
	case 1:
		return 2, 2
	case 2:
		return 2, 1
	default:
		return 1, 1
	}
}
