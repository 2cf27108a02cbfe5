// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package flv

import "fmt"

const hevcConfigHeaderSize = 23

// HEVCDecoderConfig is an HEVCDecoderConfigurationRecord.
type HEVCDecoderConfig struct {
	ProfileSpace  uint8
	Tier          bool
	Profile       uint8
	Level         uint8
	ChromaFormat  uint8
	NALLengthSize int
	VPS           [][]byte
	SPS           [][]byte
	PPS           [][]byte
}

// ParseHEVCDecoderConfig decodes the record carried by an HEVC sequence header.
func ParseHEVCDecoderConfig(b []byte) (HEVCDecoderConfig, error) {
	var c HEVCDecoderConfig
	if len(b) < hevcConfigHeaderSize || b[0] != 1 {
		return c, ErrBadDecoderConfig
	}
	c.ProfileSpace = b[1] >> 6
	c.Tier = b[1]&0x20 != 0
	c.Profile = b[1] & 0x1f
	c.Level = b[12]
	c.ChromaFormat = b[16] & 0x03
	c.NALLengthSize = int(b[21]&0x03) + 1

	arrays := int(b[22])
	p := hevcConfigHeaderSize
	for i := 0; i < arrays; i++ {
		if p+3 > len(b) {
			return c, ErrBadDecoderConfig
		}
		typ := HEVCNALType(b[p] & 0x3f)
		n := int(b[p+1])<<8 | int(b[p+2])
		p += 3
		for j := 0; j < n; j++ {
			if p+2 > len(b) {
				return c, ErrBadDecoderConfig
			}
			l := int(b[p])<<8 | int(b[p+1])
			p += 2
			if p+l > len(b) {
				return c, ErrBadDecoderConfig
			}
			nal := b[p : p+l]
			p += l
			switch typ {
			case HEVCNALVPS:
				c.VPS = append(c.VPS, nal)
			case HEVCNALSPS:
				c.SPS = append(c.SPS, nal)
			case HEVCNALPPS:
				c.PPS = append(c.PPS, nal)
			}
		}
	}
	return c, nil
}

// HEVCSPS holds the fields of an H.265 sequence parameter set needed for sizing.
type HEVCSPS struct {
	MaxSubLayers    int
	Profile         uint8
	Level           uint8
	ChromaFormatIDC uint32
	Width           int
	Height          int
}

// ParseHEVCSPS parses an H.265 SPS NAL unit, 2-byte header included.
func ParseHEVCSPS(nal []byte) (HEVCSPS, error) {
	var s HEVCSPS
	if len(nal) < 3 || HEVCNALTypeOf(nal) != HEVCNALSPS {
		return s, fmt.Errorf("flv: not an hevc sps nal")
	}
	r := newBitReader(RemoveEmulationPrevention(nal[2:]))
	if err := s.parse(r); err != nil {
		return s, fmt.Errorf("parse hevc sps: %w", err)
	}
	return s, nil
}

func (s *HEVCSPS) parse(r *bitReader) error {
	if err := r.skip(4); err != nil { // sps_video_parameter_set_id
		return err
	}
	v, err := r.bits(3)
	if err != nil {
		return err
	}
	subLayersMinus1 := int(v)
	s.MaxSubLayers = subLayersMinus1 + 1
	if err = r.skip(1); err != nil { // sps_temporal_id_nesting_flag
		return err
	}
	if err = s.skipProfileTierLevel(r, subLayersMinus1); err != nil {
		return err
	}
	if _, err = r.ue(); err != nil { // sps_seq_parameter_set_id
		return err
	}
	if s.ChromaFormatIDC, err = r.ue(); err != nil {
		return err
	}
	if s.ChromaFormatIDC == 3 {
		if err = r.skip(1); err != nil { // separate_colour_plane_flag
			return err
		}
	}
	w, err := r.ue()
	if err != nil {
		return err
	}
	h, err := r.ue()
	if err != nil {
		return err
	}
	s.Width, s.Height = int(w), int(h)

	window, err := r.flag()
	if err != nil {
		return err
	}
	if window {
		var cl, cr, ct, cb uint32
		for _, p := range []*uint32{&cl, &cr, &ct, &cb} {
			if *p, err = r.ue(); err != nil {
				return err
			}
		}
		subW, subH := chromaSubsampling(s.ChromaFormatIDC)
		s.Width -= subW * int(cl+cr)
		s.Height -= subH * int(ct+cb)
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", s.Width, s.Height)
	}
	return nil
}

func (s *HEVCSPS) skipProfileTierLevel(r *bitReader, subLayersMinus1 int) error {
	// general_profile_space(2) tier(1) profile_idc(5)
	v, err := r.bits(8)
	if err != nil {
		return err
	}
	s.Profile = uint8(v & 0x1f)
	// compatibility flags(32) + constraint flags(48)
	if err = r.skip(80); err != nil {
		return err
	}
	if v, err = r.bits(8); err != nil {
		return err
	}
	s.Level = uint8(v)

	profilePresent := make([]bool, subLayersMinus1)
	levelPresent := make([]bool, subLayersMinus1)
	for i := 0; i < subLayersMinus1; i++ {
		if profilePresent[i], err = r.flag(); err != nil {
			return err
		}
		if levelPresent[i], err = r.flag(); err != nil {
			return err
		}
	}
	if subLayersMinus1 > 0 {
		if err = r.skip(2 * (8 - subLayersMinus1)); err != nil {
			return err
		}
	}
	for i := 0; i < subLayersMinus1; i++ {
		if profilePresent[i] {
			if err = r.skip(88); err != nil {
				return err
			}
		}
		if levelPresent[i] {
			if err = r.skip(8); err != nil {
				return err
			}
		}
	}
	return nil
}
