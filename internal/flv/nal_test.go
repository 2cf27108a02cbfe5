// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package flv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamrec/internal/flv"
)

func TestSplitAnnexB(t *testing.T) {
	data := []byte{0, 0, 0, 1, 0x67, 1, 2, 0, 0, 1, 0x68, 3, 0, 0, 0, 1, 0x65, 4, 5}
	got := flv.SplitAnnexB(data)
	assert.Equal(t, [][]byte{{0x67, 1, 2}, {0x68, 3}, {0x65, 4, 5}}, got)
	assert.Nil(t, flv.SplitAnnexB([]byte{1, 2, 3}))
}

func TestSplitNALUnits(t *testing.T) {
	data := []byte{0, 0, 0, 2, 0x65, 1, 0, 0, 0, 1, 0x41}
	got, err := flv.SplitNALUnits(data, 4)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x65, 1}, {0x41}}, got)

	_, err = flv.SplitNALUnits([]byte{0, 0, 0, 9, 1}, 4)
	assert.ErrorIs(t, err, flv.ErrBadNALLength)

	_, err = flv.SplitNALUnits(data, 3)
	assert.Error(t, err)
}

func TestDetectNALFraming(t *testing.T) {
	assert.Equal(t, flv.NALFramingLengthPrefixed, flv.DetectNALFraming([]byte{0, 0, 0, 2, 0x65, 1}))
	assert.Equal(t, flv.NALFramingAnnexB, flv.DetectNALFraming([]byte{0, 0, 0, 1, 0x65, 1, 2}))
	assert.Equal(t, flv.NALFramingAnnexB, flv.DetectNALFraming([]byte{0, 0, 1, 0x65, 1, 2, 3}))
	assert.Equal(t, flv.NALFramingUnknown, flv.DetectNALFraming([]byte{1}))
}

func TestRemoveEmulationPrevention(t *testing.T) {
	in := []byte{0x42, 0, 0, 3, 1, 0, 0, 3, 0, 0, 3}
	assert.Equal(t, []byte{0x42, 0, 0, 1, 0, 0, 0, 0}, flv.RemoveEmulationPrevention(in))
	plain := []byte{1, 2, 3}
	assert.Equal(t, plain, flv.RemoveEmulationPrevention(plain))
}
