// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package flv parses and serializes FLV containers: the file header, tag framing,
// audio/video tag headers, AMF0 script data and the AVC/HEVC parameter sets that
// carry the picture dimensions.
//
// Every function here is a pure transformation over byte slices or a thin
// streaming wrapper around io.Reader/io.Writer; nothing retains state beyond
// the value it returns.
package flv
