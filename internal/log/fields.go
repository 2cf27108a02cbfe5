// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldStreamer  = "streamer"
	FieldPlatform  = "platform"
	FieldURL       = "url"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldEngine    = "engine"
	FieldReason    = "reason"
	FieldAttempt   = "attempt"

	// Media fields
	FieldCodec      = "codec"
	FieldResolution = "resolution"
	FieldFormat     = "format"
	FieldSegment    = "segment"
	FieldBytes      = "bytes"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath      = "path"
	FieldFinalPath = "final_path"
)
