// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package pipeline turns a live FLV byte stream into a series of independently
// playable segment files.
//
// Stages run as goroutines joined by bounded channels:
//
//	parse -> dedup -> analyze -> segment/write
//	                                 `-> stats
//
// Each segment is written under a ".part" name and renamed once its trailer
// is on disk. The open segment is closed on every exit path.
package pipeline
