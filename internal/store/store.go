// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package store persists streamer status, segments and finished streams in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/streamrec/internal/pipeline"
	"github.com/ManuGH/streamrec/internal/streamer"
)

const schemaVersion = 1

var ErrNotFound = errors.New("not found")

// StreamerRecord is the persisted status of one streamer.
type StreamerRecord struct {
	URL       string
	ID        string
	Name      string
	Platform  string
	State     streamer.State
	Live      bool
	LastLive  time.Time
	UpdatedAt time.Time
}

// SegmentRecord is one finalized output file.
type SegmentRecord struct {
	StreamerURL string
	Index       int
	Path        string
	Size        int64
	Duration    time.Duration
	Codec       string
	Width       int
	Height      int
	CreatedAt   time.Time
	ClosedAt    time.Time
}

// StreamRecord is one finished live stream.
type StreamRecord struct {
	StreamerURL string
	Segments    int
	Bytes       int64
	FinishedAt  time.Time
}

// Store is the SQLite backed persistence layer.
type Store struct {
	DB  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := OpenSQLite(path, DefaultSQLiteConfig())
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	var current int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS streamers (
		url TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		platform TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'idle',
		live BOOLEAN NOT NULL DEFAULT 0,
		last_live_ms INTEGER NOT NULL DEFAULT 0,
		updated_at_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS segments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		streamer_url TEXT NOT NULL,
		idx INTEGER NOT NULL,
		path TEXT NOT NULL UNIQUE,
		size INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		codec TEXT NOT NULL DEFAULT '',
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL,
		closed_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_segments_streamer ON segments(streamer_url, closed_at_ms);

	CREATE TABLE IF NOT EXISTS streams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		streamer_url TEXT NOT NULL,
		segments INTEGER NOT NULL,
		bytes INTEGER NOT NULL,
		finished_at_ms INTEGER NOT NULL
	);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertStreamer records s, keeping its live status if already known.
func (s *Store) UpsertStreamer(ctx context.Context, st streamer.Streamer) error {
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO streamers (url, id, name, platform, updated_at_ms) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		id = excluded.id,
		name = excluded.name,
		platform = excluded.platform,
		updated_at_ms = excluded.updated_at_ms`,
		st.Key(), st.ID, st.Name, st.Platform, s.now().UnixMilli())
	return err
}

// SetState stores the lifecycle state of a streamer.
func (s *Store) SetState(ctx context.Context, st streamer.Streamer, state streamer.State) error {
	return s.update(ctx, st, "state = ?", string(state))
}

// SetLive stores the live flag of a streamer.
func (s *Store) SetLive(ctx context.Context, st streamer.Streamer, live bool) error {
	return s.update(ctx, st, "live = ?", live)
}

// SetLastLive stores the last time a streamer was seen live.
func (s *Store) SetLastLive(ctx context.Context, st streamer.Streamer, at time.Time) error {
	return s.update(ctx, st, "last_live_ms = ?", at.UnixMilli())
}

func (s *Store) update(ctx context.Context, st streamer.Streamer, set string, value any) error {
	if err := s.UpsertStreamer(ctx, st); err != nil {
		return err
	}
	// set is one of the constant clauses above.
	_, err := s.DB.ExecContext(ctx, "UPDATE streamers SET "+set+", updated_at_ms = ? WHERE url = ?",
		value, s.now().UnixMilli(), st.Key())
	return err
}

// Streamer returns the stored status of url.
func (s *Store) Streamer(ctx context.Context, url string) (StreamerRecord, error) {
	var (
		r                 StreamerRecord
		state             string
		lastLive, updated int64
	)
	err := s.DB.QueryRowContext(ctx, `
	SELECT url, id, name, platform, state, live, last_live_ms, updated_at_ms
	FROM streamers WHERE url = ?`, url).
		Scan(&r.URL, &r.ID, &r.Name, &r.Platform, &state, &r.Live, &lastLive, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("streamer %s: %w", url, ErrNotFound)
	}
	if err != nil {
		return r, err
	}
	r.State = streamer.State(state)
	if lastLive > 0 {
		r.LastLive = time.UnixMilli(lastLive)
	}
	r.UpdatedAt = time.UnixMilli(updated)
	return r, nil
}

// AddSegment records a finalized segment. Re-adding a path is a no-op.
func (s *Store) AddSegment(ctx context.Context, st streamer.Streamer, seg pipeline.Segment) error {
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO segments (streamer_url, idx, path, size, duration_ms, codec, width, height, created_at_ms, closed_at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO NOTHING`,
		st.Key(), seg.Index, seg.Path, seg.Size, seg.Duration.Milliseconds(),
		codecName(seg), seg.Metadata.Width, seg.Metadata.Height,
		seg.CreatedAt.UnixMilli(), seg.ClosedAt.UnixMilli())
	return err
}

// Segments lists the segments of url in closing order.
func (s *Store) Segments(ctx context.Context, url string) ([]SegmentRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
	SELECT streamer_url, idx, path, size, duration_ms, codec, width, height, created_at_ms, closed_at_ms
	FROM segments WHERE streamer_url = ? ORDER BY closed_at_ms, id`, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []SegmentRecord
	for rows.Next() {
		var (
			r                      SegmentRecord
			durMs, created, closed int64
		)
		if err := rows.Scan(&r.StreamerURL, &r.Index, &r.Path, &r.Size, &durMs, &r.Codec, &r.Width, &r.Height, &created, &closed); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(durMs) * time.Millisecond
		r.CreatedAt = time.UnixMilli(created)
		r.ClosedAt = time.UnixMilli(closed)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddStream records a finished live stream.
func (s *Store) AddStream(ctx context.Context, st streamer.Streamer, segs []pipeline.Segment) error {
	var total int64
	for _, seg := range segs {
		total += seg.Size
	}
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO streams (streamer_url, segments, bytes, finished_at_ms) VALUES (?, ?, ?, ?)`,
		st.Key(), len(segs), total, s.now().UnixMilli())
	return err
}

// Streams lists finished streams of url, newest first.
func (s *Store) Streams(ctx context.Context, url string) ([]StreamRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
	SELECT streamer_url, segments, bytes, finished_at_ms FROM streams
	WHERE streamer_url = ? ORDER BY finished_at_ms DESC, id DESC`, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []StreamRecord
	for rows.Next() {
		var (
			r  StreamRecord
			at int64
		)
		if err := rows.Scan(&r.StreamerURL, &r.Segments, &r.Bytes, &at); err != nil {
			return nil, err
		}
		r.FinishedAt = time.UnixMilli(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Check runs a quick integrity check.
func (s *Store) Check(ctx context.Context) error {
	issues, err := VerifyIntegrity(ctx, s.DB, false)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("store integrity: %v", issues)
	}
	return nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func codecName(seg pipeline.Segment) string {
	if seg.Metadata.IsZero() {
		return ""
	}
	return seg.Metadata.Codec.String()
}
