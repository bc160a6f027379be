package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
	"nyiyui.ca/hato/railflux"
	"nyiyui.ca/hato/railflux/signal"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is a Store on a SQLite file.
type SQLite struct {
	conn *sql.DB
	// writeLock serializes writes; SQLite has a single writer.
	writeLock sync.Mutex
}

// OpenSQLite opens the database at path in WAL mode and makes sure the schema exists.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	s := &SQLite{conn: conn}
	if err := s.ensureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	zap.S().Infow("opened sqlite store", "path", path)
	return s, nil
}

func (s *SQLite) ensureSchema(ctx context.Context) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	if _, err := s.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLite) Tracks(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT track_id FROM track_segments
		GROUP BY track_id
		ORDER BY MIN(seq)`)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()
	res := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

func (s *SQLite) Segments(ctx context.Context, trackID string) ([]SegmentRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT segment_id, coordinates, is_occupied FROM track_segments
		WHERE track_id = ?
		ORDER BY seq`, trackID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()
	res := make([]SegmentRecord, 0)
	for rows.Next() {
		var (
			sr     SegmentRecord
			coords string
		)
		if err := rows.Scan(&sr.ID, &coords, &sr.Occupied); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(coords), &sr.Coordinates); err != nil {
			zap.S().Warnw("malformed coordinates", "track", trackID, "segment", sr.ID, "err", err)
		}
		res = append(res, sr)
	}
	return res, rows.Err()
}

func (s *SQLite) SetOccupied(ctx context.Context, ref railflux.SegmentRef, occupied bool) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	res, err := s.conn.ExecContext(ctx, `
		UPDATE track_segments SET is_occupied = ?, updated_at = datetime('now')
		WHERE track_id = ? AND segment_id = ?`, occupied, ref.Track, ref.Segment)
	if err != nil {
		return fmt.Errorf("update %s: %w", ref, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", ref, ErrUnknownSegment)
	}
	return nil
}

func (s *SQLite) Signals(ctx context.Context) (signal.Records, error) {
	var recs signal.Records
	rows, err := s.conn.QueryContext(ctx, `SELECT key, value FROM signal_state`)
	if err != nil {
		return recs, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return recs, err
		}
		if err := decodeSignal(&recs, key, value); err != nil {
			return recs, err
		}
	}
	return recs, rows.Err()
}

func (s *SQLite) Seed(ctx context.Context, seed Seed) error {
	sigRows, err := encodeSignals(seed.Signals)
	if err != nil {
		return err
	}
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	for _, q := range []string{`DELETE FROM track_segments`, `DELETE FROM signal_state`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
	}
	seq := 0
	for _, t := range seed.Tracks {
		for _, sd := range t.Segments {
			coords, err := json.Marshal(sd.Coordinates)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO track_segments (track_id, segment_id, seq, coordinates, is_occupied)
				VALUES (?, ?, ?, ?, ?)`, t.ID, sd.ID, seq, string(coords), sd.Occupied)
			if err != nil {
				return fmt.Errorf("insert %s/%s: %w", t.ID, sd.ID, err)
			}
			seq++
		}
	}
	for _, row := range sigRows {
		if _, err := tx.ExecContext(ctx, `INSERT INTO signal_state (key, value) VALUES (?, ?)`, row[0], row[1]); err != nil {
			return fmt.Errorf("insert signals %s: %w", row[0], err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Close() error {
	return s.conn.Close()
}
