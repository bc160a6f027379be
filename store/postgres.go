package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"nyiyui.ca/hato/railflux"
	"nyiyui.ca/hato/railflux/signal"
)

//go:embed schema_postgres.sql
var schemaPostgresSQL string

// Postgres is a Store on the railway_control schema of a PostgreSQL database.
type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaPostgresSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	zap.S().Infow("opened postgres store")
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Tracks(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT track_id FROM railway_control.track_segments
		GROUP BY track_id
		ORDER BY MIN(seq)`)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	res, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan tracks: %w", err)
	}
	return res, nil
}

func (p *Postgres) Segments(ctx context.Context, trackID string) ([]SegmentRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT segment_id, coordinates::text, is_occupied FROM railway_control.track_segments
		WHERE track_id = $1
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
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		if err := json.Unmarshal([]byte(coords), &sr.Coordinates); err != nil {
			zap.S().Warnw("malformed coordinates", "track", trackID, "segment", sr.ID, "err", err)
		}
		res = append(res, sr)
	}
	return res, rows.Err()
}

func (p *Postgres) SetOccupied(ctx context.Context, ref railflux.SegmentRef, occupied bool) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE railway_control.track_segments SET is_occupied = $1, updated_at = NOW()
		WHERE track_id = $2 AND segment_id = $3`, occupied, ref.Track, ref.Segment)
	if err != nil {
		return fmt.Errorf("update %s: %w", ref, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", ref, ErrUnknownSegment)
	}
	return nil
}

func (p *Postgres) Signals(ctx context.Context) (signal.Records, error) {
	var recs signal.Records
	rows, err := p.pool.Query(ctx, `SELECT key, value::text FROM railway_control.signal_state`)
	if err != nil {
		return recs, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return recs, fmt.Errorf("scan signal: %w", err)
		}
		if err := decodeSignal(&recs, key, value); err != nil {
			return recs, err
		}
	}
	return recs, rows.Err()
}

func (p *Postgres) Seed(ctx context.Context, seed Seed) error {
	sigRows, err := encodeSignals(seed.Signals)
	if err != nil {
		return err
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM railway_control.track_segments`)
	batch.Queue(`DELETE FROM railway_control.signal_state`)
	seq := 0
	for _, t := range seed.Tracks {
		for _, sd := range t.Segments {
			coords, err := json.Marshal(sd.Coordinates)
			if err != nil {
				return err
			}
			batch.Queue(`
				INSERT INTO railway_control.track_segments (track_id, segment_id, seq, coordinates, is_occupied)
				VALUES ($1, $2, $3, $4::jsonb, $5)
				ON CONFLICT (track_id, segment_id) DO NOTHING`,
				t.ID, sd.ID, seq, string(coords), sd.Occupied)
			seq++
		}
	}
	for _, row := range sigRows {
		batch.Queue(`INSERT INTO railway_control.signal_state (key, value) VALUES ($1, $2::jsonb)`, row[0], row[1])
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
