// Package store persists the shared occupancy state of a track network.
//
// The simulator never talks to a Store directly from its tick loop; see Link.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nyiyui.ca/hato/railflux"
	"nyiyui.ca/hato/railflux/signal"
	"nyiyui.ca/hato/railflux/tal/layout"
)

var (
	ErrUnknownDriver  = errors.New("unknown store driver")
	ErrUnknownSegment = errors.New("unknown segment")
)

// SegmentRecord is a segment as stored, coordinates in (row, col).
type SegmentRecord = layout.SegmentData

// Seed is the initial content of a store.
type Seed struct {
	Tracks  []layout.TrackData `json:"tracks"`
	Signals signal.Records     `json:"signals"`
}

type Store interface {
	// Tracks returns the IDs of all tracks in the order they were seeded.
	Tracks(ctx context.Context) ([]string, error)
	// Segments returns the segments of trackID in the order they were seeded.
	// An unknown track gives no segments.
	Segments(ctx context.Context, trackID string) ([]SegmentRecord, error)
	SetOccupied(ctx context.Context, ref railflux.SegmentRef, occupied bool) error
	Signals(ctx context.Context) (signal.Records, error)
	// Seed replaces the whole content of the store.
	Seed(ctx context.Context, s Seed) error
	Close() error
}

// Open opens a store by driver name: bunt, sqlite, postgres or memory.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case "bunt", "buntdb":
		return OpenBunt(dsn)
	case "sqlite", "sqlite3":
		return OpenSQLite(ctx, dsn)
	case "postgres", "pgx":
		return OpenPostgres(ctx, dsn)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%q: %w", driver, ErrUnknownDriver)
	}
}

// Update is the result of reading a store's shared state.
type Update struct {
	// Occupied has the occupancy flag of every stored segment.
	Occupied map[railflux.SegmentRef]bool
	Signals  signal.Records
}

// Empty reports whether u carries no data.
func (u Update) Empty() bool {
	return len(u.Occupied) == 0 && u.Signals.Empty()
}

// ReadUpdate reads occupancy and signals from s.
func ReadUpdate(ctx context.Context, s Store) (Update, error) {
	tracks, err := s.Tracks(ctx)
	if err != nil {
		return Update{}, fmt.Errorf("tracks: %w", err)
	}
	u := Update{Occupied: map[railflux.SegmentRef]bool{}}
	for _, t := range tracks {
		segs, err := s.Segments(ctx, t)
		if err != nil {
			return Update{}, fmt.Errorf("track %s: %w", t, err)
		}
		for _, sr := range segs {
			u.Occupied[railflux.SegmentRef{Track: t, Segment: sr.ID}] = sr.Occupied
		}
	}
	u.Signals, err = s.Signals(ctx)
	if err != nil {
		return Update{}, fmt.Errorf("signals: %w", err)
	}
	return u, nil
}

// Load fills y with every track in s. It returns the number of segments loaded.
func Load(ctx context.Context, s Store, y *layout.Network) (int, error) {
	tracks, err := s.Tracks(ctx)
	if err != nil {
		return 0, fmt.Errorf("tracks: %w", err)
	}
	n := 0
	for _, t := range tracks {
		segs, err := s.Segments(ctx, t)
		if err != nil {
			return n, fmt.Errorf("track %s: %w", t, err)
		}
		n += y.LoadSegments(t, segs)
	}
	return n, nil
}
