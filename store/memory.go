package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/railflux"
	"nyiyui.ca/hato/railflux/signal"
	"nyiyui.ca/hato/railflux/tal/layout"
)

// Memory is a Store kept in process memory.
type Memory struct {
	lock    sync.RWMutex
	tracks  []layout.TrackData
	signals signal.Records
	// Writes counts successful SetOccupied calls.
	writes int
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Tracks(ctx context.Context) ([]string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	res := make([]string, len(m.tracks))
	for i, t := range m.tracks {
		res[i] = t.ID
	}
	return res, nil
}

func (m *Memory) Segments(ctx context.Context, trackID string) ([]SegmentRecord, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	i := slices.IndexFunc(m.tracks, func(t layout.TrackData) bool { return t.ID == trackID })
	if i == -1 {
		return nil, nil
	}
	return cloneSegments(m.tracks[i].Segments), nil
}

func (m *Memory) SetOccupied(ctx context.Context, ref railflux.SegmentRef, occupied bool) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	ti := slices.IndexFunc(m.tracks, func(t layout.TrackData) bool { return t.ID == ref.Track })
	if ti == -1 {
		return fmt.Errorf("%s: %w", ref, ErrUnknownSegment)
	}
	segs := m.tracks[ti].Segments
	si := slices.IndexFunc(segs, func(s layout.SegmentData) bool { return s.ID == ref.Segment })
	if si == -1 {
		return fmt.Errorf("%s: %w", ref, ErrUnknownSegment)
	}
	segs[si].Occupied = occupied
	m.writes++
	return nil
}

// Writes returns the number of successful SetOccupied calls so far.
func (m *Memory) Writes() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.writes
}

func (m *Memory) Signals(ctx context.Context) (signal.Records, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return cloneRecords(m.signals)
}

// SetSignals replaces the stored signal records.
func (m *Memory) SetSignals(recs signal.Records) error {
	c, err := cloneRecords(recs)
	if err != nil {
		return err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.signals = c
	return nil
}

func (m *Memory) Seed(ctx context.Context, s Seed) error {
	recs, err := cloneRecords(s.Signals)
	if err != nil {
		return err
	}
	tracks := make([]layout.TrackData, len(s.Tracks))
	for i, t := range s.Tracks {
		tracks[i] = layout.TrackData{ID: t.ID, Segments: cloneSegments(t.Segments)}
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.tracks = tracks
	m.signals = recs
	return nil
}

func (m *Memory) Close() error { return nil }

func cloneSegments(segs []layout.SegmentData) []layout.SegmentData {
	res := make([]layout.SegmentData, len(segs))
	for i, s := range segs {
		res[i] = layout.SegmentData{
			ID:          s.ID,
			Coordinates: slices.Clone(s.Coordinates),
			Occupied:    s.Occupied,
		}
	}
	return res
}

// cloneRecords deep-copies recs the same way they would round trip through a real store.
func cloneRecords(recs signal.Records) (signal.Records, error) {
	if recs.Empty() {
		return signal.Records{}, nil
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return signal.Records{}, err
	}
	var res signal.Records
	if err := json.Unmarshal(data, &res); err != nil {
		return signal.Records{}, err
	}
	return res, nil
}
