package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/railflux"
	"nyiyui.ca/hato/railflux/signal"
	"nyiyui.ca/hato/railflux/tal/layout"
)

func testSeed() Seed {
	return Seed{
		Tracks: []layout.TrackData{
			{ID: "T2", Segments: []layout.SegmentData{
				{ID: "S1", Coordinates: [][2]float64{{70, 0}, {70, 50}}},
			}},
			{ID: "T1", Segments: []layout.SegmentData{
				{ID: "S2", Coordinates: [][2]float64{{60, 50}, {60, 100}}, Occupied: true},
				{ID: "S1", Coordinates: [][2]float64{{60, 0}, {60, 50}}},
			}},
		},
		Signals: signal.Records{
			Starters: []signal.StarterRecord{{Row: 58, Col: 45, Status: 2, Protects: "T1/S2"}},
			Gates:    map[string]bool{"LC1": true},
		},
	}
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()
	if err := s.Seed(ctx, testSeed()); err != nil {
		t.Fatalf("seed: %s", err)
	}

	tracks, err := s.Tracks(ctx)
	if err != nil {
		t.Fatalf("tracks: %s", err)
	}
	if !cmp.Equal(tracks, []string{"T2", "T1"}) {
		t.Fatalf("tracks diff: %s", cmp.Diff([]string{"T2", "T1"}, tracks))
	}

	segs, err := s.Segments(ctx, "T1")
	if err != nil {
		t.Fatalf("segments: %s", err)
	}
	expected := testSeed().Tracks[1].Segments
	if !cmp.Equal(segs, expected) {
		t.Fatalf("segments diff: %s", cmp.Diff(expected, segs))
	}

	segs, err = s.Segments(ctx, "T9")
	if err != nil {
		t.Fatalf("segments of unknown track: %s", err)
	}
	if len(segs) != 0 {
		t.Fatalf("expected no segments, got %#v", segs)
	}

	ref := railflux.SegmentRef{Track: "T1", Segment: "S1"}
	if err := s.SetOccupied(ctx, ref, true); err != nil {
		t.Fatalf("set occupied: %s", err)
	}
	if err := s.SetOccupied(ctx, railflux.SegmentRef{Track: "T1", Segment: "S9"}, true); !errors.Is(err, ErrUnknownSegment) {
		t.Fatalf("expected ErrUnknownSegment, got %v", err)
	}
	u, err := ReadUpdate(ctx, s)
	if err != nil {
		t.Fatalf("read update: %s", err)
	}
	expectedOccupied := map[railflux.SegmentRef]bool{
		{Track: "T2", Segment: "S1"}: false,
		{Track: "T1", Segment: "S2"}: true,
		{Track: "T1", Segment: "S1"}: true,
	}
	if !cmp.Equal(u.Occupied, expectedOccupied) {
		t.Fatalf("occupied diff: %s", cmp.Diff(expectedOccupied, u.Occupied))
	}
	expectedSignals := testSeed().Signals
	if !cmp.Equal(u.Signals, expectedSignals) {
		t.Fatalf("signals diff: %s", cmp.Diff(expectedSignals, u.Signals))
	}

	y := layout.New(1, nil)
	n, err := Load(ctx, s, y)
	if err != nil {
		t.Fatalf("load: %s", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 segments loaded, got %d", n)
	}
	if occupied, _ := y.Occupied(ref); !occupied {
		t.Fatalf("loaded %s should be occupied", ref)
	}

	// reseeding replaces everything
	if err := s.Seed(ctx, Seed{Tracks: testSeed().Tracks[:1]}); err != nil {
		t.Fatalf("reseed: %s", err)
	}
	tracks, _ = s.Tracks(ctx)
	if !cmp.Equal(tracks, []string{"T2"}) {
		t.Fatalf("tracks after reseed: %v", tracks)
	}
	recs, err := s.Signals(ctx)
	if err != nil {
		t.Fatalf("signals: %s", err)
	}
	if !recs.Empty() {
		t.Fatalf("expected no signals after reseed, got %#v", recs)
	}
}

func TestMemory(t *testing.T) {
	testStore(t, NewMemory())
}

func TestBunt(t *testing.T) {
	s, err := OpenBunt(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	testStore(t, s)
}

func TestBuntReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "railflux.db")
	s, err := OpenBunt(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Seed(context.Background(), testSeed()); err != nil {
		t.Fatal(err)
	}
	s.Close()
	s, err = OpenBunt(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	tracks, err := s.Tracks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(tracks, []string{"T2", "T1"}) {
		t.Fatalf("tracks after reopen: %v", tracks)
	}
}

func TestSQLite(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "railflux.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	testStore(t, s)
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("RAILFLUX_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("RAILFLUX_TEST_POSTGRES not set")
	}
	s, err := OpenPostgres(context.Background(), dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	testStore(t, s)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "etcd", "")
	if !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestSeedDuplicateKeepsFirst(t *testing.T) {
	s, err := OpenBunt(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	err = s.Seed(context.Background(), Seed{Tracks: []layout.TrackData{
		{ID: "T1", Segments: []layout.SegmentData{
			{ID: "S1", Coordinates: [][2]float64{{0, 0}, {0, 10}}},
			{ID: "S1", Coordinates: [][2]float64{{5, 0}, {5, 10}}},
		}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	segs, _ := s.Segments(context.Background(), "T1")
	if len(segs) != 1 || !cmp.Equal(segs[0].Coordinates, [][2]float64{{0, 0}, {0, 10}}) {
		t.Fatalf("got %#v", segs)
	}
}
