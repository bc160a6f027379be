package layout

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/railflux"
)

var ErrUnknownTrack = errors.New("unknown track")

// OccupancyWriter receives every occupancy change made through MarkOccupied and MarkFree.
// Implementations must not block; the tick loop calls it directly.
type OccupancyWriter interface {
	WriteOccupied(ref railflux.SegmentRef, occupied bool)
}

// SegmentData is a segment as provided by an external source.
type SegmentData struct {
	ID string `json:"id"`
	// Coordinates in grid units, each being (row, col).
	Coordinates [][2]float64 `json:"coordinates"`
	Occupied    bool         `json:"occupied"`
}

// Segment is a fixed-geometry piece of a track. Only Occupied changes after loading.
type Segment struct {
	ID          string
	Coordinates [][2]float64
	Occupied    bool
	// pixels is Coordinates converted with GridToPixel.
	pixels []railflux.Point
}

// Track is an ordered set of segments (in the order they were loaded).
type Track struct {
	ID       string
	Segments []Segment
}

func (t *Track) index(segmentID string) int {
	return slices.IndexFunc(t.Segments, func(s Segment) bool { return s.ID == segmentID })
}

// Network is the set of all tracks. Tracks and segments keep insertion order,
// which also decides which segment wins when geometry overlaps.
type Network struct {
	// lock guards tracks and every Segment.Occupied.
	lock     sync.RWMutex
	cellSize float64
	tracks   []Track
	writer   OccupancyWriter
}

// New returns an empty Network. w may be nil, in which case changes are not written anywhere.
func New(cellSize float64, w OccupancyWriter) *Network {
	return &Network{
		cellSize: cellSize,
		writer:   w,
	}
}

func (y *Network) CellSize() float64 { return y.cellSize }

// SetWriter replaces the writer notified of occupancy changes.
func (y *Network) SetWriter(w OccupancyWriter) {
	y.lock.Lock()
	defer y.lock.Unlock()
	y.writer = w
}

func (y *Network) trackIndex(trackID string) int {
	return slices.IndexFunc(y.tracks, func(t Track) bool { return t.ID == trackID })
}

// LoadSegments replaces the state of trackID with segments.
// Segments with fewer than 2 coordinates, an empty ID or a repeated ID are skipped.
// An empty trackID loads nothing.
// Returns the number of segments loaded.
func (y *Network) LoadSegments(trackID string, segments []SegmentData) int {
	if trackID == "" {
		zap.S().Warnw("skipping track without ID", "segments", len(segments))
		return 0
	}
	t := Track{ID: trackID, Segments: make([]Segment, 0, len(segments))}
	for _, sd := range segments {
		if sd.ID == "" {
			zap.S().Warnw("skipping segment without ID", "track", trackID)
			continue
		}
		if len(sd.Coordinates) < 2 {
			zap.S().Warnw("skipping malformed segment",
				"track", trackID,
				"segment", sd.ID,
				"coordinates", len(sd.Coordinates))
			continue
		}
		if t.index(sd.ID) != -1 {
			zap.S().Warnw("skipping duplicate segment",
				"track", trackID,
				"segment", sd.ID)
			continue
		}
		coords := make([][2]float64, len(sd.Coordinates))
		copy(coords, sd.Coordinates)
		pixels := make([]railflux.Point, len(coords))
		for i, c := range coords {
			pixels[i] = railflux.GridToPixel(c[0], c[1], y.cellSize)
		}
		t.Segments = append(t.Segments, Segment{
			ID:          sd.ID,
			Coordinates: coords,
			Occupied:    sd.Occupied,
			pixels:      pixels,
		})
	}

	y.lock.Lock()
	defer y.lock.Unlock()
	if i := y.trackIndex(trackID); i != -1 {
		y.tracks[i] = t
	} else {
		y.tracks = append(y.tracks, t)
	}
	return len(t.Segments)
}

// Tracks returns the IDs of all tracks in insertion order.
func (y *Network) Tracks() []string {
	y.lock.RLock()
	defer y.lock.RUnlock()
	ids := make([]string, len(y.tracks))
	for i, t := range y.tracks {
		ids[i] = t.ID
	}
	return ids
}

// SegmentContaining returns the first segment (in insertion order) whose geometry contains p.
func (y *Network) SegmentContaining(p railflux.Point) (railflux.SegmentRef, bool) {
	y.lock.RLock()
	defer y.lock.RUnlock()
	for _, t := range y.tracks {
		for _, s := range t.Segments {
			if onPolyline(p, s.pixels) {
				return railflux.SegmentRef{Track: t.ID, Segment: s.ID}, true
			}
		}
	}
	return railflux.SegmentRef{}, false
}

// lookup returns a pointer to the segment; lock must be taken.
func (y *Network) lookup(ref railflux.SegmentRef) *Segment {
	ti := y.trackIndex(ref.Track)
	if ti == -1 {
		return nil
	}
	si := y.tracks[ti].index(ref.Segment)
	if si == -1 {
		return nil
	}
	return &y.tracks[ti].Segments[si]
}

// Lookup returns a copy of the segment referred to by ref.
func (y *Network) Lookup(ref railflux.SegmentRef) (Segment, bool) {
	y.lock.RLock()
	defer y.lock.RUnlock()
	s := y.lookup(ref)
	if s == nil {
		return Segment{}, false
	}
	return *s, true
}

// MustLookup is Lookup but panics if ref doesn't exist.
// This is for debugging/testing.
func (y *Network) MustLookup(ref railflux.SegmentRef) Segment {
	s, ok := y.Lookup(ref)
	if !ok {
		panic(fmt.Sprintf("found nothing when looking up %s", ref))
	}
	return s
}

// Occupied returns the occupancy flag of ref, and whether ref exists.
func (y *Network) Occupied(ref railflux.SegmentRef) (occupied, ok bool) {
	s, ok := y.Lookup(ref)
	return s.Occupied, ok
}

// MarkOccupied sets the segment as occupied. Nothing is written if it already was.
func (y *Network) MarkOccupied(ref railflux.SegmentRef) (changed bool) {
	return y.set(ref, true, true)
}

// MarkFree sets the segment as free. Nothing is written if it already was.
func (y *Network) MarkFree(ref railflux.SegmentRef) (changed bool) {
	return y.set(ref, false, true)
}

// ApplyRemote sets the flag from an external read. It never notifies the writer.
func (y *Network) ApplyRemote(ref railflux.SegmentRef, occupied bool) (changed bool) {
	return y.set(ref, occupied, false)
}

func (y *Network) set(ref railflux.SegmentRef, occupied, write bool) bool {
	var w OccupancyWriter
	changed := func() bool {
		y.lock.Lock()
		defer y.lock.Unlock()
		s := y.lookup(ref)
		if s == nil {
			zap.S().Warnw("unknown segment", "ref", ref)
			return false
		}
		if s.Occupied == occupied {
			return false
		}
		s.Occupied = occupied
		w = y.writer
		return true
	}()
	if changed && write && w != nil {
		w.WriteOccupied(ref, occupied)
	}
	return changed
}

// WaypointsFor returns every coordinate of trackID's segments in pixel space, in order.
// Consecutive duplicates (segments sharing an endpoint) are collapsed.
func (y *Network) WaypointsFor(trackID string, reverseOrder bool) ([]railflux.Point, error) {
	y.lock.RLock()
	defer y.lock.RUnlock()
	ti := y.trackIndex(trackID)
	if ti == -1 {
		return nil, fmt.Errorf("track %s: %w", trackID, ErrUnknownTrack)
	}
	pts := make([]railflux.Point, 0)
	for _, s := range y.tracks[ti].Segments {
		for _, p := range s.pixels {
			if len(pts) > 0 && pts[len(pts)-1] == p {
				continue
			}
			pts = append(pts, p)
		}
	}
	if reverseOrder {
		pts = railflux.Reversed(pts)
	}
	return pts, nil
}

// SegmentView is a read-only copy of a segment for rendering.
type SegmentView struct {
	Ref         railflux.SegmentRef `json:"ref"`
	Coordinates [][2]float64        `json:"coordinates"`
	Pixels      []railflux.Point    `json:"pixels"`
	Occupied    bool                `json:"occupied"`
}

// Snapshot copies every segment in insertion order.
func (y *Network) Snapshot() []SegmentView {
	y.lock.RLock()
	defer y.lock.RUnlock()
	res := make([]SegmentView, 0)
	for _, t := range y.tracks {
		for _, s := range t.Segments {
			res = append(res, SegmentView{
				Ref:         railflux.SegmentRef{Track: t.ID, Segment: s.ID},
				Coordinates: s.Coordinates,
				Pixels:      s.pixels,
				Occupied:    s.Occupied,
			})
		}
	}
	return res
}
