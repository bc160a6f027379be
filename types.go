package railflux

import (
	"fmt"
	"math"
	"strings"
)

// Point is a position in the shared pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

func (p Point) Sub(q Point) Point {
	return Point{p.X - q.X, p.Y - q.Y}
}

func (p Point) Add(q Point) Point {
	return Point{p.X + q.X, p.Y + q.Y}
}

func (p Point) Scale(f float64) Point {
	return Point{p.X * f, p.Y * f}
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Reversed returns a copy of pts in reverse order.
func Reversed(pts []Point) []Point {
	res := make([]Point, len(pts))
	for i, p := range pts {
		res[len(pts)-1-i] = p
	}
	return res
}

// GridToPixel converts grid coordinates to pixel space.
// Persisted coordinates are always (row, col); row maps to Y and col maps to X.
func GridToPixel(row, col, cellSize float64) Point {
	return Point{X: col * cellSize, Y: row * cellSize}
}

// SegmentRef identifies a single segment in a track network.
type SegmentRef struct {
	Track   string `json:"track"`
	Segment string `json:"segment"`
}

func (r SegmentRef) String() string {
	return r.Track + "/" + r.Segment
}

// IsZero reports whether r refers to no segment.
func (r SegmentRef) IsZero() bool {
	return r == SegmentRef{}
}

// ParseSegmentRef parses a "track/segment" string as produced by SegmentRef.String.
func ParseSegmentRef(s string) (SegmentRef, error) {
	track, segment, ok := strings.Cut(s, "/")
	if !ok || track == "" || segment == "" || strings.Contains(segment, "/") {
		return SegmentRef{}, fmt.Errorf("invalid segment ref %q", s)
	}
	return SegmentRef{Track: track, Segment: segment}, nil
}
