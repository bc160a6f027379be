package tal

import "nyiyui.ca/hato/railflux"

// WaypointPath is the closed loop a train follows. Indices wrap modulo Len.
type WaypointPath struct {
	points []railflux.Point
}

// NewWaypointPath copies points (reversed if asked) into a new path.
func NewWaypointPath(points []railflux.Point, reverseOrder bool) WaypointPath {
	if reverseOrder {
		return WaypointPath{points: railflux.Reversed(points)}
	}
	pts := make([]railflux.Point, len(points))
	copy(pts, points)
	return WaypointPath{points: pts}
}

func (p WaypointPath) Len() int { return len(p.points) }

// At returns the point at i, wrapped. An empty path gives the zero point.
func (p WaypointPath) At(i int) railflux.Point {
	if len(p.points) == 0 {
		return railflux.Point{}
	}
	return p.points[wrap(i, len(p.points))]
}

// Next returns the point after i and its index.
// ok is false for an empty path, in which case nothing should move.
func (p WaypointPath) Next(i int) (pt railflux.Point, next int, ok bool) {
	if len(p.points) == 0 {
		return railflux.Point{}, 0, false
	}
	next = wrap(i+1, len(p.points))
	return p.points[next], next, true
}

// Points returns a copy of the waypoints.
func (p WaypointPath) Points() []railflux.Point {
	res := make([]railflux.Point, len(p.points))
	copy(res, p.points)
	return res
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
