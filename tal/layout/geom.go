package layout

import (
	"math"

	"nyiyui.ca/hato/railflux"
)

// Tolerance is the slack allowed when testing whether a point lies on a segment.
const Tolerance = 1e-6

// onLine reports whether p lies on the straight piece between a and b.
func onLine(p, a, b railflux.Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if math.Abs(cross) > Tolerance {
		return false
	}
	return p.X >= math.Min(a.X, b.X)-Tolerance &&
		p.X <= math.Max(a.X, b.X)+Tolerance &&
		p.Y >= math.Min(a.Y, b.Y)-Tolerance &&
		p.Y <= math.Max(a.Y, b.Y)+Tolerance
}

// onPolyline reports whether p lies on any consecutive pair of pts.
func onPolyline(p railflux.Point, pts []railflux.Point) bool {
	for i := 0; i+1 < len(pts); i++ {
		if onLine(p, pts[i], pts[i+1]) {
			return true
		}
	}
	return false
}
