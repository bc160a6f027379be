package tal

import (
	"nyiyui.ca/hato/railflux"
)

// arrivalEpsilon is how close a train must be to a waypoint to count as being on it.
const arrivalEpsilon = 1e-9

// TrainConf describes a train before it is placed on a path.
type TrainConf struct {
	ID      string
	Speed   float64
	Wagons  int
	Spacing int
}

// Train moves along its Path at a constant Speed (distance per tick).
type Train struct {
	ID       string
	Position railflux.Point
	// Index is the waypoint the train is heading to.
	Index int
	Speed float64
	Path  WaypointPath

	wagons  int
	spacing int
	trail   trail
	moved   int
}

// NewTrain places a train on the first waypoint of path.
func NewTrain(conf TrainConf, path WaypointPath) *Train {
	t := &Train{
		ID:       conf.ID,
		Position: path.At(0),
		Speed:    conf.Speed,
		Path:     path,
		wagons:   conf.Wagons,
		spacing:  conf.Spacing,
	}
	if t.spacing < 1 {
		t.spacing = 1
	}
	if t.wagons < 0 {
		t.wagons = 0
	}
	t.trail = newTrail((t.wagons + 1) * t.spacing)
	t.trail.push(t.Position)
	return t
}

// Advance moves the train by one tick.
//
// A waypoint closer than Speed is snapped to and the train stops there for this tick.
// After the last waypoint the train returns to the first one.
// A train already standing on its target moves on to the next waypoint in the same tick.
func (t *Train) Advance() {
	n := t.Path.Len()
	if n == 0 {
		return
	}
	for i := 0; i <= n; i++ {
		target := t.Path.At(t.Index)
		d := t.Position.Dist(target)
		if d <= arrivalEpsilon {
			if t.arrive() {
				return
			}
			continue
		}
		if d < t.Speed {
			t.Position = target
			t.arrive()
			return
		}
		if t.Speed <= 0 {
			return
		}
		dir := target.Sub(t.Position).Scale(1 / d)
		t.Position = t.Position.Add(dir.Scale(t.Speed))
		t.record()
		return
	}
}

// arrive advances Index past the current target. It reports whether the path wrapped.
func (t *Train) arrive() (wrapped bool) {
	t.Index++
	if t.Index >= t.Path.Len() {
		t.Index = 0
		t.Position = t.Path.At(0)
		return true
	}
	return false
}

func (t *Train) record() {
	t.moved++
	if t.moved >= t.spacing {
		t.trail.push(t.Position)
		t.moved = 0
	}
}

// Wagons returns the positions of the wagons behind the train, oldest first.
func (t *Train) Wagons() []railflux.Point {
	all := t.trail.items()
	step := max(t.spacing, 1)
	res := make([]railflux.Point, 0, len(all)/step+1)
	for i := 0; i < len(all); i += step {
		res = append(res, all[i])
	}
	return res
}

// trail is a fixed-size ring buffer of past positions.
type trail struct {
	buf   []railflux.Point
	start int
	n     int
}

func newTrail(size int) trail {
	return trail{buf: make([]railflux.Point, size)}
}

func (r *trail) push(p railflux.Point) {
	if len(r.buf) == 0 {
		return
	}
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = p
		r.n++
		return
	}
	r.buf[r.start] = p
	r.start = (r.start + 1) % len(r.buf)
}

func (r *trail) items() []railflux.Point {
	res := make([]railflux.Point, r.n)
	for i := range res {
		res[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return res
}
