// Package render draws simulator frames. Renderers are sinks; they never
// change simulator state.
package render

import (
	"sync"

	"nyiyui.ca/hato/railflux"
	"nyiyui.ca/hato/railflux/overlay"
	"nyiyui.ca/hato/railflux/signal"
)

type SegmentShape struct {
	Ref      railflux.SegmentRef `json:"ref"`
	Pixels   []railflux.Point    `json:"pixels"`
	Occupied bool                `json:"occupied"`
}

type TrainShape struct {
	ID       string         `json:"id"`
	Position railflux.Point `json:"position"`
	Wagons   []railflux.Point `json:"wagons"`
	// Segment is the segment the train is in, if any.
	Segment railflux.SegmentRef `json:"segment"`
}

// Frame is everything drawn for one tick.
type Frame struct {
	RunID    string          `json:"run_id"`
	Tick     int64           `json:"tick"`
	Segments []SegmentShape  `json:"segments"`
	Trains   []TrainShape    `json:"trains"`
	Signals  []signal.Signal `json:"signals"`
	Labels   []overlay.Label `json:"labels"`
}

// Occupied returns the refs of every occupied segment, in frame order.
func (f Frame) Occupied() []railflux.SegmentRef {
	res := make([]railflux.SegmentRef, 0)
	for _, s := range f.Segments {
		if s.Occupied {
			res = append(res, s.Ref)
		}
	}
	return res
}

type Renderer interface {
	Render(f Frame)
}

// Multi renders to every renderer in order.
type Multi []Renderer

func (m Multi) Render(f Frame) {
	for _, r := range m {
		r.Render(f)
	}
}

// Recorder keeps the latest frame.
type Recorder struct {
	lock  sync.Mutex
	last  Frame
	count int
}

func (r *Recorder) Render(f Frame) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.last = f
	r.count++
}

// Last returns the latest frame and whether there was one.
func (r *Recorder) Last() (Frame, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.last, r.count > 0
}

// Count returns the number of frames rendered.
func (r *Recorder) Count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.count
}
