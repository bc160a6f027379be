package tal

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nyiyui.ca/hato/railflux"
	"nyiyui.ca/hato/railflux/notify"
	"nyiyui.ca/hato/railflux/overlay"
	"nyiyui.ca/hato/railflux/render"
	"nyiyui.ca/hato/railflux/signal"
	"nyiyui.ca/hato/railflux/store"
	"nyiyui.ca/hato/railflux/tal/layout"
)

// ErrDuplicateTrain is returned by AddTrain when a train with the same ID was already added.
var ErrDuplicateTrain = errors.New("duplicate train")

// Source provides external updates of the shared state. store.Link implements it.
type Source interface {
	// Poll may start a read; it must not block.
	Poll(now time.Time)
	Updates() <-chan store.Update
	// Queued reports whether a local write to ref has not been stored yet.
	Queued(ref railflux.SegmentRef) bool
}

type SimulatorConf struct {
	TickInterval time.Duration
	// Source may be nil.
	Source   Source
	Resolver signal.Resolver
	// Signals is used until the source provides any.
	Signals signal.Records
	Labels  []overlay.Label
	// Renderer may be nil.
	Renderer render.Renderer
	// Now defaults to time.Now.
	Now func() time.Time
}

// Simulator runs the tick loop. All state changes happen on the goroutine calling Step or Run.
type Simulator struct {
	RunID uuid.UUID
	conf  SimulatorConf

	y        *layout.Network
	claims   *Claims
	trains   []*Train
	trackers []*Tracker
	records  signal.Records
	tick     int64

	events *notify.Multiplexer[Event]
	frames *notify.Multiplexer[render.Frame]
	latest atomic.Pointer[render.Frame]
}

func NewSimulator(y *layout.Network, conf SimulatorConf) *Simulator {
	if conf.TickInterval <= 0 {
		conf.TickInterval = time.Second / 30
	}
	if conf.Now == nil {
		conf.Now = time.Now
	}
	s := &Simulator{
		RunID:   uuid.New(),
		conf:    conf,
		y:       y,
		claims:  NewClaims(y),
		records: conf.Signals,
		events:  notify.NewMultiplexer[Event]("sim events"),
		frames:  notify.NewMultiplexer[render.Frame]("sim frames"),
	}
	return s
}

func (s *Simulator) Network() *layout.Network { return s.y }

func (s *Simulator) Claims() *Claims { return s.claims }

// Events carries every EventEntryExit and EventRemote.
func (s *Simulator) Events() *notify.Multiplexer[Event] { return s.events }

// Frames carries every frame after it is rendered.
func (s *Simulator) Frames() *notify.Multiplexer[render.Frame] { return s.frames }

// AddTrain puts a new train on the waypoints of track.
// Train IDs must be unique; Claims tells trains apart by ID.
func (s *Simulator) AddTrain(conf TrainConf, track string, reverse bool) (*Train, error) {
	for _, t := range s.trains {
		if t.ID == conf.ID {
			return nil, fmt.Errorf("train %s: %w", conf.ID, ErrDuplicateTrain)
		}
	}
	pts, err := s.y.WaypointsFor(track, reverse)
	if err != nil {
		return nil, fmt.Errorf("train %s: %w", conf.ID, err)
	}
	t := NewTrain(conf, NewWaypointPath(pts, false))
	s.trains = append(s.trains, t)
	s.trackers = append(s.trackers, NewTracker(conf.ID, s.y, s.claims))
	zap.S().Infow("added train", "train", conf.ID, "track", track, "reverse", reverse, "waypoints", len(pts))
	return t, nil
}

func (s *Simulator) Trains() []*Train {
	return s.trains
}

// Tracker returns the tracker of the i-th train.
func (s *Simulator) Tracker(i int) *Tracker {
	return s.trackers[i]
}

func (s *Simulator) Tick() int64 { return s.tick }

// Step runs one tick: apply any finished external read, move every train in
// order and update occupancy, request the next read, and render.
func (s *Simulator) Step() {
	s.applyUpdates()
	s.tick++
	for i, t := range s.trains {
		t.Advance()
		for _, ev := range s.trackers[i].Update(t.Position, s.tick) {
			s.events.Send(ev)
		}
	}
	if s.conf.Source != nil {
		s.conf.Source.Poll(s.conf.Now())
	}
	f := s.frame()
	s.latest.Store(&f)
	if s.conf.Renderer != nil {
		s.conf.Renderer.Render(f)
	}
	s.frames.Send(f)
}

func (s *Simulator) applyUpdates() {
	if s.conf.Source == nil {
		return
	}
	var u store.Update
	select {
	case u = <-s.conf.Source.Updates():
	default:
		return
	}
	for ref, occupied := range u.Occupied {
		// locally simulated trains are the source of truth for what they hold
		if s.claims.Held(ref) {
			continue
		}
		// the stored value is older than our own unflushed write
		if s.conf.Source.Queued(ref) {
			continue
		}
		if _, ok := s.y.Lookup(ref); !ok {
			continue
		}
		if s.y.ApplyRemote(ref, occupied) {
			s.events.Send(EventRemote{Segment: ref, Occupied: occupied, Tick: s.tick})
		}
	}
	if !u.Signals.Empty() {
		s.records = u.Signals
	}
}

func (s *Simulator) frame() render.Frame {
	f := render.Frame{
		RunID:  s.RunID.String(),
		Tick:   s.tick,
		Labels: s.conf.Labels,
	}
	for _, sv := range s.y.Snapshot() {
		f.Segments = append(f.Segments, render.SegmentShape{
			Ref:      sv.Ref,
			Pixels:   sv.Pixels,
			Occupied: sv.Occupied,
		})
	}
	for i, t := range s.trains {
		cur, _ := s.trackers[i].Current()
		f.Trains = append(f.Trains, render.TrainShape{
			ID:       t.ID,
			Position: t.Position,
			Wagons:   t.Wagons(),
			Segment:  cur,
		})
	}
	occupied := func(ref railflux.SegmentRef) bool {
		o, _ := s.y.Occupied(ref)
		return o
	}
	f.Signals = signal.Protect(s.conf.Resolver.Resolve(s.records), occupied)
	return f
}

// Latest returns the most recent frame. It is safe to call from any goroutine.
func (s *Simulator) Latest() (render.Frame, bool) {
	f := s.latest.Load()
	if f == nil {
		return render.Frame{}, false
	}
	return *f, true
}

// Run steps at the configured interval until ctx is done.
// Every train then leaves its segment, so the occupancy it held is freed.
func (s *Simulator) Run(ctx context.Context) error {
	go s.logEvents(ctx)
	ticker := time.NewTicker(s.conf.TickInterval)
	defer ticker.Stop()
	zap.S().Infow("simulator running", "run", s.RunID, "trains", len(s.trains), "interval", s.conf.TickInterval)
	for {
		select {
		case <-ctx.Done():
			s.release()
			return ctx.Err()
		case <-ticker.C:
			s.Step()
		}
	}
}

func (s *Simulator) release() {
	for _, tr := range s.trackers {
		for _, ev := range tr.Release(s.tick) {
			s.events.Send(ev)
		}
	}
}

func (s *Simulator) logEvents(ctx context.Context) {
	ch := make(chan Event, 64)
	s.events.Subscribe("logEvents", ch)
	defer s.events.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			zap.S().Debugf("new event: %s", ev)
		}
	}
}
