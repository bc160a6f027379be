package tal

import (
	"sync"

	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/railflux"
	"nyiyui.ca/hato/railflux/tal/layout"
)

// Claims tracks which trains are in which segment, so that a segment shared by
// several trains stays occupied until the last one leaves.
type Claims struct {
	y *layout.Network
	// lock guards holders.
	lock    sync.Mutex
	holders map[railflux.SegmentRef][]string
}

func NewClaims(y *layout.Network) *Claims {
	return &Claims{
		y:       y,
		holders: map[railflux.SegmentRef][]string{},
	}
}

func (c *Claims) enter(train string, ref railflux.SegmentRef) {
	first := func() bool {
		c.lock.Lock()
		defer c.lock.Unlock()
		hs := c.holders[ref]
		if slices.Contains(hs, train) {
			return false
		}
		c.holders[ref] = append(hs, train)
		return len(hs) == 0
	}()
	if first {
		c.y.MarkOccupied(ref)
	}
}

func (c *Claims) leave(train string, ref railflux.SegmentRef) {
	last := func() bool {
		c.lock.Lock()
		defer c.lock.Unlock()
		hs := c.holders[ref]
		i := slices.Index(hs, train)
		if i == -1 {
			return false
		}
		hs = slices.Delete(hs, i, i+1)
		if len(hs) == 0 {
			delete(c.holders, ref)
			return true
		}
		c.holders[ref] = hs
		return false
	}()
	if last {
		c.y.MarkFree(ref)
	}
}

// Held reports whether any train is in ref.
func (c *Claims) Held(ref railflux.SegmentRef) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.holders[ref]) > 0
}

// Holders returns the trains in ref, sorted.
func (c *Claims) Holders(ref railflux.SegmentRef) []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	res := slices.Clone(c.holders[ref])
	slices.Sort(res)
	return res
}

// Tracker follows one train through the network.
// It is either in no segment or in exactly one.
type Tracker struct {
	train   string
	y       *layout.Network
	claims  *Claims
	current railflux.SegmentRef
}

func NewTracker(train string, y *layout.Network, claims *Claims) *Tracker {
	return &Tracker{
		train:  train,
		y:      y,
		claims: claims,
	}
}

// Current returns the segment the train is in, if any.
func (t *Tracker) Current() (railflux.SegmentRef, bool) {
	return t.current, !t.current.IsZero()
}

// Update moves the tracker to the segment containing p.
// Nothing happens (and no events are returned) if that is the current segment.
func (t *Tracker) Update(p railflux.Point, tick int64) []EventEntryExit {
	next, _ := t.y.SegmentContaining(p)
	if next == t.current {
		return nil
	}
	events := make([]EventEntryExit, 0, 2)
	if !t.current.IsZero() {
		t.claims.leave(t.train, t.current)
		events = append(events, EventEntryExit{Train: t.train, Segment: t.current, Enter: false, Tick: tick})
	}
	if !next.IsZero() {
		t.claims.enter(t.train, next)
		events = append(events, EventEntryExit{Train: t.train, Segment: next, Enter: true, Tick: tick})
	}
	t.current = next
	return events
}

// Release leaves the current segment, if any.
func (t *Tracker) Release(tick int64) []EventEntryExit {
	if t.current.IsZero() {
		return nil
	}
	prev := t.current
	t.claims.leave(t.train, prev)
	t.current = railflux.SegmentRef{}
	return []EventEntryExit{{Train: t.train, Segment: prev, Enter: false, Tick: tick}}
}
