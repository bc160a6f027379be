package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nyiyui.ca/hato/railflux"
)

func TestLinkCoalescesAndFlushesOnClose(t *testing.T) {
	m := NewMemory()
	if err := m.Seed(context.Background(), testSeed()); err != nil {
		t.Fatal(err)
	}
	l := NewLink(m, time.Second)
	ref := railflux.SegmentRef{Track: "T1", Segment: "S1"}
	for i := 0; i < 50; i++ {
		l.WriteOccupied(ref, i%2 == 0)
	}
	l.WriteOccupied(ref, true)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %s", err)
	}
	segs, _ := m.Segments(context.Background(), "T1")
	if !segs[1].Occupied {
		t.Fatalf("last written value must reach the store")
	}
	if m.Writes() > 51 {
		t.Fatalf("more writes than calls: %d", m.Writes())
	}
	if l.Pending() != 0 {
		t.Fatalf("expected nothing pending after close, got %d", l.Pending())
	}
}

func TestLinkFlush(t *testing.T) {
	m := NewMemory()
	if err := m.Seed(context.Background(), testSeed()); err != nil {
		t.Fatal(err)
	}
	l := NewLink(m, time.Second)
	defer l.Close()
	ref := railflux.SegmentRef{Track: "T2", Segment: "S1"}
	l.WriteOccupied(ref, true)
	l.Flush(context.Background())
	segs, _ := m.Segments(context.Background(), "T2")
	if !segs[0].Occupied {
		t.Fatalf("expected %s occupied after flush", ref)
	}
}

func TestLinkPollRateLimit(t *testing.T) {
	m := NewMemory()
	if err := m.Seed(context.Background(), testSeed()); err != nil {
		t.Fatal(err)
	}
	l := NewLink(m, 10*time.Millisecond)
	defer l.Close()
	now := time.Now()
	l.Poll(now)
	var u Update
	select {
	case u = <-l.Updates():
	case <-time.After(5 * time.Second):
		t.Fatalf("no update")
	}
	if !u.Occupied[railflux.SegmentRef{Track: "T1", Segment: "S2"}] {
		t.Fatalf("expected T1/S2 occupied in %#v", u.Occupied)
	}
	// interval is raised to MinPollInterval
	l.Poll(now.Add(500 * time.Millisecond))
	select {
	case u := <-l.Updates():
		t.Fatalf("unexpected update %#v", u)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLinkPollEmptyIsNoUpdate(t *testing.T) {
	l := NewLink(NewMemory(), time.Second)
	defer l.Close()
	l.Poll(time.Now())
	select {
	case u := <-l.Updates():
		t.Fatalf("unexpected update %#v", u)
	case <-time.After(100 * time.Millisecond):
	}
}

// flakyStore fails the first failures writes.
type flakyStore struct {
	*Memory
	lock     sync.Mutex
	failures int
	attempts int
}

func (f *flakyStore) SetOccupied(ctx context.Context, ref railflux.SegmentRef, occupied bool) error {
	fail := func() bool {
		f.lock.Lock()
		defer f.lock.Unlock()
		f.attempts++
		if f.failures > 0 {
			f.failures--
			return true
		}
		return false
	}()
	if fail {
		return errors.New("store unavailable")
	}
	return f.Memory.SetOccupied(ctx, ref, occupied)
}

func (f *flakyStore) Attempts() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.attempts
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLinkRetriesFailedWrite(t *testing.T) {
	f := &flakyStore{Memory: NewMemory(), failures: 1}
	if err := f.Seed(context.Background(), testSeed()); err != nil {
		t.Fatal(err)
	}
	l := NewLink(f, time.Second)
	defer l.Close()
	ref := railflux.SegmentRef{Track: "T2", Segment: "S1"}
	l.WriteOccupied(ref, true)
	waitFor(t, "retried write", func() bool {
		segs, _ := f.Segments(context.Background(), "T2")
		return segs[0].Occupied && l.Pending() == 0
	})
	if f.Attempts() != 2 {
		t.Fatalf("expected one failed and one successful attempt, got %d", f.Attempts())
	}
	if l.Queued(ref) {
		t.Fatalf("%s still queued after it was written", ref)
	}
}

func TestLinkQueuedUntilWritten(t *testing.T) {
	f := &flakyStore{Memory: NewMemory(), failures: 1 << 20}
	if err := f.Seed(context.Background(), testSeed()); err != nil {
		t.Fatal(err)
	}
	l := NewLink(f, time.Second)
	defer l.Close()
	ref := railflux.SegmentRef{Track: "T1", Segment: "S2"}
	l.WriteOccupied(ref, false)
	waitFor(t, "first attempt", func() bool { return f.Attempts() >= 1 })
	if !l.Queued(ref) || l.Pending() != 1 {
		t.Fatalf("failed write must stay queued (queued=%t, pending=%d)", l.Queued(ref), l.Pending())
	}
	if l.Queued(railflux.SegmentRef{Track: "T2", Segment: "S1"}) {
		t.Fatalf("nothing was written to T2/S1")
	}
	if err := l.Flush(context.Background()); err == nil {
		t.Fatalf("expected flush error")
	}
}

func TestLinkDropsUnknownSegment(t *testing.T) {
	m := NewMemory()
	if err := m.Seed(context.Background(), testSeed()); err != nil {
		t.Fatal(err)
	}
	l := NewLink(m, time.Second)
	defer l.Close()
	l.WriteOccupied(railflux.SegmentRef{Track: "T9", Segment: "S1"}, true)
	waitFor(t, "unknown segment dropped", func() bool { return l.Pending() == 0 })
	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %s", err)
	}
}

func TestLinkWriteAfterClose(t *testing.T) {
	m := NewMemory()
	if err := m.Seed(context.Background(), testSeed()); err != nil {
		t.Fatal(err)
	}
	l := NewLink(m, time.Second)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	l.WriteOccupied(railflux.SegmentRef{Track: "T2", Segment: "S1"}, true)
	if l.Pending() != 0 {
		t.Fatalf("write after close must not be queued")
	}
	if m.Writes() != 0 {
		t.Fatalf("unexpected writes: %d", m.Writes())
	}
}
