package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/railflux"
)

// MinPollInterval is the shortest allowed time between two reads of a Store.
const MinPollInterval = time.Second

// RetryInterval is how long a Link waits before retrying failed writes.
const RetryInterval = time.Second

// Link connects a Store to the tick loop without blocking it.
// Writes are queued and flushed by a background goroutine; if a segment is
// written several times before a flush, only the latest value is written.
// Failed writes stay queued and are retried.
// Reads are rate-limited and delivered on Updates.
type Link struct {
	s            Store
	timeout      time.Duration
	pollInterval time.Duration

	// pendingLock guards pending and order.
	pendingLock sync.Mutex
	pending     map[railflux.SegmentRef]bool
	order       []railflux.SegmentRef
	// flushLock makes sure two flushes never interleave.
	flushLock sync.Mutex
	wake      chan struct{}

	lastPoll time.Time
	polling  atomic.Bool
	updates  chan Update
	polls    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool
}

// NewLink starts the write-behind goroutine for s.
// pollInterval is raised to MinPollInterval if shorter.
func NewLink(s Store, pollInterval time.Duration) *Link {
	if pollInterval < MinPollInterval {
		pollInterval = MinPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Link{
		s:            s,
		timeout:      5 * time.Second,
		pollInterval: pollInterval,
		pending:      map[railflux.SegmentRef]bool{},
		wake:         make(chan struct{}, 1),
		updates:      make(chan Update, 1),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	go l.flushLoop()
	return l
}

func (l *Link) Store() Store { return l.s }

// WriteOccupied queues a write. It never blocks on I/O.
func (l *Link) WriteOccupied(ref railflux.SegmentRef, occupied bool) {
	queued := func() bool {
		l.pendingLock.Lock()
		defer l.pendingLock.Unlock()
		if l.closed.Load() {
			return false
		}
		if _, ok := l.pending[ref]; !ok {
			l.order = append(l.order, ref)
		}
		l.pending[ref] = occupied
		return true
	}()
	if !queued {
		zap.S().Warnw("write after close dropped", "ref", ref, "occupied", occupied)
		return
	}
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of segments waiting to be written.
func (l *Link) Pending() int {
	l.pendingLock.Lock()
	defer l.pendingLock.Unlock()
	return len(l.order)
}

// Queued reports whether a write to ref has not reached the store yet.
func (l *Link) Queued(ref railflux.SegmentRef) bool {
	l.pendingLock.Lock()
	defer l.pendingLock.Unlock()
	_, ok := l.pending[ref]
	return ok
}

func (l *Link) flushLoop() {
	defer close(l.done)
	var retry <-chan time.Time
	for {
		select {
		case <-l.wake:
		case <-retry:
		case <-l.ctx.Done():
			return
		}
		retry = nil
		if err := l.Flush(context.Background()); err != nil {
			retry = time.After(RetryInterval)
		}
	}
}

// Flush writes every queued value now.
// A value stays queued until it is written, so failed writes are retried by
// the next flush. Writes to segments the store doesn't know are dropped.
func (l *Link) Flush(ctx context.Context) error {
	l.flushLock.Lock()
	defer l.flushLock.Unlock()
	type entry struct {
		ref      railflux.SegmentRef
		occupied bool
	}
	var entries []entry
	func() {
		l.pendingLock.Lock()
		defer l.pendingLock.Unlock()
		entries = make([]entry, len(l.order))
		for i, ref := range l.order {
			entries[i] = entry{ref, l.pending[ref]}
		}
	}()
	var errs []error
	for _, e := range entries {
		err := func() error {
			ctx, cancel := context.WithTimeout(ctx, l.timeout)
			defer cancel()
			return l.s.SetOccupied(ctx, e.ref, e.occupied)
		}()
		if err != nil && !errors.Is(err, ErrUnknownSegment) {
			zap.S().Warnw("write occupancy failed, will retry", "ref", e.ref, "occupied", e.occupied, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", e.ref, err))
			continue
		}
		if err != nil {
			zap.S().Errorw("write occupancy dropped", "ref", e.ref, "occupied", e.occupied, "err", err)
		}
		l.dequeue(e.ref, e.occupied)
	}
	return errors.Join(errs...)
}

// dequeue removes ref unless a different value was queued while it was being written.
func (l *Link) dequeue(ref railflux.SegmentRef, written bool) {
	l.pendingLock.Lock()
	defer l.pendingLock.Unlock()
	if v, ok := l.pending[ref]; !ok || v != written {
		return
	}
	delete(l.pending, ref)
	i := slices.Index(l.order, ref)
	l.order = slices.Delete(l.order, i, i+1)
}

// Updates delivers the result of the latest completed poll.
// A new result replaces one that was not received yet.
func (l *Link) Updates() <-chan Update {
	return l.updates
}

// Poll starts reading the store in the background, unless the last poll
// started less than the poll interval before now or is still running.
func (l *Link) Poll(now time.Time) {
	if l.closed.Load() {
		return
	}
	if !l.lastPoll.IsZero() && now.Sub(l.lastPoll) < l.pollInterval {
		return
	}
	if !l.polling.CompareAndSwap(false, true) {
		return
	}
	l.lastPoll = now
	l.polls.Add(1)
	go func() {
		defer l.polls.Done()
		defer l.polling.Store(false)
		ctx, cancel := context.WithTimeout(l.ctx, l.timeout)
		defer cancel()
		u, err := ReadUpdate(ctx, l.s)
		if err != nil {
			zap.S().Warnw("poll failed", "err", err)
			return
		}
		if u.Empty() {
			return
		}
		select {
		case <-l.updates:
		default:
		}
		select {
		case l.updates <- u:
		default:
		}
	}()
}

// Close stops background work, flushes pending writes and closes the store.
func (l *Link) Close() error {
	closing := func() bool {
		l.pendingLock.Lock()
		defer l.pendingLock.Unlock()
		return l.closed.CompareAndSwap(false, true)
	}()
	if !closing {
		return nil
	}
	l.cancel()
	<-l.done
	l.polls.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if err := l.Flush(ctx); err != nil {
		zap.S().Errorw("writes lost on close", "pending", l.Pending(), "err", err)
	}
	return l.s.Close()
}
