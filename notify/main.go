package notify

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

type subscriber[E any] struct {
	ch      chan E
	comment string
	dropped int
}

// Multiplexer fans values out to subscribers without ever blocking the sender.
// A subscriber whose channel is full misses that value.
type Multiplexer[E any] struct {
	comment         string
	subscribersLock sync.Mutex
	subscribers     []*subscriber[E]
}

func NewMultiplexer[E any](comment string) *Multiplexer[E] {
	return &Multiplexer[E]{comment: comment}
}

// Subscribe adds c as a subscriber. c should be buffered.
func (m *Multiplexer[E]) Subscribe(comment string, c chan E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	m.subscribers = append(m.subscribers, &subscriber[E]{
		ch:      c,
		comment: comment,
	})
}

// Unsubscribe removes c. It panics if c is not subscribed.
func (m *Multiplexer[E]) Unsubscribe(c chan E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	i := slices.IndexFunc(m.subscribers, func(sub *subscriber[E]) bool { return sub.ch == c })
	if i == -1 {
		panic("already unsubscribed")
	}
	m.subscribers = slices.Delete(m.subscribers, i, i+1)
}

// Send delivers e to every subscriber that has room for it.
func (m *Multiplexer[E]) Send(e E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	for _, sub := range m.subscribers {
		select {
		case sub.ch <- e:
		default:
			sub.dropped++
			if sub.dropped == 1 || sub.dropped%100 == 0 {
				zap.S().Warnw("subscriber lagging, dropped value",
					"multiplexer", m.comment,
					"subscriber", sub.comment,
					"dropped", sub.dropped)
			}
		}
	}
}

// Len returns the number of subscribers.
func (m *Multiplexer[E]) Len() int {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	return len(m.subscribers)
}
