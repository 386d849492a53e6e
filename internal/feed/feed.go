// Package feed holds the current catalog snapshot and fans it out to subscribers.
package feed

import (
	"sync"
	"sync/atomic"

	"github.com/NetoRibeiro/ovpfh-v2/internal/catalog"
)

// Update is one published snapshot. Generations only grow.
type Update struct {
	Generation uint64
	Snapshot   catalog.Snapshot
}

// Feed keeps the newest snapshot. Loads take a ticket with Begin before reading the
// store and publish with it afterwards; a load that started earlier than the one
// already published is dropped, so a slow stale read never overwrites a newer one.
type Feed struct {
	tickets atomic.Uint64

	mu      sync.RWMutex
	current Update
	subs    map[uint64]*subscriber
	nextSub uint64
}

func New() *Feed {
	return &Feed{subs: make(map[uint64]*subscriber)}
}

// Begin reserves the generation for a load that is about to start.
func (f *Feed) Begin() uint64 {
	return f.tickets.Add(1)
}

// Publish installs snap if gen is newer than the current generation and reports
// whether it did.
func (f *Feed) Publish(gen uint64, snap catalog.Snapshot) bool {
	f.mu.Lock()
	if gen <= f.current.Generation {
		f.mu.Unlock()
		return false
	}
	f.current = Update{Generation: gen, Snapshot: snap}
	u := f.current
	subs := make([]*subscriber, 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		s.offer(u)
	}
	return true
}

// Current returns the newest snapshot. Generation 0 means nothing was published yet.
func (f *Feed) Current() Update {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

func (f *Feed) Snapshot() catalog.Snapshot {
	return f.Current().Snapshot
}

// Subscribe calls fn with the current snapshot and then with every newer one.
// Calls for one subscription run on its own goroutine, one at a time and in
// increasing generation order. A subscriber that falls behind only sees the
// newest pending snapshot. The returned func stops delivery.
func (f *Feed) Subscribe(fn func(Update)) (cancel func()) {
	s := &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = s
	s.offer(f.current)
	f.mu.Unlock()

	go s.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(s.done)
		})
	}
}

// Subscribers is the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

type subscriber struct {
	fn   func(Update)
	wake chan struct{}
	done chan struct{}

	mu        sync.Mutex
	pending   *Update
	delivered uint64
	started   bool
}

func (s *subscriber) offer(u Update) {
	s.mu.Lock()
	if s.pending == nil || u.Generation >= s.pending.Generation {
		s.pending = &u
	}
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		s.mu.Lock()
		u := s.pending
		s.pending = nil
		deliver := u != nil && (!s.started || u.Generation > s.delivered)
		if deliver {
			s.started = true
			s.delivered = u.Generation
		}
		s.mu.Unlock()

		if deliver {
			select {
			case <-s.done:
				return
			default:
			}
			s.fn(*u)
		}
	}
}
