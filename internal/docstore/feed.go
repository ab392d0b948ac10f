package docstore

import (
	"context"
	"sync"
)

// Subscription delivers snapshots of one document. The buffer holds only the
// latest snapshot: a slow consumer skips intermediate versions but always
// ends up with the most recent one, and publishers never block.
type Subscription struct {
	path string
	feed *feed

	mu     sync.Mutex
	ch     chan Snapshot
	closed bool
	once   sync.Once
	done   chan struct{}
}

// Path returns the subscribed document path.
func (s *Subscription) Path() string {
	return s.path
}

// Events returns the snapshot channel. It is closed by Close or when the
// subscribing context ends.
func (s *Subscription) Events() <-chan Snapshot {
	return s.ch
}

// Close unsubscribes and closes the event channel. Safe to call repeatedly.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.feed.remove(s)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Subscription) offer(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- snap:
	default:
		// Replace the undelivered snapshot with the newer one.
		select {
		case <-s.ch:
		default:
		}
		s.ch <- snap
	}
}

// feed maintains the set of subscriptions per document path.
type feed struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func newFeed() *feed {
	return &feed{subs: make(map[string]map[*Subscription]struct{})}
}

func (f *feed) add(ctx context.Context, path string) *Subscription {
	sub := &Subscription{
		path: path,
		feed: f,
		ch:   make(chan Snapshot, 1),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	set, ok := f.subs[path]
	if !ok {
		set = make(map[*Subscription]struct{})
		f.subs[path] = set
	}
	set[sub] = struct{}{}
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub
}

func (f *feed) remove(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if set, ok := f.subs[sub.path]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(f.subs, sub.path)
		}
	}
}

func (f *feed) publish(snap Snapshot) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for sub := range f.subs[snap.Path] {
		c := snap
		c.Data = Clone(snap.Data)
		sub.offer(c)
	}
}

// count returns the number of subscriptions on path.
func (f *feed) count(path string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[path])
}
