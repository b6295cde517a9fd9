package bus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Bus fans domain events out to prefix-filtered subscribers. State owners
// (reconciler, trackers, connection managers) publish; the journal, the
// API watch stream and the metrics collector observe.
//
// Publish never blocks: a subscriber whose buffer is full misses the event
// and the drop hook is told.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	next   int
	seq    atomic.Uint64
	now    func() time.Time
	onDrop func(namespace string, evt Event)
}

type subscription struct {
	namespace string
	ch        chan Event
	dropped   atomic.Uint64
}

type Option func(*Bus)

// WithClock stamps events with now instead of time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// WithDropHook calls fn for every event a full subscriber missed. fn runs
// on the publisher's goroutine and must not publish.
func WithDropHook(fn func(namespace string, evt Event)) Option {
	return func(b *Bus) { b.onDrop = fn }
}

func New(opts ...Option) *Bus {
	b := &Bus{
		subs: make(map[int]*subscription),
		now:  time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Publish delivers evt to every subscriber whose namespace prefixes
// evt.Kind. It assigns Seq and fills a zero Timestamp. Publishing on a nil
// Bus is a no-op so components can run without one in tests.
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	evt.Seq = b.seq.Add(1)
	if evt.Timestamp.IsZero() {
		evt.Timestamp = b.now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.namespace) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			sub.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop(sub.namespace, evt)
			}
		}
	}
}

// Subscription is a live subscription. Cancel is idempotent.
type Subscription struct {
	C      <-chan Event
	sub    *subscription
	cancel func()
}

func (s *Subscription) Cancel() { s.cancel() }

// Dropped counts events this subscriber missed because its buffer was full.
func (s *Subscription) Dropped() uint64 { return s.sub.dropped.Load() }

// Subscribe is SubscribeFull for callers that only need the channel.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	s := b.SubscribeFull(namespace, bufSize)
	return s.C, s.cancel
}

// SubscribeFull registers a subscriber for kinds starting with namespace;
// "" matches everything.
func (b *Bus) SubscribeFull(namespace string, bufSize int) *Subscription {
	sub := &subscription{namespace: namespace, ch: make(chan Event, bufSize)}
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return &Subscription{
		C:   sub.ch,
		sub: sub,
		cancel: func() {
			once.Do(func() {
				b.mu.Lock()
				delete(b.subs, id)
				b.mu.Unlock()
			})
		},
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
