package feed

import (
	"sync"
)

// DefaultBufferSize is the channel capacity of subscriptions created with Subscribe.
const DefaultBufferSize = 16

// Feed fans values out to subscribers. A subscriber whose buffer is full when a value is sent is dropped:
// its channel is closed and Dropped reports true.
type Feed[T any] struct {
	mu     sync.Mutex // protects subs and nextID.
	subs   map[uint64]*Subscription[T]
	nextID uint64
}

type Subscription[T any] struct {
	c         chan T
	f         *Feed[T]
	unsubOnce sync.Once
	id        uint64
	dropped   bool
}

// ID is unique among the subscriptions of a feed and increases with every subscription.
func (s *Subscription[T]) ID() uint64 {
	return s.id
}

func (s *Subscription[T]) Recv() <-chan T {
	return s.c
}

// Dropped reports whether the feed closed the subscription because it fell behind.
func (s *Subscription[T]) Dropped() bool {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	return s.dropped
}

func (s *Subscription[T]) Unsubscribe() {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.close()
}

// close must be called with the feed lock held.
func (s *Subscription[T]) close() {
	s.unsubOnce.Do(func() {
		close(s.c)
		delete(s.f.subs, s.id)
	})
}

func New[T any]() *Feed[T] {
	return &Feed[T]{
		subs:   make(map[uint64]*Subscription[T]),
		nextID: 1,
	}
}

// Subscribe returns a subscription buffering up to DefaultBufferSize values.
func (f *Feed[T]) Subscribe() *Subscription[T] {
	return f.SubscribeWithBuffer(DefaultBufferSize)
}

func (f *Feed[T]) SubscribeWithBuffer(size int) *Subscription[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &Subscription[T]{
		c:  make(chan T, size),
		f:  f,
		id: f.nextID,
	}
	f.nextID++
	f.subs[s.id] = s
	return s
}

// Len returns the number of live subscriptions.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Send broadcasts v to all subscribers without blocking.
func (f *Feed[T]) Send(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		select {
		case sub.c <- v:
		default:
			sub.dropped = true
			sub.close()
		}
	}
}

// Tee forwards all values received from sub to f.
// It stops tee-ing values when sub is unsubscribed.
func Tee[T any](sub *Subscription[T], f *Feed[T]) {
	go func() {
		for v := range sub.Recv() {
			f.Send(v)
		}
	}()
}
