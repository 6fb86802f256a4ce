package bus

import (
	"context"
	"iter"
	"sync"
)

// Subscription is the handle of one subscriber.
type Subscription[T any] struct {
	bus   *Bus[T]
	name  string
	match func(string) bool
	queue *Queue[T]
	once  sync.Once
}

// Topic returns the subscribed topic, or the subscriber name for match subscriptions.
func (s *Subscription[T]) Topic() string {
	return s.name
}

// Next blocks until the next value is available.
// It returns exception.ErrSubscriptionClosed after Close.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	return s.queue.Pop(ctx)
}

// TryNext returns the next value without blocking.
func (s *Subscription[T]) TryNext() (T, bool) {
	return s.queue.TryPop()
}

// Ready is signalled when values may be available.
func (s *Subscription[T]) Ready() <-chan struct{} {
	return s.queue.Ready()
}

// Done is closed once the subscription is closed.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.queue.Done()
}

// All yields values until ctx is done or the subscription is closed.
func (s *Subscription[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, err := s.queue.Pop(ctx)
			if err != nil {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Dropped returns how many values this subscriber lost to overflow.
func (s *Subscription[T]) Dropped() uint64 {
	return s.queue.Dropped()
}

// Len returns the number of queued values.
func (s *Subscription[T]) Len() int {
	return s.queue.Len()
}

// Close unregisters the subscriber and discards queued values.
// Values published after Close returns are never delivered.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
		s.queue.Close()
	})
}
