package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// Queue is a bounded ring buffer that evicts its oldest element when full.
// Push never blocks.
type Queue[T any] struct {
	mu     sync.Mutex
	buf    []T
	head   int
	size   int
	closed bool

	ready   chan struct{}
	done    chan struct{}
	dropped atomic.Uint64
}

// NewQueue allocates a queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{
		buf:   make([]T, capacity),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push appends v. When the queue is full the oldest element is evicted and
// evicted is true. ok is false once the queue is closed.
func (q *Queue[T]) Push(v T) (ok bool, evicted bool) {
	var zero T
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false, false
	}
	if q.size == len(q.buf) {
		q.buf[q.head] = zero
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		evicted = true
	}
	q.buf[(q.head+q.size)%len(q.buf)] = v
	q.size++
	q.mu.Unlock()

	if evicted {
		q.dropped.Add(1)
	}
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true, evicted
}

// TryPop removes the oldest element without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return v, true
}

// Pop blocks until an element is available, the queue is closed or ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		if v, ok := q.TryPop(); ok {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-q.done:
			return zero, exception.ErrSubscriptionClosed
		case <-q.ready:
		}
	}
}

// Ready is signalled after a push. It may fire spuriously.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Done is closed when the queue is closed.
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

// Close discards queued elements and rejects further pushes.
func (q *Queue[T]) Close() {
	var zero T
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for i := 0; i < q.size; i++ {
		q.buf[(q.head+i)%len(q.buf)] = zero
	}
	q.size = 0
	q.head = 0
	close(q.done)
	q.mu.Unlock()
}

// Closed reports whether Close was called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	return closed
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	size := q.size
	q.mu.Unlock()
	return size
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// Dropped returns how many elements were evicted by overflow.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}
