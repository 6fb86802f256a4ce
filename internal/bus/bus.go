package bus

import (
	"sync"
	"sync/atomic"

	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

const defaultCapacity = 1024

// DropFunc is called after a subscriber queue evicted an element.
type DropFunc func(topic string, subscriber string)

// Option customizes a Bus.
type Option func(*options)

type options struct {
	capacity int
	onDrop   DropFunc
}

// WithCapacity sets the queue capacity used when Subscribe is called with capacity <= 0.
func WithCapacity(capacity int) Option {
	return func(o *options) {
		if capacity > 0 {
			o.capacity = capacity
		}
	}
}

// WithDropFunc installs an overflow observer.
func WithDropFunc(fn DropFunc) Option {
	return func(o *options) {
		o.onDrop = fn
	}
}

// Stats is a point-in-time view of bus counters.
type Stats struct {
	Published   uint64
	Delivered   uint64
	Dropped     uint64
	Topics      int
	Subscribers int
}

// Bus routes values to subscribers by topic. Every subscriber owns a bounded
// drop-oldest queue, so Publish never blocks and a slow subscriber only loses
// its own oldest values.
type Bus[T any] struct {
	mu       sync.RWMutex
	topics   map[string]map[*Subscription[T]]struct{}
	matchers map[*Subscription[T]]struct{}
	closed   bool
	opts     options

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// New creates an empty bus.
func New[T any](opts ...Option) *Bus[T] {
	o := options{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	return &Bus[T]{
		topics:   make(map[string]map[*Subscription[T]]struct{}),
		matchers: make(map[*Subscription[T]]struct{}),
		opts:     o,
	}
}

// Subscribe registers a subscriber for one topic.
func (b *Bus[T]) Subscribe(topic string, capacity int) (*Subscription[T], error) {
	if topic == "" {
		return nil, exception.ErrEmptyTopic
	}
	sub := b.newSubscription(topic, nil, capacity)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, exception.ErrBusClosed
	}
	set := b.topics[topic]
	if set == nil {
		set = make(map[*Subscription[T]]struct{})
		b.topics[topic] = set
	}
	set[sub] = struct{}{}
	return sub, nil
}

// SubscribeFunc registers a subscriber receiving every topic accepted by match.
// name labels the subscriber in drop notifications.
func (b *Bus[T]) SubscribeFunc(name string, match func(topic string) bool, capacity int) (*Subscription[T], error) {
	if match == nil {
		return nil, exception.ErrNilInstance
	}
	sub := b.newSubscription(name, match, capacity)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, exception.ErrBusClosed
	}
	b.matchers[sub] = struct{}{}
	return sub, nil
}

// Publish fans v out to every subscriber of topic and returns the number of
// subscribers that received it.
func (b *Bus[T]) Publish(topic string, v T) int {
	b.published.Add(1)

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0
	}
	var delivered int
	for sub := range b.topics[topic] {
		if b.deliver(sub, topic, v) {
			delivered++
		}
	}
	for sub := range b.matchers {
		if sub.match(topic) && b.deliver(sub, topic, v) {
			delivered++
		}
	}
	b.mu.RUnlock()

	b.delivered.Add(uint64(delivered))
	return delivered
}

func (b *Bus[T]) deliver(sub *Subscription[T], topic string, v T) bool {
	ok, evicted := sub.queue.Push(v)
	if evicted {
		b.dropped.Add(1)
		if b.opts.onDrop != nil {
			b.opts.onDrop(topic, sub.name)
		}
	}
	return ok
}

// Subscribers returns the number of subscribers registered for topic.
func (b *Bus[T]) Subscribers(topic string) int {
	b.mu.RLock()
	n := len(b.topics[topic])
	b.mu.RUnlock()
	return n
}

// Stats returns the bus counters.
func (b *Bus[T]) Stats() Stats {
	b.mu.RLock()
	subscribers := len(b.matchers)
	for _, set := range b.topics {
		subscribers += len(set)
	}
	topics := len(b.topics)
	b.mu.RUnlock()
	return Stats{
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Dropped:     b.dropped.Load(),
		Topics:      topics,
		Subscribers: subscribers,
	}
}

// Close closes every subscription and rejects new ones.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription[T], 0, len(b.matchers))
	for sub := range b.matchers {
		subs = append(subs, sub)
	}
	for _, set := range b.topics {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	b.topics = make(map[string]map[*Subscription[T]]struct{})
	b.matchers = make(map[*Subscription[T]]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		sub.queue.Close()
	}
}

func (b *Bus[T]) newSubscription(name string, match func(string) bool, capacity int) *Subscription[T] {
	if capacity <= 0 {
		capacity = b.opts.capacity
	}
	return &Subscription[T]{
		bus:   b,
		name:  name,
		match: match,
		queue: NewQueue[T](capacity),
	}
}

func (b *Bus[T]) remove(sub *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.match != nil {
		delete(b.matchers, sub)
		return
	}
	set := b.topics[sub.name]
	delete(set, sub)
	if len(set) == 0 {
		delete(b.topics, sub.name)
	}
}
