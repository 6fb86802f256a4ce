package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	b := New[int]()
	sub, err := b.Subscribe("ABC", 16)
	require.NoError(t, err)

	for i := 1; i <= 10; i++ {
		assert.Equal(t, 1, b.Publish("ABC", i))
	}
	b.Publish("XYZ", 99)

	ctx := t.Context()
	for i := 1; i <= 10; i++ {
		v, err := sub.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, sub.Len())
}

func TestOverflowDropsOldest(t *testing.T) {
	var drops atomic.Int64
	b := New[int](WithDropFunc(func(topic, subscriber string) {
		assert.Equal(t, "ABC", topic)
		drops.Add(1)
	}))
	slow, err := b.Subscribe("ABC", 3)
	require.NoError(t, err)
	fast, err := b.Subscribe("ABC", 16)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		b.Publish("ABC", i)
	}

	assert.Equal(t, uint64(2), slow.Dropped())
	assert.Equal(t, uint64(0), fast.Dropped())
	assert.Equal(t, int64(2), drops.Load())
	assert.Equal(t, uint64(2), b.Stats().Dropped)

	var got []int
	for v, ok := slow.TryNext(); ok; v, ok = slow.TryNext() {
		got = append(got, v)
	}
	assert.Equal(t, []int{3, 4, 5}, got)
	assert.Equal(t, 5, fast.Len())
}

func TestPublishNeverBlocksOnStalledSubscriber(t *testing.T) {
	const total = 200000
	b := New[int]()
	stalled, err := b.Subscribe("ABC", 64)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			b.Publish("ABC", i)
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("publisher blocked by stalled subscriber")
	}
	assert.Equal(t, uint64(total-64), stalled.Dropped())

	v, ok := stalled.TryNext()
	require.True(t, ok)
	assert.Equal(t, total-64, v)
}

func TestCloseIsImmediate(t *testing.T) {
	b := New[string]()
	sub, err := b.Subscribe("ABC", 8)
	require.NoError(t, err)

	b.Publish("ABC", "queued")
	sub.Close()
	sub.Close()

	_, err = sub.Next(t.Context())
	require.ErrorIs(t, err, exception.ErrSubscriptionClosed)
	assert.Equal(t, 0, b.Publish("ABC", "after"))
	assert.Equal(t, 0, b.Subscribers("ABC"))
	assert.Equal(t, 0, b.Stats().Topics)
}

func TestSubscribeFuncPartitions(t *testing.T) {
	b := New[string]()
	even, err := b.SubscribeFunc("even", func(topic string) bool { return len(topic)%2 == 0 }, 8)
	require.NoError(t, err)
	odd, err := b.SubscribeFunc("odd", func(topic string) bool { return len(topic)%2 == 1 }, 8)
	require.NoError(t, err)

	b.Publish("AB", "x")
	b.Publish("ABC", "y")

	assert.Equal(t, 1, even.Len())
	assert.Equal(t, 1, odd.Len())

	_, err = b.SubscribeFunc("nil", nil, 1)
	require.ErrorIs(t, err, exception.ErrNilInstance)
}

func TestSubscribeValidation(t *testing.T) {
	b := New[int]()
	_, err := b.Subscribe("", 1)
	require.ErrorIs(t, err, exception.ErrEmptyTopic)

	b.Close()
	_, err = b.Subscribe("ABC", 1)
	require.ErrorIs(t, err, exception.ErrBusClosed)
}

func TestNextHonoursContext(t *testing.T) {
	b := New[int]()
	sub, err := b.Subscribe("ABC", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = sub.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAllStopsOnClose(t *testing.T) {
	b := New[int]()
	sub, err := b.Subscribe("ABC", 8)
	require.NoError(t, err)
	b.Publish("ABC", 1)
	b.Publish("ABC", 2)

	var got []int
	for v := range sub.All(t.Context()) {
		got = append(got, v)
		if v == 2 {
			sub.Close()
		}
	}
	assert.Equal(t, []int{1, 2}, got)
}

func TestConcurrentPublishers(t *testing.T) {
	const (
		publishers = 8
		perTopic   = 1000
	)
	b := New[int]()
	subs := make([]*Subscription[int], publishers)
	for i := range subs {
		sub, err := b.Subscribe(topicName(i), perTopic)
		require.NoError(t, err)
		subs[i] = sub
	}

	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; n < perTopic; n++ {
				b.Publish(topicName(i), n)
			}
		}(i)
	}
	wg.Wait()

	for _, sub := range subs {
		require.Equal(t, perTopic, sub.Len())
		for n := 0; n < perTopic; n++ {
			v, ok := sub.TryNext()
			require.True(t, ok)
			require.Equal(t, n, v)
		}
	}
	assert.Equal(t, uint64(publishers*perTopic), b.Stats().Delivered)
}

func topicName(i int) string {
	return string(rune('A' + i))
}
