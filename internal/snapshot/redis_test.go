package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

func newTestMirror(t *testing.T) (*RedisMirror, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisMirror(client, RedisConfig{Prefix: "test", TTL: time.Hour}), mr
}

func TestRedisMirrorFlushAndWarm(t *testing.T) {
	m, mr := newTestMirror(t)
	ctx := t.Context()

	require.NoError(t, m.Flush(ctx,
		schema.SymbolUpdate(symbolView("AAPL", 3, "190.5")),
		schema.PortfolioUpdate(schema.PortfolioView{ID: "p1", Version: 2}),
		schema.WatchlistUpdate(schema.WatchlistView{ID: "w1", Version: 1}),
		schema.StalenessUpdate(schema.StalenessNotice{Symbol: "AAPL"}),
	))
	assert.True(t, mr.Exists("test:symbol:AAPL"))
	assert.True(t, mr.Exists("test:portfolio:p1"))
	assert.True(t, mr.Exists("test:watchlist:w1"))
	assert.Equal(t, time.Hour, mr.TTL("test:symbol:AAPL"))

	store := NewStore()
	n, err := m.Warm(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	v, ok := store.Symbol("AAPL")
	require.True(t, ok)
	assert.Equal(t, "190.5", v.LastPrice.String())
	assert.Equal(t, uint64(3), v.Version)
	_, ok = store.Portfolio("p1")
	assert.True(t, ok)
}

func TestRedisMirrorRunDrainsQueue(t *testing.T) {
	m, mr := newTestMirror(t)
	store := NewStore(WithMirror(m))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, store.PutSymbol(symbolView("MSFT", i, "300")))
	}
	require.Eventually(t, func() bool {
		return mr.Exists("test:symbol:MSFT") && m.Pending() == 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("mirror did not stop")
	}
}
