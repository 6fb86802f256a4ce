package core

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/bus"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/indicator"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/obs"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/recorder"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/snapshot"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/valuation"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

var base = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	venue, err := reg.AddVenue("XNAS")
	require.NoError(t, err)
	for _, s := range []string{"ABC", "AAPL", "MSFT"} {
		_, err := reg.AddSymbol(s, venue, schema.ScaleSpec{PriceScale: 2})
		require.NoError(t, err)
	}
	return reg
}

func newTestEngine(t *testing.T, lanes int, opts ...Option) *Engine {
	t.Helper()
	clock := func() time.Time { return base }
	values := valuation.NewEngine(valuation.Config{Now: clock})
	opts = append([]Option{WithClock(clock)}, opts...)
	e, err := New(Config{
		Lanes:      lanes,
		Indicators: indicator.MustParseSpecs("sma:3"),
	}, testRegistry(t), values, snapshot.NewStore(), opts...)
	require.NoError(t, err)
	return e
}

func start(t *testing.T, e *Engine) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return cancel
}

func trade(symbol string, seq uint64, price schema.Price) schema.Message {
	ts := base.Add(time.Duration(seq) * time.Second).UnixNano()
	return schema.EventMessage(schema.MarketEvent{
		Symbol:  symbol,
		Kind:    schema.EventTrade,
		Price:   price,
		Size:    1,
		TsEvent: ts,
		TsRecv:  ts,
		Seq:     seq,
	})
}

func next(t *testing.T, sub *bus.Subscription[schema.Update]) schema.Update {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	u, err := sub.Next(ctx)
	require.NoError(t, err)
	return u
}

func TestGapMarksIndicatorsStaleUntilReseeded(t *testing.T) {
	e := newTestEngine(t, 4)
	sub, err := e.Updates().Subscribe("ABC", 64)
	require.NoError(t, err)
	start(t, e)

	for seq := uint64(1); seq <= 3; seq++ {
		e.Publish(trade("ABC", seq, schema.Price(100_00+seq)))
	}
	e.Publish(schema.GapMessage(schema.Gap{Symbol: "ABC", Reason: schema.GapSequence, Expected: 4, Got: 7, Ts: base.UnixNano()}))
	e.Publish(trade("ABC", 7, 110_00))

	var u schema.Update
	for seq := uint64(1); seq <= 3; seq++ {
		u = next(t, sub)
		require.Equal(t, schema.UpdateSymbol, u.Kind)
		assert.Equal(t, seq, u.Symbol.Seq)
	}
	assert.True(t, u.Symbol.Indicators[0].Ready)

	u = next(t, sub)
	require.Equal(t, schema.UpdateSymbol, u.Kind)
	assert.True(t, u.Symbol.Stale)
	assert.Equal(t, schema.StaleReasonGap, u.Symbol.StaleReason)
	assert.True(t, u.Symbol.IndicatorsStale)

	u = next(t, sub)
	require.Equal(t, schema.UpdateStaleness, u.Kind)
	assert.Equal(t, "ABC", u.Staleness.Symbol)
	assert.Equal(t, schema.StaleReasonGap, u.Staleness.Reason)

	u = next(t, sub)
	require.Equal(t, schema.UpdateSymbol, u.Kind)
	assert.Equal(t, uint64(7), u.Symbol.Seq)
	assert.False(t, u.Symbol.Stale)
	assert.True(t, u.Symbol.IndicatorsStale)
	assert.False(t, u.Symbol.Indicators[0].Ready)

	e.Publish(trade("ABC", 8, 111_00))
	e.Publish(trade("ABC", 9, 112_00))
	assert.True(t, next(t, sub).Symbol.IndicatorsStale)
	u = next(t, sub)
	assert.False(t, u.Symbol.IndicatorsStale)
	require.True(t, u.Symbol.Indicators[0].Ready)
	assert.InDelta(t, 111.0, u.Symbol.Indicators[0].Value, 1e-9)
}

func TestOverlappingFeedsKeepSeparateSequences(t *testing.T) {
	m := obs.NewMetrics()
	e := newTestEngine(t, 1, WithMetrics(m))
	sub, err := e.Updates().Subscribe("AAPL", 64)
	require.NoError(t, err)
	start(t, e)

	first := trade("AAPL", 500, 150_00)
	first.Event.Source = 1
	e.Publish(first)
	for seq := uint64(1); seq <= 5; seq++ {
		msg := trade("AAPL", seq, schema.Price(160_00+seq))
		msg.Event.Source = 2
		e.Publish(msg)
	}

	var u schema.Update
	for range 6 {
		u = next(t, sub)
		require.Equal(t, schema.UpdateSymbol, u.Kind)
	}
	assert.Equal(t, "160.05", u.Symbol.LastPrice.String())
	assert.Equal(t, uint64(5), u.Symbol.Seq)
	assert.Equal(t, uint64(0), m.Snapshot().OutOfOrder)

	// a reconnect gap on feed 2 must not reopen feed 1 to replays
	e.Publish(schema.GapMessage(schema.Gap{Symbol: "AAPL", Reason: schema.GapReconnect, Ts: base.UnixNano(), Source: 2}))
	old := trade("AAPL", 400, 140_00)
	old.Event.Source = 1
	e.Publish(old)
	resumed := trade("AAPL", 1, 162_00)
	resumed.Event.Source = 2
	e.Publish(resumed)

	require.Eventually(t, func() bool {
		v, ok := e.store.Symbol("AAPL")
		return ok && v.LastPrice.String() == "162" && m.Snapshot().OutOfOrder == 1
	}, 5*time.Second, 5*time.Millisecond)
}

func TestPortfolioValuationFollowsPrices(t *testing.T) {
	e := newTestEngine(t, 4)
	p := valuation.Portfolio{ID: "p1", Owner: "alice", Positions: []valuation.Position{
		valuation.NewPosition("AAPL", decimal.NewFromInt(10), decimal.NewFromInt(100)),
		valuation.NewPosition("MSFT", decimal.NewFromInt(5), decimal.NewFromInt(200)),
	}}
	_, err := e.AddPortfolio(t.Context(), p)
	require.NoError(t, err)
	start(t, e)

	e.Publish(trade("MSFT", 1, 250_00))
	e.Publish(trade("AAPL", 1, 150_00))

	want := decimal.NewFromInt(10*150 + 5*250)
	require.Eventually(t, func() bool {
		v, ok := e.Store().Portfolio("p1")
		return ok && v.Valuation.Equal(want)
	}, 5*time.Second, time.Millisecond)

	v, _ := e.Store().Portfolio("p1")
	assert.False(t, v.Stale)
	assert.True(t, decimal.NewFromInt(2750-2000).Equal(v.UnrealizedPnL))
}

func TestDisconnectMarksHoldingsStale(t *testing.T) {
	e := newTestEngine(t, 2)
	_, err := e.AddWatchlist(t.Context(), valuation.Watchlist{ID: "w1", Owner: "bob", Symbols: []string{"AAPL"}})
	require.NoError(t, err)
	start(t, e)

	e.Publish(trade("AAPL", 1, 150_00))
	e.Publish(schema.ConnectivityMessage(schema.Connectivity{AdapterID: "sim", Symbol: "AAPL", State: schema.ConnDisconnected, Ts: base.UnixNano()}))
	e.Publish(schema.ConnectivityMessage(schema.Connectivity{AdapterID: "sim", State: schema.ConnDisconnected, Ts: base.UnixNano()}))

	require.Eventually(t, func() bool {
		v, ok := e.Store().Watchlist("w1")
		return ok && v.Stale
	}, 5*time.Second, time.Millisecond)

	sym, ok := e.Store().Symbol("AAPL")
	require.True(t, ok)
	assert.Equal(t, schema.StaleReasonFeedDisconnected, sym.StaleReason)
	assert.False(t, sym.IndicatorsStale)
	require.Len(t, e.Feeds(), 1)
	assert.Equal(t, "disconnected", e.Feeds()[0].State)
}

func TestOutOfOrderEventsAreIgnored(t *testing.T) {
	e := newTestEngine(t, 1)
	start(t, e)

	e.Publish(trade("ABC", 2, 100_00))
	e.Publish(trade("ABC", 1, 90_00))
	e.Publish(trade("ABC", 3, 101_00))

	require.Eventually(t, func() bool {
		v, ok := e.Store().Symbol("ABC")
		return ok && v.Seq == 3
	}, 5*time.Second, time.Millisecond)
	v, _ := e.Store().Symbol("ABC")
	assert.Equal(t, uint64(2), v.Version)
	assert.Equal(t, "100", v.DayLow.String())
}

func TestRunTwice(t *testing.T) {
	e := newTestEngine(t, 1)
	start(t, e)
	require.Eventually(t, func() bool { return e.running.Load() }, time.Second, time.Millisecond)
	require.ErrorIs(t, e.Run(t.Context()), exception.ErrAlreadyRunning)
	_, err := e.Rebuild(t.Context(), nil, nil)
	require.ErrorIs(t, err, exception.ErrAlreadyRunning)
}

func TestRebuildFromWAL(t *testing.T) {
	dir := t.TempDir()
	wal, err := recorder.NewWriter(recorder.DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, wal.Start(t.Context()))

	p := valuation.Portfolio{ID: "p1", Owner: "alice", Positions: []valuation.Position{
		valuation.NewPosition("AAPL", decimal.NewFromInt(10), decimal.NewFromInt(100)),
		valuation.NewPosition("MSFT", decimal.NewFromInt(5), decimal.NewFromInt(200)),
	}}

	live := newTestEngine(t, 1, WithRecorder(wal))
	_, err = live.AddPortfolio(t.Context(), p)
	require.NoError(t, err)
	cancel := start(t, live)

	msgs := []schema.Message{
		trade("AAPL", 1, 150_00),
		trade("MSFT", 1, 250_00),
		trade("AAPL", 2, 151_00),
		schema.GapMessage(schema.Gap{Symbol: "AAPL", Reason: schema.GapSequence, Expected: 3, Got: 5, Ts: base.UnixNano()}),
		trade("AAPL", 5, 149_00),
		trade("MSFT", 2, 251_50),
		trade("ABC", 1, 10_00),
	}
	for _, m := range msgs {
		live.Publish(m)
	}
	require.Eventually(t, func() bool {
		v, ok := live.Store().Symbol("ABC")
		return ok && v.Seq == 1
	}, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, wal.Close())
	want := live.Store().Export()

	for range 2 {
		rebuilt := newTestEngine(t, 1)
		_, err := rebuilt.AddPortfolio(t.Context(), p)
		require.NoError(t, err)
		playback, err := recorder.NewPlayback(recorder.PlaybackConfig{Dir: dir})
		require.NoError(t, err)

		stats, err := rebuilt.Rebuild(t.Context(), nil, playback)
		require.NoError(t, err)
		assert.Equal(t, len(msgs), stats.Replayed)
		require.NoError(t, snapshot.Compare(want, rebuilt.Store().Export()))
	}
}

func TestRebuildFromSnapshot(t *testing.T) {
	live := newTestEngine(t, 1)
	for seq := uint64(1); seq <= 3; seq++ {
		live.replay(trade("AAPL", seq, schema.Price(150_00+seq)))
	}
	file := live.Store().Export()
	file.Timestamp = base.Add(time.Hour).UnixNano()

	p := valuation.Portfolio{ID: "p1", Positions: []valuation.Position{
		valuation.NewPosition("AAPL", decimal.NewFromInt(2), decimal.NewFromInt(100)),
	}}
	restored := newTestEngine(t, 1)
	_, err := restored.AddPortfolio(t.Context(), p)
	require.NoError(t, err)
	stats, err := restored.Rebuild(t.Context(), &file, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Symbols)

	v, ok := restored.Store().Symbol("AAPL")
	require.True(t, ok)
	assert.Equal(t, uint64(3), v.Version)
	assert.Equal(t, "150.03", v.LastPrice.String())
	assert.True(t, v.IndicatorsStale)

	pv, ok := restored.Store().Portfolio("p1")
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("300.06").Equal(pv.Valuation))

	restored.replay(trade("AAPL", 3, 1_00))
	restored.replay(trade("AAPL", 4, 151_00))
	v, _ = restored.Store().Symbol("AAPL")
	assert.Equal(t, uint64(4), v.Version)
	assert.Equal(t, uint64(4), v.Seq)
}
