package valuation

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	return NewEngine(Config{StalenessBound: 30 * time.Second, Now: clock.Now}), clock
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quote(clock *fakeClock, symbol, price string, seq uint64) Quote {
	return Quote{Symbol: symbol, Price: d(price), Open: d(price), Seq: seq, Ts: clock.now.UnixNano()}
}

func portfolioUpdate(t *testing.T, updates []schema.Update, id string) schema.PortfolioView {
	t.Helper()
	for _, u := range updates {
		if u.Kind == schema.UpdatePortfolio && u.Portfolio.ID == id {
			return *u.Portfolio
		}
	}
	t.Fatalf("no update for portfolio %s in %d updates", id, len(updates))
	return schema.PortfolioView{}
}

func TestValuationFollowsPrices(t *testing.T) {
	e, clock := newTestEngine(t)
	v, err := e.AddPortfolio(Portfolio{
		ID:    "p1",
		Owner: "alice",
		Positions: []Position{
			NewPosition("AAPL", d("10"), d("150")),
			NewPosition("MSFT", d("5"), d("300")),
		},
	})
	require.NoError(t, err)
	assert.True(t, v.Stale)
	assert.Equal(t, schema.StaleReasonNoPrice, v.StaleReason)
	assert.True(t, v.Valuation.IsZero())

	v = portfolioUpdate(t, e.OnSymbolUpdate(quote(clock, "AAPL", "190.5", 1)), "p1")
	assert.Equal(t, "1905", v.Valuation.String())
	assert.True(t, v.Stale)

	v = portfolioUpdate(t, e.OnSymbolUpdate(quote(clock, "MSFT", "410.25", 1)), "p1")
	assert.Equal(t, "3956.25", v.Valuation.String())
	assert.Equal(t, "3000", v.CostBasis.String())
	assert.Equal(t, "956.25", v.UnrealizedPnL.String())
	assert.False(t, v.Stale)
	assert.Equal(t, "", v.StaleReason)

	var weights float64
	for _, pos := range v.Positions {
		weights += pos.Weight
	}
	assert.InDelta(t, 1.0, weights, 1e-9)

	cached, err := e.Portfolio("p1")
	require.NoError(t, err)
	assert.True(t, v.Valuation.Equal(cached.Valuation))
	assert.Equal(t, v.Version, cached.Version)
}

func TestIncrementalMatchesRecompute(t *testing.T) {
	e, clock := newTestEngine(t)
	symbols := []string{"AAPL", "MSFT", "GOOG", "AMZN", "NVDA"}
	positions := make([]Position, 0, len(symbols))
	for i, s := range symbols {
		positions = append(positions, NewPosition(s, decimal.NewFromInt(int64(i+1)*7), d("12.34")))
	}
	positions = append(positions, NewPosition("AAPL", d("0.5"), d("99.99")))
	_, err := e.AddPortfolio(Portfolio{ID: "p1", Positions: positions})
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(3, 5))
	seq := make(map[string]uint64)
	var last schema.PortfolioView
	for i := 0; i < 10_000; i++ {
		s := symbols[rng.IntN(len(symbols))]
		seq[s]++
		price := decimal.New(int64(1+rng.IntN(1_000_000)), -4)
		updates := e.OnSymbolUpdate(Quote{Symbol: s, Price: price, Seq: seq[s], Ts: clock.now.UnixNano()})
		last = portfolioUpdate(t, updates, "p1")
	}

	full, err := e.Recompute("p1")
	require.NoError(t, err)
	if !full.Valuation.Equal(last.Valuation) {
		t.Fatalf("incremental %s != recompute %s", last.Valuation, full.Valuation)
	}
	assert.Greater(t, full.Version, last.Version)

	var sum decimal.Decimal
	for _, pos := range full.Positions {
		sum = sum.Add(pos.MarketValue)
	}
	assert.True(t, sum.Equal(full.Valuation))
}

func TestReverseIndexTouchesOnlyDependents(t *testing.T) {
	e, clock := newTestEngine(t)
	_, err := e.AddPortfolio(Portfolio{ID: "p1", Positions: []Position{NewPosition("AAPL", d("1"), d("1"))}})
	require.NoError(t, err)
	_, err = e.AddPortfolio(Portfolio{ID: "p2", Positions: []Position{NewPosition("MSFT", d("1"), d("1"))}})
	require.NoError(t, err)
	_, err = e.AddWatchlist(Watchlist{ID: "w1", Symbols: []string{"AAPL", "TSLA"}})
	require.NoError(t, err)

	updates := e.OnSymbolUpdate(quote(clock, "AAPL", "10", 1))
	require.Len(t, updates, 2)
	keys := []string{updates[0].Key, updates[1].Key}
	assert.ElementsMatch(t, []string{schema.PortfolioTopic("p1"), schema.WatchlistTopic("w1")}, keys)

	assert.Empty(t, e.OnSymbolUpdate(quote(clock, "IBM", "10", 1)))

	require.NoError(t, e.RemovePortfolio("p1"))
	updates = e.OnSymbolUpdate(quote(clock, "AAPL", "11", 2))
	require.Len(t, updates, 1)
	assert.Equal(t, schema.UpdateWatchlist, updates[0].Kind)
}

func TestNewPortfolioUsesKnownPrices(t *testing.T) {
	e, clock := newTestEngine(t)
	e.OnSymbolUpdate(quote(clock, "AAPL", "200", 1))

	v, err := e.AddPortfolio(Portfolio{ID: "p1", Positions: []Position{NewPosition("AAPL", d("3"), d("100"))}})
	require.NoError(t, err)
	assert.Equal(t, "600", v.Valuation.String())
	assert.False(t, v.Stale)
	assert.Equal(t, uint64(1), v.Version)
}

func TestStaleSymbolKeepsLastValuation(t *testing.T) {
	e, clock := newTestEngine(t)
	_, err := e.AddPortfolio(Portfolio{ID: "p1", Positions: []Position{NewPosition("AAPL", d("2"), d("100"))}})
	require.NoError(t, err)
	e.OnSymbolUpdate(quote(clock, "AAPL", "150", 1))

	v := portfolioUpdate(t, e.MarkSymbolStale("AAPL", schema.StaleReasonGap, clock.now.UnixNano()), "p1")
	assert.True(t, v.Stale)
	assert.Equal(t, schema.StaleReasonGap, v.StaleReason)
	assert.Equal(t, "300", v.Valuation.String())
	assert.True(t, v.Positions[0].Stale)

	v = portfolioUpdate(t, e.OnSymbolUpdate(quote(clock, "AAPL", "151", 3)), "p1")
	assert.False(t, v.Stale)
	assert.Equal(t, "302", v.Valuation.String())
}

func TestStalenessByAge(t *testing.T) {
	e, clock := newTestEngine(t)
	_, err := e.AddPortfolio(Portfolio{
		ID: "p1",
		Positions: []Position{
			NewPosition("AAPL", d("1"), d("1")),
			NewPosition("MSFT", d("1"), d("1")),
		},
	})
	require.NoError(t, err)
	e.OnSymbolUpdate(quote(clock, "AAPL", "10", 1))
	clock.now = clock.now.Add(10 * time.Second)
	e.OnSymbolUpdate(quote(clock, "MSFT", "20", 1))
	assert.Empty(t, e.Sweep())

	clock.now = clock.now.Add(25 * time.Second)
	updates := e.Sweep()
	require.Len(t, updates, 1)
	v := *updates[0].Portfolio
	assert.True(t, v.Stale)
	assert.Equal(t, schema.StaleReasonAge, v.StaleReason)
	assert.Equal(t, int64(35_000), v.StaleAgeMs)
	assert.Equal(t, 35*time.Second, e.StaleAges()["p1"])

	assert.Empty(t, e.Sweep())

	e.OnSymbolUpdate(quote(clock, "AAPL", "11", 2))
	v = portfolioUpdate(t, e.OnSymbolUpdate(quote(clock, "MSFT", "21", 2)), "p1")
	assert.False(t, v.Stale)
	assert.Empty(t, e.Sweep())
}

func TestMaxDrawdown(t *testing.T) {
	e, clock := newTestEngine(t)
	_, err := e.AddPortfolio(Portfolio{ID: "p1", Positions: []Position{NewPosition("AAPL", d("10"), d("100"))}})
	require.NoError(t, err)

	e.OnSymbolUpdate(quote(clock, "AAPL", "100", 1))
	e.OnSymbolUpdate(quote(clock, "AAPL", "120", 2))
	e.OnSymbolUpdate(quote(clock, "AAPL", "90", 3))
	v := portfolioUpdate(t, e.OnSymbolUpdate(quote(clock, "AAPL", "110", 4)), "p1")
	assert.Equal(t, "1200", v.Peak.String())
	assert.InDelta(t, 0.25, v.MaxDrawdown, 1e-12)
}

func TestWatchlistView(t *testing.T) {
	e, clock := newTestEngine(t)
	v, err := e.AddWatchlist(Watchlist{ID: "w1", Owner: "bob", Symbols: []string{"AAPL", "MSFT", "AAPL"}})
	require.NoError(t, err)
	require.Len(t, v.Entries, 2)
	assert.True(t, v.Stale)

	q := quote(clock, "AAPL", "110", 1)
	q.Open = d("100")
	updates := e.OnSymbolUpdate(q)
	require.Len(t, updates, 1)
	w := *updates[0].Watchlist
	assert.Equal(t, "AAPL", w.Entries[0].Symbol)
	assert.InDelta(t, 10.0, w.Entries[0].ChangePct, 1e-9)
	assert.True(t, w.Entries[0].Priced)
	assert.False(t, w.Entries[1].Priced)

	symbols, err := e.WatchlistSymbols("w1")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)
	owner, err := e.WatchlistOwner("w1")
	require.NoError(t, err)
	assert.Equal(t, "bob", owner)
}

func TestCapacityAndValidation(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	e := NewEngine(Config{MaxSymbolsPerWatchlist: 2, MaxSymbolsPerPortfolio: 1, Now: clock.Now})

	_, err := e.AddWatchlist(Watchlist{ID: "tech", Symbols: []string{"AAPL", "MSFT", "NVDA"}})
	require.ErrorIs(t, err, exception.ErrCapacityExceeded)
	var capErr *exception.CapacityExceededError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 3, capErr.Requested)
	assert.Equal(t, 2, capErr.Limit)

	_, err = e.AddPortfolio(Portfolio{ID: "p1", Positions: []Position{
		NewPosition("AAPL", d("1"), d("1")),
		NewPosition("MSFT", d("1"), d("1")),
	}})
	require.ErrorIs(t, err, exception.ErrCapacityExceeded)

	_, err = e.AddPortfolio(Portfolio{ID: "p1", Positions: []Position{{Symbol: "AAPL"}}})
	require.ErrorIs(t, err, exception.ErrInvalidPosition)
	_, err = e.AddPortfolio(Portfolio{})
	require.ErrorIs(t, err, exception.ErrInvalidArgument)

	_, err = e.AddPortfolio(Portfolio{ID: "p1"})
	require.NoError(t, err)
	_, err = e.AddPortfolio(Portfolio{ID: "p1"})
	require.ErrorIs(t, err, exception.ErrDuplicatePortfolio)

	_, err = e.Portfolio("nope")
	require.ErrorIs(t, err, exception.ErrUnknownPortfolio)
	require.ErrorIs(t, e.RemoveWatchlist("nope"), exception.ErrUnknownWatchlist)
}

func TestParallelPortfolios(t *testing.T) {
	e, clock := newTestEngine(t)
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := e.AddPortfolio(Portfolio{ID: id, Positions: []Position{
			NewPosition("AAPL", d("1"), d("1")),
			NewPosition(id+"X", d("1"), d("1")),
		}})
		require.NoError(t, err)
	}

	done := make(chan struct{})
	for _, id := range []string{"a", "b", "c", "d"} {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := uint64(1); i <= 1000; i++ {
				e.OnSymbolUpdate(Quote{Symbol: id + "X", Price: decimal.NewFromInt(int64(i)), Seq: i, Ts: clock.now.UnixNano()})
			}
		}()
	}
	for i := uint64(1); i <= 1000; i++ {
		e.OnSymbolUpdate(Quote{Symbol: "AAPL", Price: decimal.NewFromInt(2), Seq: i, Ts: clock.now.UnixNano()})
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	for _, id := range e.PortfolioIDs() {
		v, err := e.Portfolio(id)
		require.NoError(t, err)
		assert.Equal(t, "1002", v.Valuation.String(), id)
	}
}

func TestLoadFromRepository(t *testing.T) {
	ctx := t.Context()
	repo := NewMemoryRepository()
	require.NoError(t, repo.SavePortfolio(ctx, Portfolio{ID: "p1", Owner: "alice", Positions: []Position{NewPosition("AAPL", d("1"), d("1"))}}))
	require.NoError(t, repo.SaveWatchlist(ctx, Watchlist{ID: "w1", Owner: "alice", Symbols: []string{"AAPL"}}))
	require.Error(t, repo.SavePortfolio(ctx, Portfolio{}))

	e, _ := newTestEngine(t)
	n, err := Load(ctx, repo, e)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	owner, err := e.PortfolioOwner("p1")
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	require.NoError(t, repo.DeletePortfolio(ctx, "p1"))
	require.ErrorIs(t, repo.DeletePortfolio(ctx, "p1"), exception.ErrUnknownPortfolio)
	ps, err := repo.Portfolios(ctx)
	require.NoError(t, err)
	assert.Empty(t, ps)
}

func TestRecordConversion(t *testing.T) {
	p := Portfolio{ID: "p1", Owner: "alice", Positions: []Position{NewPosition("AAPL", d("1.5"), d("2"))}}
	got := portfolioRecord(p).toPortfolio()
	require.Len(t, got.Positions, 1)
	assert.True(t, got.Positions[0].CostBasis.Equal(d("3")))

	w := WatchlistRecord{ID: "w1", Symbols: "AAPL,MSFT"}.toWatchlist()
	assert.Equal(t, []string{"AAPL", "MSFT"}, w.Symbols)
	assert.Empty(t, WatchlistRecord{ID: "w2"}.toWatchlist().Symbols)
}
