package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

func symbolView(symbol string, version uint64, price string) schema.SymbolView {
	return schema.SymbolView{
		Symbol:    symbol,
		Version:   version,
		Seq:       version,
		LastPrice: decimal.RequireFromString(price),
		OpenPrice: decimal.RequireFromString(price),
		Indicators: []schema.IndicatorValue{
			{Name: "SMA-20", Window: 20, Value: 1.5, Samples: 3},
		},
	}
}

func TestPutSymbolLastWriterWins(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.PutSymbol(symbolView("AAPL", 5, "100")))
	require.NoError(t, s.PutSymbol(symbolView("AAPL", 5, "101")))

	err := s.PutSymbol(symbolView("AAPL", 4, "99"))
	require.ErrorIs(t, err, exception.ErrStaleWrite)
	assert.Equal(t, uint64(1), s.Rejected())

	v, ok := s.Symbol("AAPL")
	require.True(t, ok)
	assert.Equal(t, "101", v.LastPrice.String())

	require.NoError(t, s.PutSymbol(symbolView("AAPL", 6, "102")))
	v, _ = s.Symbol("AAPL")
	assert.Equal(t, uint64(6), v.Version)
}

func TestPortfolioAndWatchlistVersions(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.PutPortfolio(schema.PortfolioView{ID: "p1", Version: 2, Valuation: decimal.NewFromInt(10)}))
	require.ErrorIs(t, s.PutPortfolio(schema.PortfolioView{ID: "p1", Version: 1}), exception.ErrStaleWrite)

	require.NoError(t, s.PutWatchlist(schema.WatchlistView{ID: "w1", Version: 3}))
	require.ErrorIs(t, s.PutWatchlist(schema.WatchlistView{ID: "w1", Version: 2}), exception.ErrStaleWrite)

	p, ok := s.Portfolio("p1")
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(10).Equal(p.Valuation))

	s.DeletePortfolio("p1")
	_, ok = s.Portfolio("p1")
	assert.False(t, ok)
	s.DeleteWatchlist("w1")
	_, ok = s.Watchlist("w1")
	assert.False(t, ok)
}

func TestPutDispatchesByKind(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(schema.SymbolUpdate(symbolView("MSFT", 1, "300"))))
	require.NoError(t, s.Put(schema.PortfolioUpdate(schema.PortfolioView{ID: "p1", Version: 1})))
	require.NoError(t, s.Put(schema.StalenessUpdate(schema.StalenessNotice{Symbol: "MSFT"})))

	assert.Equal(t, []string{"MSFT"}, s.Symbols())
	_, ok := s.Portfolio("p1")
	assert.True(t, ok)
}

func TestExportImportAndFile(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.PutSymbol(symbolView("MSFT", 2, "300.25")))
	require.NoError(t, s.PutSymbol(symbolView("AAPL", 7, "190.5")))
	require.NoError(t, s.PutPortfolio(schema.PortfolioView{
		ID:        "p1",
		Version:   4,
		Valuation: decimal.RequireFromString("1905"),
		Positions: []schema.PositionView{{Symbol: "AAPL", Quantity: decimal.NewFromInt(10), MarketValue: decimal.RequireFromString("1905")}},
	}))
	require.NoError(t, s.PutWatchlist(schema.WatchlistView{
		ID:      "w1",
		Version: 1,
		Entries: []schema.WatchlistEntry{{Symbol: "MSFT", LastPrice: decimal.RequireFromString("300.25")}},
	}))

	exported := s.Export()
	require.Len(t, exported.Symbols, 2)
	assert.Equal(t, "AAPL", exported.Symbols[0].Symbol)

	path := filepath.Join(t.TempDir(), "snap", "state.json")
	require.NoError(t, WriteFile(path, exported))
	loaded, err := ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, Compare(exported, loaded))

	restored := NewStore()
	assert.Equal(t, 4, restored.Import(loaded))
	require.NoError(t, Compare(exported, restored.Export()))

	// a second import of the same file is idempotent
	assert.Equal(t, 4, restored.Import(loaded))

	s.Reset()
	assert.Empty(t, s.Symbols())
}

func TestCompareReportsDifferences(t *testing.T) {
	a := File{Symbols: []schema.SymbolView{symbolView("AAPL", 1, "100")}}
	b := File{Symbols: []schema.SymbolView{symbolView("AAPL", 1, "101")}}
	require.Error(t, Compare(a, b))

	c := File{Symbols: []schema.SymbolView{symbolView("MSFT", 1, "100")}}
	require.Error(t, Compare(a, c))

	d := File{Symbols: []schema.SymbolView{symbolView("AAPL", 1, "100")}}
	d.Symbols[0].Indicators[0].Value = 2
	require.Error(t, Compare(a, d))

	e := File{Timestamp: 99, Symbols: []schema.SymbolView{symbolView("AAPL", 1, "100")}}
	require.NoError(t, Compare(a, e))
}

type recordingMirror struct {
	updates []schema.Update
}

func (m *recordingMirror) Enqueue(u schema.Update) bool {
	m.updates = append(m.updates, u)
	return true
}

func TestMirrorReceivesAcceptedWritesOnly(t *testing.T) {
	m := &recordingMirror{}
	s := NewStore(WithMirror(m))
	require.NoError(t, s.PutSymbol(symbolView("AAPL", 2, "100")))
	require.Error(t, s.PutSymbol(symbolView("AAPL", 1, "100")))
	require.Len(t, m.updates, 1)
	assert.Equal(t, "AAPL", m.updates[0].Key)
}
