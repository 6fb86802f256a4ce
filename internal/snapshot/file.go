package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

// File is a point in time copy of a Store.
type File struct {
	Timestamp  int64                  `json:"timestamp"`
	Symbols    []schema.SymbolView    `json:"symbols"`
	Portfolios []schema.PortfolioView `json:"portfolios"`
	Watchlists []schema.WatchlistView `json:"watchlists"`
}

// WriteFile writes a snapshot to disk as JSON.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile loads a snapshot from disk.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return File{}, err
	}
	return f, nil
}

// Compare checks that two snapshots hold the same market and valuation state.
// Wall clock fields are ignored.
func Compare(expected, actual File) error {
	if len(expected.Symbols) != len(actual.Symbols) {
		return fmt.Errorf("snapshot symbol count mismatch: expected=%d actual=%d", len(expected.Symbols), len(actual.Symbols))
	}
	symbols := make(map[string]schema.SymbolView, len(expected.Symbols))
	for _, v := range expected.Symbols {
		symbols[v.Symbol] = v
	}
	for _, got := range actual.Symbols {
		want, ok := symbols[got.Symbol]
		if !ok {
			return fmt.Errorf("snapshot missing symbol: %s", got.Symbol)
		}
		if err := compareSymbol(want, got); err != nil {
			return err
		}
	}

	if len(expected.Portfolios) != len(actual.Portfolios) {
		return fmt.Errorf("snapshot portfolio count mismatch: expected=%d actual=%d", len(expected.Portfolios), len(actual.Portfolios))
	}
	portfolios := make(map[string]schema.PortfolioView, len(expected.Portfolios))
	for _, v := range expected.Portfolios {
		portfolios[v.ID] = v
	}
	for _, got := range actual.Portfolios {
		want, ok := portfolios[got.ID]
		if !ok {
			return fmt.Errorf("snapshot missing portfolio: %s", got.ID)
		}
		if err := comparePortfolio(want, got); err != nil {
			return err
		}
	}

	if len(expected.Watchlists) != len(actual.Watchlists) {
		return fmt.Errorf("snapshot watchlist count mismatch: expected=%d actual=%d", len(expected.Watchlists), len(actual.Watchlists))
	}
	watchlists := make(map[string]schema.WatchlistView, len(expected.Watchlists))
	for _, v := range expected.Watchlists {
		watchlists[v.ID] = v
	}
	for _, got := range actual.Watchlists {
		want, ok := watchlists[got.ID]
		if !ok {
			return fmt.Errorf("snapshot missing watchlist: %s", got.ID)
		}
		if len(want.Entries) != len(got.Entries) {
			return fmt.Errorf("snapshot watchlist entries mismatch: id=%s expected=%d actual=%d", got.ID, len(want.Entries), len(got.Entries))
		}
		for i := range want.Entries {
			w, g := want.Entries[i], got.Entries[i]
			if w.Symbol != g.Symbol || !w.LastPrice.Equal(g.LastPrice) || w.LastEventTs != g.LastEventTs {
				return fmt.Errorf("snapshot watchlist entry mismatch: id=%s symbol=%s", got.ID, g.Symbol)
			}
		}
	}
	return nil
}

func compareSymbol(want, got schema.SymbolView) error {
	switch {
	case want.Version != got.Version:
		return fmt.Errorf("snapshot version mismatch: symbol=%s expected=%d actual=%d", got.Symbol, want.Version, got.Version)
	case want.Seq != got.Seq, want.Source != got.Source:
		return fmt.Errorf("snapshot seq mismatch: symbol=%s expected=%d actual=%d", got.Symbol, want.Seq, got.Seq)
	case !want.LastPrice.Equal(got.LastPrice):
		return fmt.Errorf("snapshot price mismatch: symbol=%s expected=%s actual=%s", got.Symbol, want.LastPrice, got.LastPrice)
	case !want.OpenPrice.Equal(got.OpenPrice), !want.DayHigh.Equal(got.DayHigh), !want.DayLow.Equal(got.DayLow):
		return fmt.Errorf("snapshot session range mismatch: symbol=%s", got.Symbol)
	case !want.Volume.Equal(got.Volume):
		return fmt.Errorf("snapshot volume mismatch: symbol=%s expected=%s actual=%s", got.Symbol, want.Volume, got.Volume)
	case want.LastEventTs != got.LastEventTs:
		return fmt.Errorf("snapshot event time mismatch: symbol=%s", got.Symbol)
	case want.Stale != got.Stale, want.IndicatorsStale != got.IndicatorsStale:
		return fmt.Errorf("snapshot staleness mismatch: symbol=%s", got.Symbol)
	case len(want.Indicators) != len(got.Indicators):
		return fmt.Errorf("snapshot indicator count mismatch: symbol=%s", got.Symbol)
	}
	for i := range want.Indicators {
		if want.Indicators[i] != got.Indicators[i] {
			return fmt.Errorf("snapshot indicator mismatch: symbol=%s name=%s expected=%v actual=%v",
				got.Symbol, got.Indicators[i].Name, want.Indicators[i].Value, got.Indicators[i].Value)
		}
	}
	return nil
}

func comparePortfolio(want, got schema.PortfolioView) error {
	switch {
	case want.Version != got.Version:
		return fmt.Errorf("snapshot version mismatch: portfolio=%s expected=%d actual=%d", got.ID, want.Version, got.Version)
	case !want.Valuation.Equal(got.Valuation):
		return fmt.Errorf("snapshot valuation mismatch: portfolio=%s expected=%s actual=%s", got.ID, want.Valuation, got.Valuation)
	case !want.CostBasis.Equal(got.CostBasis), !want.UnrealizedPnL.Equal(got.UnrealizedPnL):
		return fmt.Errorf("snapshot pnl mismatch: portfolio=%s", got.ID)
	case len(want.Positions) != len(got.Positions):
		return fmt.Errorf("snapshot position count mismatch: portfolio=%s", got.ID)
	}
	for i := range want.Positions {
		w, g := want.Positions[i], got.Positions[i]
		if w.Symbol != g.Symbol || !w.Quantity.Equal(g.Quantity) || !w.MarketValue.Equal(g.MarketValue) {
			return fmt.Errorf("snapshot position mismatch: portfolio=%s symbol=%s", got.ID, g.Symbol)
		}
	}
	return nil
}
