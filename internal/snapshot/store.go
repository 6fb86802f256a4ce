package snapshot

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// Mirror receives accepted writes for an external copy of the store.
// Enqueue must not block.
type Mirror interface {
	Enqueue(update schema.Update) bool
}

// Option configures a Store.
type Option func(*Store)

// WithMirror forwards every accepted write to m.
func WithMirror(m Mirror) Option {
	return func(s *Store) {
		s.mirror = m
	}
}

// Store keeps the last known good view of every symbol, portfolio and watchlist.
// Writes are last-writer-wins by version: a lower version is rejected and an
// equal version overwrites.
type Store struct {
	mu         sync.RWMutex
	symbols    map[string]schema.SymbolView
	portfolios map[string]schema.PortfolioView
	watchlists map[string]schema.WatchlistView

	mirror   Mirror
	rejected atomic.Uint64
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		symbols:    make(map[string]schema.SymbolView),
		portfolios: make(map[string]schema.PortfolioView),
		watchlists: make(map[string]schema.WatchlistView),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PutSymbol stores v unless a newer version is present.
func (s *Store) PutSymbol(v schema.SymbolView) error {
	s.mu.Lock()
	if cur, ok := s.symbols[v.Symbol]; ok && cur.Version > v.Version {
		s.mu.Unlock()
		return s.reject(v.Symbol, cur.Version, v.Version)
	}
	s.symbols[v.Symbol] = v
	s.mu.Unlock()
	s.forward(schema.SymbolUpdate(v))
	return nil
}

// Symbol returns the stored view of a symbol.
func (s *Store) Symbol(symbol string) (schema.SymbolView, bool) {
	s.mu.RLock()
	v, ok := s.symbols[symbol]
	s.mu.RUnlock()
	return v, ok
}

// PutPortfolio stores v unless a newer version is present.
func (s *Store) PutPortfolio(v schema.PortfolioView) error {
	s.mu.Lock()
	if cur, ok := s.portfolios[v.ID]; ok && cur.Version > v.Version {
		s.mu.Unlock()
		return s.reject(schema.PortfolioTopic(v.ID), cur.Version, v.Version)
	}
	s.portfolios[v.ID] = v
	s.mu.Unlock()
	s.forward(schema.PortfolioUpdate(v))
	return nil
}

// Portfolio returns the stored valuation of a portfolio.
func (s *Store) Portfolio(id string) (schema.PortfolioView, bool) {
	s.mu.RLock()
	v, ok := s.portfolios[id]
	s.mu.RUnlock()
	return v, ok
}

// DeletePortfolio removes a portfolio view.
func (s *Store) DeletePortfolio(id string) {
	s.mu.Lock()
	delete(s.portfolios, id)
	s.mu.Unlock()
}

// PutWatchlist stores v unless a newer version is present.
func (s *Store) PutWatchlist(v schema.WatchlistView) error {
	s.mu.Lock()
	if cur, ok := s.watchlists[v.ID]; ok && cur.Version > v.Version {
		s.mu.Unlock()
		return s.reject(schema.WatchlistTopic(v.ID), cur.Version, v.Version)
	}
	s.watchlists[v.ID] = v
	s.mu.Unlock()
	s.forward(schema.WatchlistUpdate(v))
	return nil
}

// Watchlist returns the stored view of a watchlist.
func (s *Store) Watchlist(id string) (schema.WatchlistView, bool) {
	s.mu.RLock()
	v, ok := s.watchlists[id]
	s.mu.RUnlock()
	return v, ok
}

// DeleteWatchlist removes a watchlist view.
func (s *Store) DeleteWatchlist(id string) {
	s.mu.Lock()
	delete(s.watchlists, id)
	s.mu.Unlock()
}

// Put stores the payload carried by an update. Staleness notices are ignored.
func (s *Store) Put(u schema.Update) error {
	switch u.Kind {
	case schema.UpdateSymbol:
		if u.Symbol != nil {
			return s.PutSymbol(*u.Symbol)
		}
	case schema.UpdatePortfolio:
		if u.Portfolio != nil {
			return s.PutPortfolio(*u.Portfolio)
		}
	case schema.UpdateWatchlist:
		if u.Watchlist != nil {
			return s.PutWatchlist(*u.Watchlist)
		}
	}
	return nil
}

// Symbols returns the stored symbol names in order.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.symbols))
	for k := range s.symbols {
		out = append(out, k)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Rejected returns the number of stale writes refused.
func (s *Store) Rejected() uint64 {
	return s.rejected.Load()
}

// Reset drops every entry.
func (s *Store) Reset() {
	s.mu.Lock()
	clear(s.symbols)
	clear(s.portfolios)
	clear(s.watchlists)
	s.mu.Unlock()
}

// Export copies the store into a File with entries sorted by key.
func (s *Store) Export() File {
	s.mu.RLock()
	f := File{
		Timestamp:  time.Now().UTC().UnixNano(),
		Symbols:    make([]schema.SymbolView, 0, len(s.symbols)),
		Portfolios: make([]schema.PortfolioView, 0, len(s.portfolios)),
		Watchlists: make([]schema.WatchlistView, 0, len(s.watchlists)),
	}
	for _, v := range s.symbols {
		f.Symbols = append(f.Symbols, v)
	}
	for _, v := range s.portfolios {
		f.Portfolios = append(f.Portfolios, v)
	}
	for _, v := range s.watchlists {
		f.Watchlists = append(f.Watchlists, v)
	}
	s.mu.RUnlock()

	sort.Slice(f.Symbols, func(i, j int) bool { return f.Symbols[i].Symbol < f.Symbols[j].Symbol })
	sort.Slice(f.Portfolios, func(i, j int) bool { return f.Portfolios[i].ID < f.Portfolios[j].ID })
	sort.Slice(f.Watchlists, func(i, j int) bool { return f.Watchlists[i].ID < f.Watchlists[j].ID })
	return f
}

// Import writes every entry of f. Entries older than the stored ones are skipped.
// It returns the number of entries accepted.
func (s *Store) Import(f File) int {
	var n int
	for _, v := range f.Symbols {
		if s.PutSymbol(v) == nil {
			n++
		}
	}
	for _, v := range f.Portfolios {
		if s.PutPortfolio(v) == nil {
			n++
		}
	}
	for _, v := range f.Watchlists {
		if s.PutWatchlist(v) == nil {
			n++
		}
	}
	return n
}

func (s *Store) reject(key string, have, got uint64) error {
	s.rejected.Add(1)
	return fmt.Errorf("%w: %s has version %d, got %d", exception.ErrStaleWrite, key, have, got)
}

func (s *Store) forward(u schema.Update) {
	if s.mirror != nil {
		s.mirror.Enqueue(u)
	}
}
