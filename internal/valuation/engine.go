package valuation

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

const (
	DefaultStalenessBound         = 30 * time.Second
	DefaultMaxSymbolsPerPortfolio = 500
	DefaultMaxSymbolsPerWatchlist = 200
)

// Config controls staleness and capacity.
type Config struct {
	StalenessBound         time.Duration
	MaxSymbolsPerPortfolio int
	MaxSymbolsPerWatchlist int
	Now                    func() time.Time
}

func (c Config) withDefaults() Config {
	if c.StalenessBound <= 0 {
		c.StalenessBound = DefaultStalenessBound
	}
	if c.MaxSymbolsPerPortfolio <= 0 {
		c.MaxSymbolsPerPortfolio = DefaultMaxSymbolsPerPortfolio
	}
	if c.MaxSymbolsPerWatchlist <= 0 {
		c.MaxSymbolsPerWatchlist = DefaultMaxSymbolsPerWatchlist
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Engine values portfolios and watchlists from the latest symbol prices.
//
// A reverse index maps each symbol to the portfolios and watchlists holding it,
// so one price change touches only the views that depend on it. Each portfolio
// has its own mutex: updates for different portfolios proceed in parallel.
type Engine struct {
	cfg Config

	mu         sync.RWMutex
	portfolios map[string]*portfolio
	watchlists map[string]*watchlist
	pBySymbol  map[string]map[string]struct{}
	wBySymbol  map[string]map[string]struct{}
	quoteMu    sync.RWMutex
	quotes     map[string]Quote
}

// NewEngine creates an empty engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:        cfg.withDefaults(),
		portfolios: make(map[string]*portfolio),
		watchlists: make(map[string]*watchlist),
		pBySymbol:  make(map[string]map[string]struct{}),
		wBySymbol:  make(map[string]map[string]struct{}),
		quotes:     make(map[string]Quote),
	}
}

// AddPortfolio registers p and values it from the prices already known.
func (e *Engine) AddPortfolio(p Portfolio) (schema.PortfolioView, error) {
	if err := p.Validate(); err != nil {
		return schema.PortfolioView{}, err
	}
	symbols := p.Symbols()
	if len(symbols) > e.cfg.MaxSymbolsPerPortfolio {
		return schema.PortfolioView{}, &exception.CapacityExceededError{
			Scope:     "portfolio",
			Key:       p.ID,
			Limit:     e.cfg.MaxSymbolsPerPortfolio,
			Requested: len(symbols),
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.portfolios[p.ID]; ok {
		return schema.PortfolioView{}, fmt.Errorf("%w: %s", exception.ErrDuplicatePortfolio, p.ID)
	}

	ps := newPortfolio(p)
	e.quoteMu.RLock()
	for sym, pos := range ps.positions {
		if q, ok := e.quotes[sym]; ok {
			pos.setQuote(q)
		}
	}
	e.quoteMu.RUnlock()
	ps.revalue()

	e.portfolios[p.ID] = ps
	for _, sym := range symbols {
		addIndex(e.pBySymbol, sym, p.ID)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.version++
	return ps.view(e.cfg, e.cfg.Now()), nil
}

// RemovePortfolio unregisters a portfolio.
func (e *Engine) RemovePortfolio(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ps, ok := e.portfolios[id]
	if !ok {
		return fmt.Errorf("%w: %s", exception.ErrUnknownPortfolio, id)
	}
	for _, sym := range ps.order {
		removeIndex(e.pBySymbol, sym, id)
	}
	delete(e.portfolios, id)
	return nil
}

// AddWatchlist registers w and fills it from the prices already known.
func (e *Engine) AddWatchlist(w Watchlist) (schema.WatchlistView, error) {
	if err := w.Validate(); err != nil {
		return schema.WatchlistView{}, err
	}
	symbols := dedupe(w.Symbols)
	if len(symbols) > e.cfg.MaxSymbolsPerWatchlist {
		return schema.WatchlistView{}, &exception.CapacityExceededError{
			Scope:     "watchlist",
			Key:       w.ID,
			Limit:     e.cfg.MaxSymbolsPerWatchlist,
			Requested: len(symbols),
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.watchlists[w.ID]; ok {
		return schema.WatchlistView{}, fmt.Errorf("%w: %s", exception.ErrDuplicateWatchlist, w.ID)
	}

	ws := newWatchlist(w.ID, w.Owner, symbols)
	e.quoteMu.RLock()
	for sym, entry := range ws.entries {
		if q, ok := e.quotes[sym]; ok {
			entry.setQuote(q)
		}
	}
	e.quoteMu.RUnlock()

	e.watchlists[w.ID] = ws
	for _, sym := range symbols {
		addIndex(e.wBySymbol, sym, w.ID)
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.version++
	return ws.view(e.cfg, e.cfg.Now()), nil
}

// RemoveWatchlist unregisters a watchlist.
func (e *Engine) RemoveWatchlist(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws, ok := e.watchlists[id]
	if !ok {
		return fmt.Errorf("%w: %s", exception.ErrUnknownWatchlist, id)
	}
	for _, sym := range ws.order {
		removeIndex(e.wBySymbol, sym, id)
	}
	delete(e.watchlists, id)
	return nil
}

// OnSymbolUpdate applies a new price to every portfolio and watchlist holding
// the symbol and returns their new views.
func (e *Engine) OnSymbolUpdate(q Quote) []schema.Update {
	e.quoteMu.Lock()
	e.quotes[q.Symbol] = q
	e.quoteMu.Unlock()

	ps, ws := e.dependents(q.Symbol)
	if len(ps) == 0 && len(ws) == 0 {
		return nil
	}
	now := e.cfg.Now()
	out := make([]schema.Update, 0, len(ps)+len(ws))
	for _, p := range ps {
		out = append(out, schema.PortfolioUpdate(p.apply(q, e.cfg, now)))
	}
	for _, w := range ws {
		out = append(out, schema.WatchlistUpdate(w.apply(q, e.cfg, now)))
	}
	return out
}

// MarkSymbolStale flags the price of symbol as outdated. The last valuation is
// kept and republished with the stale flag.
func (e *Engine) MarkSymbolStale(symbol, reason string, ts int64) []schema.Update {
	e.quoteMu.Lock()
	q, ok := e.quotes[symbol]
	if !ok {
		q = Quote{Symbol: symbol}
	}
	q.Stale = true
	q.StaleReason = reason
	e.quotes[symbol] = q
	e.quoteMu.Unlock()

	ps, ws := e.dependents(symbol)
	if len(ps) == 0 && len(ws) == 0 {
		return nil
	}
	now := e.cfg.Now()
	out := make([]schema.Update, 0, len(ps)+len(ws))
	for _, p := range ps {
		out = append(out, schema.PortfolioUpdate(p.markStale(symbol, reason, e.cfg, now)))
	}
	for _, w := range ws {
		out = append(out, schema.WatchlistUpdate(w.markStale(symbol, reason, e.cfg, now)))
	}
	return out
}

// Sweep republishes views whose staleness changed because time passed.
func (e *Engine) Sweep() []schema.Update {
	e.mu.RLock()
	ps := make([]*portfolio, 0, len(e.portfolios))
	for _, p := range e.portfolios {
		ps = append(ps, p)
	}
	ws := make([]*watchlist, 0, len(e.watchlists))
	for _, w := range e.watchlists {
		ws = append(ws, w)
	}
	e.mu.RUnlock()

	now := e.cfg.Now()
	var out []schema.Update
	for _, p := range ps {
		if v, changed := p.sweep(e.cfg, now); changed {
			out = append(out, schema.PortfolioUpdate(v))
		}
	}
	for _, w := range ws {
		if v, changed := w.sweep(e.cfg, now); changed {
			out = append(out, schema.WatchlistUpdate(v))
		}
	}
	return out
}

// Recompute values a portfolio from scratch and replaces the cached valuation.
func (e *Engine) Recompute(id string) (schema.PortfolioView, error) {
	p, err := e.portfolio(id)
	if err != nil {
		return schema.PortfolioView{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revalue()
	p.version++
	return p.view(e.cfg, e.cfg.Now()), nil
}

// Portfolio returns the cached valuation of a portfolio.
func (e *Engine) Portfolio(id string) (schema.PortfolioView, error) {
	p, err := e.portfolio(id)
	if err != nil {
		return schema.PortfolioView{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view(e.cfg, e.cfg.Now()), nil
}

// Watchlist returns the cached view of a watchlist.
func (e *Engine) Watchlist(id string) (schema.WatchlistView, error) {
	w, err := e.watchlist(id)
	if err != nil {
		return schema.WatchlistView{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view(e.cfg, e.cfg.Now()), nil
}

// PortfolioSymbols returns the symbols a portfolio depends on.
func (e *Engine) PortfolioSymbols(id string) ([]string, error) {
	p, err := e.portfolio(id)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), p.order...), nil
}

// WatchlistSymbols returns the symbols of a watchlist.
func (e *Engine) WatchlistSymbols(id string) ([]string, error) {
	w, err := e.watchlist(id)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), w.order...), nil
}

// PortfolioOwner returns the owner of a portfolio.
func (e *Engine) PortfolioOwner(id string) (string, error) {
	p, err := e.portfolio(id)
	if err != nil {
		return "", err
	}
	return p.owner, nil
}

// WatchlistOwner returns the owner of a watchlist.
func (e *Engine) WatchlistOwner(id string) (string, error) {
	w, err := e.watchlist(id)
	if err != nil {
		return "", err
	}
	return w.owner, nil
}

// PortfolioIDs returns the registered portfolio IDs in order.
func (e *Engine) PortfolioIDs() []string {
	e.mu.RLock()
	out := make([]string, 0, len(e.portfolios))
	for id := range e.portfolios {
		out = append(out, id)
	}
	e.mu.RUnlock()
	sort.Strings(out)
	return out
}

// StaleAges returns the staleness age of every portfolio.
func (e *Engine) StaleAges() map[string]time.Duration {
	e.mu.RLock()
	ps := make([]*portfolio, 0, len(e.portfolios))
	for _, p := range e.portfolios {
		ps = append(ps, p)
	}
	e.mu.RUnlock()

	now := e.cfg.Now()
	out := make(map[string]time.Duration, len(ps))
	for _, p := range ps {
		p.mu.Lock()
		out[p.id] = p.staleAge(now)
		p.mu.Unlock()
	}
	return out
}

// Quote returns the last price the engine saw for symbol.
func (e *Engine) Quote(symbol string) (Quote, bool) {
	e.quoteMu.RLock()
	q, ok := e.quotes[symbol]
	e.quoteMu.RUnlock()
	return q, ok
}

func (e *Engine) portfolio(id string) (*portfolio, error) {
	e.mu.RLock()
	p, ok := e.portfolios[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", exception.ErrUnknownPortfolio, id)
	}
	return p, nil
}

func (e *Engine) watchlist(id string) (*watchlist, error) {
	e.mu.RLock()
	w, ok := e.watchlists[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", exception.ErrUnknownWatchlist, id)
	}
	return w, nil
}

func (e *Engine) dependents(symbol string) ([]*portfolio, []*watchlist) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var ps []*portfolio
	if ids := e.pBySymbol[symbol]; len(ids) > 0 {
		ps = make([]*portfolio, 0, len(ids))
		for id := range ids {
			ps = append(ps, e.portfolios[id])
		}
	}
	var ws []*watchlist
	if ids := e.wBySymbol[symbol]; len(ids) > 0 {
		ws = make([]*watchlist, 0, len(ids))
		for id := range ids {
			ws = append(ws, e.watchlists[id])
		}
	}
	return ps, ws
}

func addIndex(index map[string]map[string]struct{}, symbol, id string) {
	set, ok := index[symbol]
	if !ok {
		set = make(map[string]struct{})
		index[symbol] = set
	}
	set[id] = struct{}{}
}

func removeIndex(index map[string]map[string]struct{}, symbol, id string) {
	set, ok := index[symbol]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(index, symbol)
	}
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

var hundred = decimal.NewFromInt(100)
