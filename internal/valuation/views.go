package valuation

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

func (q Quote) priced() bool {
	return q.Seq > 0 || q.Ts > 0
}

// holding is the valued state of one symbol inside a view.
type holding struct {
	qty    decimal.Decimal
	cost   decimal.Decimal
	price  decimal.Decimal
	open   decimal.Decimal
	priced bool
	ts     int64
	stale  bool
	reason string
}

func (h *holding) setQuote(q Quote) {
	h.stale = q.Stale
	h.reason = q.StaleReason
	if !q.priced() {
		return
	}
	h.price = q.Price
	h.open = q.Open
	h.priced = true
	h.ts = q.Ts
}

// staleness ranks why a holding is stale. Zero means fresh.
func (h *holding) staleness(cfg Config, now time.Time) (int, string) {
	switch {
	case h.stale:
		return 3, h.reason
	case !h.priced:
		return 2, schema.StaleReasonNoPrice
	case now.UnixNano()-h.ts > int64(cfg.StalenessBound):
		return 1, schema.StaleReasonAge
	default:
		return 0, ""
	}
}

type staleSummary struct {
	stale  bool
	reason string
	rank   int
	oldest int64
}

func (s *staleSummary) add(h *holding, cfg Config, now time.Time) bool {
	rank, reason := h.staleness(cfg, now)
	if rank > s.rank {
		s.rank = rank
		s.reason = reason
	}
	if h.priced && (s.oldest == 0 || h.ts < s.oldest) {
		s.oldest = h.ts
	}
	s.stale = s.rank > 0
	return rank > 0
}

func (s *staleSummary) ageMs(now time.Time) int64 {
	if s.oldest == 0 {
		return 0
	}
	return max(0, (now.UnixNano()-s.oldest)/int64(time.Millisecond))
}

type portfolio struct {
	mu          sync.Mutex
	id          string
	owner       string
	order       []string
	positions   map[string]*holding
	valuation   decimal.Decimal
	costBasis   decimal.Decimal
	peak        decimal.Decimal
	maxDrawdown float64
	version     uint64
	lastStale   bool
}

func newPortfolio(p Portfolio) *portfolio {
	ps := &portfolio{
		id:        p.ID,
		owner:     p.Owner,
		positions: make(map[string]*holding, len(p.Positions)),
	}
	for _, pos := range p.Positions {
		h, ok := ps.positions[pos.Symbol]
		if !ok {
			h = &holding{}
			ps.positions[pos.Symbol] = h
			ps.order = append(ps.order, pos.Symbol)
		}
		h.qty = h.qty.Add(pos.Quantity)
		h.cost = h.cost.Add(pos.CostBasis)
	}
	return ps
}

// revalue computes the valuation from scratch. Caller holds mu or owns p.
func (p *portfolio) revalue() {
	p.valuation = decimal.Zero
	p.costBasis = decimal.Zero
	for _, sym := range p.order {
		h := p.positions[sym]
		p.costBasis = p.costBasis.Add(h.cost)
		if h.priced {
			p.valuation = p.valuation.Add(h.qty.Mul(h.price))
		}
	}
	p.trackDrawdown()
}

func (p *portfolio) fullyPriced() bool {
	for _, h := range p.positions {
		if !h.priced {
			return false
		}
	}
	return true
}

func (p *portfolio) trackDrawdown() {
	if !p.fullyPriced() {
		return
	}
	if p.valuation.GreaterThan(p.peak) {
		p.peak = p.valuation
		return
	}
	if !p.peak.IsPositive() {
		return
	}
	dd := p.peak.Sub(p.valuation).Div(p.peak).InexactFloat64()
	p.maxDrawdown = max(p.maxDrawdown, dd)
}

func (p *portfolio) apply(q Quote, cfg Config, now time.Time) schema.PortfolioView {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.positions[q.Symbol]; ok && q.priced() {
		old := decimal.Zero
		if h.priced {
			old = h.price
		}
		p.valuation = p.valuation.Add(h.qty.Mul(q.Price.Sub(old)))
		h.setQuote(q)
		p.trackDrawdown()
	}
	p.version++
	return p.view(cfg, now)
}

func (p *portfolio) markStale(symbol, reason string, cfg Config, now time.Time) schema.PortfolioView {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.positions[symbol]; ok {
		h.stale = true
		h.reason = reason
	}
	p.version++
	return p.view(cfg, now)
}

func (p *portfolio) sweep(cfg Config, now time.Time) (schema.PortfolioView, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var sum staleSummary
	for _, h := range p.positions {
		sum.add(h, cfg, now)
	}
	if sum.stale == p.lastStale {
		return schema.PortfolioView{}, false
	}
	p.version++
	return p.view(cfg, now), true
}

func (p *portfolio) staleAge(now time.Time) time.Duration {
	var oldest int64
	for _, h := range p.positions {
		if h.priced && (oldest == 0 || h.ts < oldest) {
			oldest = h.ts
		}
	}
	if oldest == 0 {
		return 0
	}
	return max(0, time.Duration(now.UnixNano()-oldest))
}

// view builds the published valuation. Caller holds mu.
func (p *portfolio) view(cfg Config, now time.Time) schema.PortfolioView {
	v := schema.PortfolioView{
		ID:            p.id,
		Owner:         p.owner,
		Version:       p.version,
		Valuation:     p.valuation,
		CostBasis:     p.costBasis,
		UnrealizedPnL: p.valuation.Sub(p.costBasis),
		Peak:          p.peak,
		MaxDrawdown:   p.maxDrawdown,
		Positions:     make([]schema.PositionView, 0, len(p.order)),
		AsOf:          now.UnixNano(),
	}
	var sum staleSummary
	for _, sym := range p.order {
		h := p.positions[sym]
		pv := schema.PositionView{
			Symbol:      sym,
			Quantity:    h.qty,
			CostBasis:   h.cost,
			LastPrice:   h.price,
			LastEventTs: h.ts,
			Priced:      h.priced,
		}
		if h.priced {
			pv.MarketValue = h.qty.Mul(h.price)
			pv.UnrealizedPnL = pv.MarketValue.Sub(h.cost)
			if !p.valuation.IsZero() {
				pv.Weight = pv.MarketValue.Div(p.valuation).InexactFloat64()
			}
		}
		pv.Stale = sum.add(h, cfg, now)
		v.Positions = append(v.Positions, pv)
	}
	v.Stale = sum.stale
	v.StaleReason = sum.reason
	v.StaleAgeMs = sum.ageMs(now)
	p.lastStale = v.Stale
	return v
}

type watchlist struct {
	mu        sync.Mutex
	id        string
	owner     string
	order     []string
	entries   map[string]*holding
	version   uint64
	lastStale bool
}

func newWatchlist(id, owner string, symbols []string) *watchlist {
	w := &watchlist{
		id:      id,
		owner:   owner,
		order:   symbols,
		entries: make(map[string]*holding, len(symbols)),
	}
	for _, s := range symbols {
		w.entries[s] = &holding{}
	}
	return w
}

func (w *watchlist) apply(q Quote, cfg Config, now time.Time) schema.WatchlistView {
	w.mu.Lock()
	defer w.mu.Unlock()
	if h, ok := w.entries[q.Symbol]; ok {
		h.setQuote(q)
	}
	w.version++
	return w.view(cfg, now)
}

func (w *watchlist) markStale(symbol, reason string, cfg Config, now time.Time) schema.WatchlistView {
	w.mu.Lock()
	defer w.mu.Unlock()
	if h, ok := w.entries[symbol]; ok {
		h.stale = true
		h.reason = reason
	}
	w.version++
	return w.view(cfg, now)
}

func (w *watchlist) sweep(cfg Config, now time.Time) (schema.WatchlistView, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var sum staleSummary
	for _, h := range w.entries {
		sum.add(h, cfg, now)
	}
	if sum.stale == w.lastStale {
		return schema.WatchlistView{}, false
	}
	w.version++
	return w.view(cfg, now), true
}

// view builds the published watchlist. Caller holds mu.
func (w *watchlist) view(cfg Config, now time.Time) schema.WatchlistView {
	v := schema.WatchlistView{
		ID:      w.id,
		Owner:   w.owner,
		Version: w.version,
		Entries: make([]schema.WatchlistEntry, 0, len(w.order)),
		AsOf:    now.UnixNano(),
	}
	var sum staleSummary
	for _, sym := range w.order {
		h := w.entries[sym]
		e := schema.WatchlistEntry{
			Symbol:      sym,
			LastPrice:   h.price,
			LastEventTs: h.ts,
			Priced:      h.priced,
		}
		if h.priced && !h.open.IsZero() {
			e.ChangePct = h.price.Sub(h.open).Div(h.open).Mul(hundred).InexactFloat64()
		}
		e.Stale = sum.add(h, cfg, now)
		v.Entries = append(v.Entries, e)
	}
	v.Stale = sum.stale
	v.StaleAgeMs = sum.ageMs(now)
	w.lastStale = v.Stale
	return v
}
