package schema

import "github.com/shopspring/decimal"

const (
	portfolioTopicPrefix = "portfolio:"
	watchlistTopicPrefix = "watchlist:"
)

// PortfolioTopic is the update bus topic of a portfolio.
func PortfolioTopic(id string) string { return portfolioTopicPrefix + id }

// WatchlistTopic is the update bus topic of a watchlist.
func WatchlistTopic(id string) string { return watchlistTopicPrefix + id }

// Staleness reasons attached to views and notices.
const (
	StaleReasonGap              = "gap"
	StaleReasonFeedDegraded     = "feed_degraded"
	StaleReasonFeedDisconnected = "feed_disconnected"
	StaleReasonReseedTimeout    = "reseed_timeout"
	StaleReasonAge              = "age"
	StaleReasonNoPrice          = "no_price"
)

// IndicatorValue is the published value of one indicator.
type IndicatorValue struct {
	Name    string  `json:"name"`
	Window  int     `json:"window"`
	Value   float64 `json:"value"`
	Upper   float64 `json:"upper,omitempty"`
	Lower   float64 `json:"lower,omitempty"`
	Signal  string  `json:"signal,omitempty"`
	Samples int     `json:"samples"`
	Ready   bool    `json:"ready"`
}

// SymbolView is the published form of a symbol state.
type SymbolView struct {
	Symbol          string           `json:"symbol"`
	Version         uint64           `json:"version"`
	Seq             uint64           `json:"seq"`
	Source          uint16           `json:"source,omitempty"`
	LastPrice       decimal.Decimal  `json:"lastPrice"`
	LastEventTs     int64            `json:"lastEventTs"`
	OpenPrice       decimal.Decimal  `json:"openPrice"`
	DayHigh         decimal.Decimal  `json:"dayHigh"`
	DayLow          decimal.Decimal  `json:"dayLow"`
	Volume          decimal.Decimal  `json:"volume"`
	Indicators      []IndicatorValue `json:"indicators,omitempty"`
	IndicatorsStale bool             `json:"indicatorsStale"`
	ReseedExpired   bool             `json:"reseedExpired,omitempty"`
	Stale           bool             `json:"stale"`
	StaleReason     string           `json:"staleReason,omitempty"`
	StaleSince      int64            `json:"staleSince,omitempty"`
}

// ChangePct returns the change from the open price in percent.
func (v SymbolView) ChangePct() float64 {
	if v.OpenPrice.IsZero() {
		return 0
	}
	return v.LastPrice.Sub(v.OpenPrice).Div(v.OpenPrice).InexactFloat64() * 100
}

// PositionView is the valued form of one position.
type PositionView struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	CostBasis     decimal.Decimal `json:"costBasis"`
	LastPrice     decimal.Decimal `json:"lastPrice"`
	MarketValue   decimal.Decimal `json:"marketValue"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	Weight        float64         `json:"weight"`
	LastEventTs   int64           `json:"lastEventTs"`
	Priced        bool            `json:"priced"`
	Stale         bool            `json:"stale"`
}

// PortfolioView is the published valuation of a portfolio.
type PortfolioView struct {
	ID            string          `json:"id"`
	Owner         string          `json:"owner"`
	Version       uint64          `json:"version"`
	Valuation     decimal.Decimal `json:"valuation"`
	CostBasis     decimal.Decimal `json:"costBasis"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	Peak          decimal.Decimal `json:"peak"`
	MaxDrawdown   float64         `json:"maxDrawdown"`
	Positions     []PositionView  `json:"positions"`
	Stale         bool            `json:"stale"`
	StaleReason   string          `json:"staleReason,omitempty"`
	StaleAgeMs    int64           `json:"staleAgeMs"`
	AsOf          int64           `json:"asOf"`
}

// WatchlistEntry is one symbol row of a watchlist.
type WatchlistEntry struct {
	Symbol      string          `json:"symbol"`
	LastPrice   decimal.Decimal `json:"lastPrice"`
	ChangePct   float64         `json:"changePct"`
	LastEventTs int64           `json:"lastEventTs"`
	Priced      bool            `json:"priced"`
	Stale       bool            `json:"stale"`
}

// WatchlistView is the published form of a watchlist.
type WatchlistView struct {
	ID         string           `json:"id"`
	Owner      string           `json:"owner"`
	Version    uint64           `json:"version"`
	Entries    []WatchlistEntry `json:"entries"`
	Stale      bool             `json:"stale"`
	StaleAgeMs int64            `json:"staleAgeMs"`
	AsOf       int64            `json:"asOf"`
}

// StalenessNotice tells consumers that the data behind a key may be stale.
type StalenessNotice struct {
	Key    string `json:"key"`
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
	Since  int64  `json:"since"`
}

// UpdateKind tags the variant carried by an Update.
type UpdateKind uint8

const (
	UpdateUnknown UpdateKind = iota
	UpdateSymbol
	UpdatePortfolio
	UpdateWatchlist
	UpdateStaleness
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateSymbol:
		return "symbol"
	case UpdatePortfolio:
		return "portfolio"
	case UpdateWatchlist:
		return "watchlist"
	case UpdateStaleness:
		return "staleness"
	default:
		return "unknown"
	}
}

// Update is the unit routed through the update bus to the subscription manager.
type Update struct {
	Kind      UpdateKind
	Key       string
	Symbol    *SymbolView
	Portfolio *PortfolioView
	Watchlist *WatchlistView
	Staleness *StalenessNotice
}

// Version returns the ordering key of the update payload.
func (u Update) Version() uint64 {
	switch u.Kind {
	case UpdateSymbol:
		if u.Symbol != nil {
			return u.Symbol.Version
		}
	case UpdatePortfolio:
		if u.Portfolio != nil {
			return u.Portfolio.Version
		}
	case UpdateWatchlist:
		if u.Watchlist != nil {
			return u.Watchlist.Version
		}
	}
	return 0
}

// SymbolUpdate wraps a symbol view.
func SymbolUpdate(v SymbolView) Update {
	return Update{Kind: UpdateSymbol, Key: v.Symbol, Symbol: &v}
}

// PortfolioUpdate wraps a portfolio view.
func PortfolioUpdate(v PortfolioView) Update {
	return Update{Kind: UpdatePortfolio, Key: PortfolioTopic(v.ID), Portfolio: &v}
}

// WatchlistUpdate wraps a watchlist view.
func WatchlistUpdate(v WatchlistView) Update {
	return Update{Kind: UpdateWatchlist, Key: WatchlistTopic(v.ID), Watchlist: &v}
}

// StalenessUpdate wraps a staleness notice for a symbol.
func StalenessUpdate(n StalenessNotice) Update {
	if n.Key == "" {
		n.Key = n.Symbol
	}
	return Update{Kind: UpdateStaleness, Key: n.Key, Staleness: &n}
}
