package subscription

import (
	"context"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

// Envelope types sent to clients.
const (
	TypeSymbolUpdate    = "symbol_update"
	TypePortfolioUpdate = "portfolio_valuation_update"
	TypeWatchlistUpdate = "watchlist_update"
	TypeStalenessNotice = "staleness_notice"
)

// Envelope is one message delivered to a session. Seq increases by one per
// enqueued envelope, so a hole tells the client that older envelopes were dropped.
type Envelope struct {
	Type     string `json:"type"`
	Key      string `json:"key"`
	Seq      uint64 `json:"seq"`
	Ts       int64  `json:"ts"`
	Snapshot bool   `json:"snapshot,omitempty"`
	Payload  any    `json:"payload"`
}

// Transport pushes envelopes to one client. Send may block; it only stalls
// the session that owns the transport.
type Transport interface {
	Send(ctx context.Context, env Envelope) error
	Close() error
}

func envelopeOf(u schema.Update) (Envelope, bool) {
	env := Envelope{Key: u.Key}
	switch u.Kind {
	case schema.UpdateSymbol:
		env.Type, env.Payload = TypeSymbolUpdate, u.Symbol
	case schema.UpdatePortfolio:
		env.Type, env.Payload = TypePortfolioUpdate, u.Portfolio
	case schema.UpdateWatchlist:
		env.Type, env.Payload = TypeWatchlistUpdate, u.Watchlist
	case schema.UpdateStaleness:
		env.Type, env.Payload = TypeStalenessNotice, u.Staleness
	default:
		return Envelope{}, false
	}
	return env, true
}
