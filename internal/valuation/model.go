package valuation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// Position is a holding of one symbol. CostBasis is the total paid.
type Position struct {
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	CostBasis decimal.Decimal `json:"costBasis"`
}

// NewPosition builds a position from an average cost per unit.
func NewPosition(symbol string, quantity, avgCost decimal.Decimal) Position {
	return Position{
		Symbol:    symbol,
		Quantity:  quantity,
		CostBasis: quantity.Mul(avgCost),
	}
}

// Portfolio is a set of positions owned by a user.
type Portfolio struct {
	ID        string     `json:"id"`
	Owner     string     `json:"owner"`
	Positions []Position `json:"positions"`
}

// Symbols returns the distinct symbols of the portfolio in first-seen order.
func (p Portfolio) Symbols() []string {
	seen := make(map[string]struct{}, len(p.Positions))
	out := make([]string, 0, len(p.Positions))
	for _, pos := range p.Positions {
		if _, ok := seen[pos.Symbol]; ok {
			continue
		}
		seen[pos.Symbol] = struct{}{}
		out = append(out, pos.Symbol)
	}
	return out
}

// Validate checks identifiers and quantities.
func (p Portfolio) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: portfolio id is empty", exception.ErrInvalidArgument)
	}
	for _, pos := range p.Positions {
		if pos.Symbol == "" {
			return fmt.Errorf("%w: portfolio %s has a position without symbol", exception.ErrInvalidPosition, p.ID)
		}
		if pos.Quantity.IsZero() {
			return fmt.Errorf("%w: portfolio %s position %s has zero quantity", exception.ErrInvalidPosition, p.ID, pos.Symbol)
		}
	}
	return nil
}

// Watchlist is an ordered list of symbols followed by a user.
type Watchlist struct {
	ID      string   `json:"id"`
	Owner   string   `json:"owner"`
	Symbols []string `json:"symbols"`
}

// Validate checks identifiers.
func (w Watchlist) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("%w: watchlist id is empty", exception.ErrInvalidArgument)
	}
	for _, s := range w.Symbols {
		if s == "" {
			return fmt.Errorf("%w: watchlist %s has an empty symbol", exception.ErrInvalidArgument, w.ID)
		}
	}
	return nil
}

// Quote is the last price of a symbol as seen by the valuation engine.
type Quote struct {
	Symbol      string
	Price       decimal.Decimal
	Open        decimal.Decimal
	Seq         uint64
	Ts          int64
	Stale       bool
	StaleReason string
}
