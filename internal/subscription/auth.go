package subscription

import (
	"context"
	"fmt"

	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// ViewKind is the kind of view a session opens.
type ViewKind uint8

const (
	ViewSymbols ViewKind = iota + 1
	ViewPortfolio
	ViewWatchlist
)

func (k ViewKind) String() string {
	switch k {
	case ViewSymbols:
		return "symbols"
	case ViewPortfolio:
		return "portfolio"
	case ViewWatchlist:
		return "watchlist"
	default:
		return "unknown"
	}
}

// Views resolves the symbols and owners of portfolios and watchlists.
type Views interface {
	PortfolioSymbols(id string) ([]string, error)
	WatchlistSymbols(id string) ([]string, error)
	PortfolioOwner(id string) (string, error)
	WatchlistOwner(id string) (string, error)
}

// Authorizer decides whether owner may open a view.
type Authorizer interface {
	Authorize(ctx context.Context, owner string, kind ViewKind, id string) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, owner string, kind ViewKind, id string) error

func (f AuthorizerFunc) Authorize(ctx context.Context, owner string, kind ViewKind, id string) error {
	return f(ctx, owner, kind, id)
}

// OwnerAuthorizer allows a portfolio or watchlist to be opened by its owner.
// Entries without an owner are public. Symbols are always allowed.
type OwnerAuthorizer struct {
	Views Views
}

func (a OwnerAuthorizer) Authorize(_ context.Context, owner string, kind ViewKind, id string) error {
	var (
		want string
		err  error
	)
	switch kind {
	case ViewSymbols:
		return nil
	case ViewPortfolio:
		want, err = a.Views.PortfolioOwner(id)
	case ViewWatchlist:
		want, err = a.Views.WatchlistOwner(id)
	default:
		return fmt.Errorf("%w: %d", exception.ErrUnknownView, kind)
	}
	if err != nil {
		return err
	}
	if want != "" && want != owner {
		return fmt.Errorf("%w: %s %s is not owned by %s", exception.ErrUnauthorized, kind, id, owner)
	}
	return nil
}
