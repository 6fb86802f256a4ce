package valuation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// Repository is the source of portfolio and watchlist ownership.
type Repository interface {
	Portfolios(ctx context.Context) ([]Portfolio, error)
	Watchlists(ctx context.Context) ([]Watchlist, error)
	SavePortfolio(ctx context.Context, p Portfolio) error
	SaveWatchlist(ctx context.Context, w Watchlist) error
	DeletePortfolio(ctx context.Context, id string) error
	DeleteWatchlist(ctx context.Context, id string) error
}

// Load registers every portfolio and watchlist of repo in engine. Entries
// the engine rejects are logged and skipped.
func Load(ctx context.Context, repo Repository, engine *Engine) (int, error) {
	portfolios, err := repo.Portfolios(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load portfolios")
	}
	watchlists, err := repo.Watchlists(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load watchlists")
	}

	var n int
	for _, p := range portfolios {
		if _, err := engine.AddPortfolio(p); err != nil {
			logs.Warnf("valuation: skip portfolio %s, err: %+v", p.ID, err)
			continue
		}
		n++
	}
	for _, w := range watchlists {
		if _, err := engine.AddWatchlist(w); err != nil {
			logs.Warnf("valuation: skip watchlist %s, err: %+v", w.ID, err)
			continue
		}
		n++
	}
	return n, nil
}

// MemoryRepository keeps portfolios and watchlists in memory.
type MemoryRepository struct {
	mu         sync.RWMutex
	portfolios map[string]Portfolio
	watchlists map[string]Watchlist
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		portfolios: make(map[string]Portfolio),
		watchlists: make(map[string]Watchlist),
	}
}

func (r *MemoryRepository) Portfolios(_ context.Context) ([]Portfolio, error) {
	r.mu.RLock()
	out := make([]Portfolio, 0, len(r.portfolios))
	for _, p := range r.portfolios {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) Watchlists(_ context.Context) ([]Watchlist, error) {
	r.mu.RLock()
	out := make([]Watchlist, 0, len(r.watchlists))
	for _, w := range r.watchlists {
		out = append(out, w)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) SavePortfolio(_ context.Context, p Portfolio) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Positions = append([]Position(nil), p.Positions...)
	r.mu.Lock()
	r.portfolios[p.ID] = p
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) SaveWatchlist(_ context.Context, w Watchlist) error {
	if err := w.Validate(); err != nil {
		return err
	}
	w.Symbols = append([]string(nil), w.Symbols...)
	r.mu.Lock()
	r.watchlists[w.ID] = w
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) DeletePortfolio(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.portfolios[id]; !ok {
		return fmt.Errorf("%w: %s", exception.ErrUnknownPortfolio, id)
	}
	delete(r.portfolios, id)
	return nil
}

func (r *MemoryRepository) DeleteWatchlist(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.watchlists[id]; !ok {
		return fmt.Errorf("%w: %s", exception.ErrUnknownWatchlist, id)
	}
	delete(r.watchlists, id)
	return nil
}
