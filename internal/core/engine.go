package core

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/bus"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/obs"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/recorder"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/snapshot"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/valuation"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// FeedStatus is the last adapter-wide connectivity notice of one feed.
type FeedStatus struct {
	AdapterID string    `json:"adapterId"`
	State     string    `json:"state"`
	Since     time.Time `json:"since"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder appends every ingress message to w.
func WithRecorder(w *recorder.Writer) Option {
	return func(e *Engine) {
		e.wal = w
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *obs.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRepository persists portfolio and watchlist changes made through the engine.
func WithRepository(r valuation.Repository) Option {
	return func(e *Engine) {
		e.repo = r
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine routes ingress messages to lanes and publishes the resulting views.
type Engine struct {
	cfg     Config
	reg     *schema.Registry
	ingress *bus.Bus[schema.Message]
	updates *bus.Bus[schema.Update]
	values  *valuation.Engine
	store   *snapshot.Store
	repo    valuation.Repository
	wal     *recorder.Writer
	metrics *obs.Metrics
	now     func() time.Time
	lanes   []*lane
	running atomic.Bool

	feedMu sync.RWMutex
	feeds  map[string]FeedStatus
}

// New builds an engine. Lanes subscribe immediately, so messages published
// before Run are queued.
func New(cfg Config, reg *schema.Registry, values *valuation.Engine, store *snapshot.Store, opts ...Option) (*Engine, error) {
	if reg == nil || values == nil || store == nil {
		return nil, fmt.Errorf("%w: registry, valuation engine and store are required", exception.ErrNilInstance)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		reg:    reg,
		values: values,
		store:  store,
		now:    time.Now,
		feeds:  make(map[string]FeedStatus),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.ingress = bus.New[schema.Message](bus.WithDropFunc(func(topic, subscriber string) {
		e.metrics.IncIngressDrop()
	}))
	e.updates = bus.New[schema.Update](bus.WithDropFunc(func(topic, subscriber string) {
		e.metrics.IncUpdateDrop()
	}))

	e.lanes = make([]*lane, cfg.Lanes)
	for i := range e.lanes {
		l, err := newLane(e, i)
		if err != nil {
			return nil, err
		}
		e.lanes[i] = l
	}
	return e, nil
}

// Updates is the bus carrying every published view.
func (e *Engine) Updates() *bus.Bus[schema.Update] { return e.updates }

// Valuation returns the valuation engine.
func (e *Engine) Valuation() *valuation.Engine { return e.values }

// Store returns the snapshot store.
func (e *Engine) Store() *snapshot.Store { return e.store }

// Registry returns the symbol registry.
func (e *Engine) Registry() *schema.Registry { return e.reg }

// Publish accepts one message from a feed adapter. It never blocks.
func (e *Engine) Publish(msg schema.Message) {
	e.metrics.ObserveMessage(msg)
	if e.wal != nil {
		if err := e.wal.TryAppend(msg); err != nil {
			e.metrics.IncWALRejected()
		}
	}
	e.route(msg)
}

func (e *Engine) route(msg schema.Message) {
	symbol := msg.Symbol()
	if symbol == "" {
		if msg.Kind == schema.MessageConnectivity {
			e.setFeed(msg.Connectivity)
		}
		return
	}
	e.ingress.Publish(symbol, msg)
}

func (e *Engine) setFeed(c schema.Connectivity) {
	e.feedMu.Lock()
	prev, ok := e.feeds[c.AdapterID]
	e.feeds[c.AdapterID] = FeedStatus{AdapterID: c.AdapterID, State: c.State.String(), Since: time.Unix(0, c.Ts).UTC()}
	e.feedMu.Unlock()
	if !ok || prev.State != c.State.String() {
		logs.Infof("core: feed %s is %s", c.AdapterID, c.State)
	}
}

// Feeds returns the adapter-wide status of every feed, ordered by id.
func (e *Engine) Feeds() []FeedStatus {
	e.feedMu.RLock()
	out := make([]FeedStatus, 0, len(e.feeds))
	for _, f := range e.feeds {
		out = append(out, f)
	}
	e.feedMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].AdapterID < out[j].AdapterID })
	return out
}

// Run processes messages until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("core engine: %w", exception.ErrAlreadyRunning)
	}
	defer e.running.Store(false)

	g, ctx := errgroup.WithContext(ctx)
	for _, l := range e.lanes {
		g.Go(func() error { return l.run(ctx) })
	}
	g.Go(func() error { return e.sweep(ctx) })
	if e.cfg.SnapshotPath != "" {
		g.Go(func() error { return e.snapshotLoop(ctx) })
	}
	logs.Infof("core: running with %d lanes", len(e.lanes))
	return g.Wait()
}

// Close stops the buses. Run returns once ctx is done.
func (e *Engine) Close() {
	e.ingress.Close()
	e.updates.Close()
}

func (e *Engine) sweep(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.emit(e.values.Sweep()...)
		}
	}
}

func (e *Engine) snapshotLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := e.WriteSnapshot(); err != nil {
				logs.Errorf("core: final snapshot, err: %+v", err)
			}
			return nil
		case <-ticker.C:
			if err := e.WriteSnapshot(); err != nil {
				logs.Warnf("core: snapshot, err: %+v", err)
			}
		}
	}
}

// WriteSnapshot exports the store to the configured snapshot path.
func (e *Engine) WriteSnapshot() error {
	if e.cfg.SnapshotPath == "" {
		return nil
	}
	f := e.store.Export()
	f.Timestamp = e.now().UTC().UnixNano()
	return snapshot.WriteFile(e.cfg.SnapshotPath, f)
}

// emit stores each update and publishes the ones the store accepted.
// A rejected write is older than what subscribers already have.
func (e *Engine) emit(updates ...schema.Update) {
	for _, u := range updates {
		if err := e.store.Put(u); err != nil {
			continue
		}
		e.metrics.ObserveUpdate(u.Kind)
		e.updates.Publish(u.Key, u)
	}
}

// AddPortfolio registers p, persists it and publishes its first valuation.
func (e *Engine) AddPortfolio(ctx context.Context, p valuation.Portfolio) (schema.PortfolioView, error) {
	view, err := e.values.AddPortfolio(p)
	if err != nil {
		return schema.PortfolioView{}, err
	}
	if e.repo != nil {
		if err := e.repo.SavePortfolio(ctx, p); err != nil {
			_ = e.values.RemovePortfolio(p.ID)
			return schema.PortfolioView{}, err
		}
	}
	e.emit(schema.PortfolioUpdate(view))
	return view, nil
}

// RemovePortfolio unregisters a portfolio.
func (e *Engine) RemovePortfolio(ctx context.Context, id string) error {
	if err := e.values.RemovePortfolio(id); err != nil {
		return err
	}
	e.store.DeletePortfolio(id)
	if e.repo != nil {
		return e.repo.DeletePortfolio(ctx, id)
	}
	return nil
}

// AddWatchlist registers w, persists it and publishes its first view.
func (e *Engine) AddWatchlist(ctx context.Context, w valuation.Watchlist) (schema.WatchlistView, error) {
	view, err := e.values.AddWatchlist(w)
	if err != nil {
		return schema.WatchlistView{}, err
	}
	if e.repo != nil {
		if err := e.repo.SaveWatchlist(ctx, w); err != nil {
			_ = e.values.RemoveWatchlist(w.ID)
			return schema.WatchlistView{}, err
		}
	}
	e.emit(schema.WatchlistUpdate(view))
	return view, nil
}

// RemoveWatchlist unregisters a watchlist.
func (e *Engine) RemoveWatchlist(ctx context.Context, id string) error {
	if err := e.values.RemoveWatchlist(id); err != nil {
		return err
	}
	e.store.DeleteWatchlist(id)
	if e.repo != nil {
		return e.repo.DeleteWatchlist(ctx, id)
	}
	return nil
}

func (e *Engine) laneOf(symbol string) *lane {
	return e.lanes[shard(symbol, len(e.lanes))]
}

func shard(symbol string, lanes int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(lanes))
}
