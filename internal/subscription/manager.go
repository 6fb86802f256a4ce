package subscription

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/bus"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/obs"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

const (
	DefaultQueueDepth = 256
	DefaultMaxSymbols = 1000
	DefaultTopicQueue = 1024
)

// Snapshots serves the last known view of a key.
type Snapshots interface {
	Symbol(symbol string) (schema.SymbolView, bool)
	Portfolio(id string) (schema.PortfolioView, bool)
	Watchlist(id string) (schema.WatchlistView, bool)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithAuthorizer replaces the default OwnerAuthorizer.
func WithAuthorizer(a Authorizer) Option {
	return func(m *Manager) {
		if a != nil {
			m.auth = a
		}
	}
}

// WithQueueDepth sets the outbound queue size of each session.
func WithQueueDepth(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.queueDepth = n
		}
	}
}

// WithMaxSymbols caps the distinct symbols one session may need.
func WithMaxSymbols(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxSymbols = n
		}
	}
}

// WithTopicQueue sets the bus queue size of each topic subscription.
func WithTopicQueue(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.topicQueue = n
		}
	}
}

func WithMetrics(metrics *obs.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

type topic struct {
	name     string
	sub      *bus.Subscription[schema.Update]
	sessions map[*Session]struct{}
}

// Manager maps client sessions to update bus topics. A topic stays subscribed
// on the bus while at least one session needs it.
type Manager struct {
	updates *bus.Bus[schema.Update]
	snaps   Snapshots
	views   Views
	auth    Authorizer
	metrics *obs.Metrics
	now     func() time.Time

	queueDepth int
	maxSymbols int
	topicQueue int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	topics   map[string]*topic
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a manager reading from the updates bus.
func NewManager(updates *bus.Bus[schema.Update], snaps Snapshots, views Views, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		updates:    updates,
		snaps:      snaps,
		views:      views,
		auth:       OwnerAuthorizer{Views: views},
		now:        time.Now,
		queueDepth: DefaultQueueDepth,
		maxSymbols: DefaultMaxSymbols,
		topicQueue: DefaultTopicQueue,
		ctx:        ctx,
		cancel:     cancel,
		topics:     make(map[string]*topic),
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open registers a session for owner. The session starts Idle.
func (m *Manager) Open(ctx context.Context, owner string, transport Transport) (*Session, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: transport is nil", exception.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(m.ctx)
	s := &Session{
		id:        uuid.NewString(),
		owner:     owner,
		transport: transport,
		queue:     bus.NewQueue[Envelope](m.queueDepth),
		cancel:    cancel,
		done:      make(chan struct{}),
		now:       m.now,
		state:     StateIdle,
		views:     make(map[viewKey][]string),
		topics:    make(map[string]int),
		symbols:   make(map[string]int),
		degraded:  make(map[string]struct{}),
		versions:  make(map[string]uint64),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil, exception.ErrManagerClosed
	}
	m.sessions[s.id] = s
	m.mu.Unlock()

	go s.write(sctx, func(err error) {
		logs.Warnf("subscription: session %s send failed, err: %+v", s.id, err)
		_ = m.Disconnect(s.id)
	})
	logs.Infof("subscription: session %s opened for %q", s.id, owner)
	return s, nil
}

// OpenPortfolio subscribes the session to a portfolio and every symbol it holds.
func (m *Manager) OpenPortfolio(ctx context.Context, sessionID, id string) error {
	s, err := m.session(sessionID)
	if err != nil {
		return err
	}
	if err := m.auth.Authorize(ctx, s.owner, ViewPortfolio, id); err != nil {
		return err
	}
	symbols, err := m.views.PortfolioSymbols(id)
	if err != nil {
		return err
	}
	return m.openView(s, viewKey{kind: ViewPortfolio, id: id}, append([]string{schema.PortfolioTopic(id)}, symbols...))
}

// OpenWatchlist subscribes the session to a watchlist and its symbols.
func (m *Manager) OpenWatchlist(ctx context.Context, sessionID, id string) error {
	s, err := m.session(sessionID)
	if err != nil {
		return err
	}
	if err := m.auth.Authorize(ctx, s.owner, ViewWatchlist, id); err != nil {
		return err
	}
	symbols, err := m.views.WatchlistSymbols(id)
	if err != nil {
		return err
	}
	return m.openView(s, viewKey{kind: ViewWatchlist, id: id}, append([]string{schema.WatchlistTopic(id)}, symbols...))
}

// WatchSymbols subscribes the session to individual symbols. Each symbol is
// its own view and is closed with CloseView(ViewSymbols, symbol).
func (m *Manager) WatchSymbols(ctx context.Context, sessionID string, symbols ...string) error {
	s, err := m.session(sessionID)
	if err != nil {
		return err
	}
	symbols = slices.Compact(slices.Sorted(slices.Values(symbols)))
	for _, symbol := range symbols {
		if symbol == "" {
			return fmt.Errorf("%w: empty symbol", exception.ErrInvalidArgument)
		}
		if err := m.auth.Authorize(ctx, s.owner, ViewSymbols, symbol); err != nil {
			return err
		}
	}

	s.mu.Lock()
	var fresh []string
	for _, symbol := range symbols {
		if _, ok := s.views[viewKey{kind: ViewSymbols, id: symbol}]; !ok {
			fresh = append(fresh, symbol)
		}
	}
	need := len(s.symbols) + s.newSymbols(fresh)
	s.mu.Unlock()
	if need > m.maxSymbols {
		return &exception.CapacityExceededError{Scope: "session", Key: s.id, Limit: m.maxSymbols, Requested: need}
	}

	for _, symbol := range fresh {
		if err := m.openView(s, viewKey{kind: ViewSymbols, id: symbol}, []string{symbol}); err != nil {
			return err
		}
	}
	return nil
}

// CloseView releases one view. Topics still needed by another view of the
// session, or by another session, stay subscribed.
func (m *Manager) CloseView(sessionID string, kind ViewKind, id string) error {
	s, err := m.session(sessionID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s.mu.Lock()
	released, ok := s.removeView(viewKey{kind: kind, id: id})
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s %s is not open", exception.ErrUnknownView, kind, id)
	}
	for _, name := range released {
		m.release(name, s)
	}
	return nil
}

// Disconnect tears the session down. Its queue is discarded immediately and
// the transport is closed.
func (m *Manager) Disconnect(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", exception.ErrUnknownSession, sessionID)
	}
	delete(m.sessions, sessionID)
	s.mu.Lock()
	for name := range s.topics {
		m.release(name, s)
	}
	clear(s.views)
	clear(s.topics)
	clear(s.symbols)
	clear(s.degraded)
	s.state, _ = transition(s.state, StateIdle)
	s.mu.Unlock()
	m.mu.Unlock()

	s.queue.Close()
	s.cancel()
	if err := s.transport.Close(); err != nil {
		logs.Warnf("subscription: close transport of session %s, err: %+v", sessionID, err)
	}
	logs.Infof("subscription: session %s disconnected", sessionID)
	return nil
}

// RefCount returns how many sessions need topic.
func (m *Manager) RefCount(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.topics[topic]; ok {
		return len(t.sessions)
	}
	return 0
}

// Topics returns the topics currently subscribed on the bus.
func (m *Manager) Topics() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.topics))
}

// Session returns a registered session.
func (m *Manager) Session(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Sessions returns the registered sessions ordered by id.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	out := slices.Collect(maps.Values(m.sessions))
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Session) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return out
}

// Close disconnects every session and waits for the topic pumps to stop.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	ids := slices.Collect(maps.Keys(m.sessions))
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.Disconnect(id)
	}
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) session(id string) (*Session, error) {
	s, ok := m.Session(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", exception.ErrUnknownSession, id)
	}
	return s, nil
}

func (m *Manager) openView(s *Session, key viewKey, topics []string) error {
	topics = dedupe(topics)

	m.mu.Lock()
	if _, ok := m.sessions[s.id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", exception.ErrSessionClosed, s.id)
	}
	s.mu.Lock()
	if _, ok := s.views[key]; ok {
		s.mu.Unlock()
		m.mu.Unlock()
		return nil
	}
	if need := len(s.symbols) + s.newSymbols(topics); need > m.maxSymbols {
		s.mu.Unlock()
		m.mu.Unlock()
		return &exception.CapacityExceededError{Scope: "session", Key: s.id, Limit: m.maxSymbols, Requested: need}
	}
	added := s.addView(key, topics)
	var err error
	for i, name := range added {
		if err = m.acquire(name, s); err != nil {
			for _, prev := range added[:i] {
				m.release(prev, s)
			}
			break
		}
	}
	if err != nil {
		_, _ = s.removeView(key)
	}
	s.mu.Unlock()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	for _, name := range topics {
		if u, ok := m.snapshot(name); ok {
			if !s.deliver(u, true) {
				m.metrics.IncSessionDrop()
			}
		}
	}
	return nil
}

func (m *Manager) snapshot(name string) (schema.Update, bool) {
	if m.snaps == nil {
		return schema.Update{}, false
	}
	if !isSymbolTopic(name) {
		if id, ok := strings.CutPrefix(name, schema.PortfolioTopic("")); ok {
			v, found := m.snaps.Portfolio(id)
			return schema.PortfolioUpdate(v), found
		}
		if id, ok := strings.CutPrefix(name, schema.WatchlistTopic("")); ok {
			v, found := m.snaps.Watchlist(id)
			return schema.WatchlistUpdate(v), found
		}
		return schema.Update{}, false
	}
	v, found := m.snaps.Symbol(name)
	return schema.SymbolUpdate(v), found
}

// acquire adds s to the sessions of topic name. Caller holds mu.
func (m *Manager) acquire(name string, s *Session) error {
	t, ok := m.topics[name]
	if !ok {
		sub, err := m.updates.Subscribe(name, m.topicQueue)
		if err != nil {
			return err
		}
		t = &topic{name: name, sub: sub, sessions: make(map[*Session]struct{})}
		m.topics[name] = t
		m.wg.Add(1)
		go m.pump(t)
	}
	t.sessions[s] = struct{}{}
	return nil
}

// release removes s from topic name and unsubscribes the topic once nobody
// needs it. Caller holds mu.
func (m *Manager) release(name string, s *Session) {
	t, ok := m.topics[name]
	if !ok {
		return
	}
	delete(t.sessions, s)
	if len(t.sessions) == 0 {
		delete(m.topics, name)
		t.sub.Close()
	}
}

func (m *Manager) pump(t *topic) {
	defer m.wg.Done()
	for u := range t.sub.All(m.ctx) {
		m.mu.RLock()
		sessions := slices.Collect(maps.Keys(t.sessions))
		m.mu.RUnlock()
		for _, s := range sessions {
			if !s.deliver(u, false) {
				m.metrics.IncSessionDrop()
			}
		}
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
