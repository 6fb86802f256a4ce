package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/codec"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

const defaultDialTimeout = 10 * time.Second

// Config configures one feed adapter.
type Config struct {
	ID          string
	Source      uint16
	Backoff     Backoff
	DialTimeout time.Duration
	// Symbols are announced in connectivity notifications before any tick is seen.
	Symbols []string
}

// Validate checks the adapter config.
func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("invalid feed config: id is empty")
	}
	if c.DialTimeout < 0 {
		return fmt.Errorf("invalid feed config %s: dial timeout must be >= 0", c.ID)
	}
	if err := c.Backoff.Validate(); err != nil {
		return fmt.Errorf("invalid feed config %s: %w", c.ID, err)
	}
	return nil
}

// Handler receives every message produced by the adapter, in order.
type Handler func(schema.Message)

// SessionInfo describes the current feed session.
type SessionInfo struct {
	AdapterID  string            `json:"adapterId"`
	Source     string            `json:"source"`
	State      string            `json:"state"`
	Since      time.Time         `json:"since"`
	LastSeq    map[string]uint64 `json:"lastSeq"`
	RetryCount int               `json:"retryCount"`
	Stats      Stats             `json:"stats"`
}

// Stats counts adapter activity.
type Stats struct {
	Events     uint64 `json:"events"`
	Gaps       uint64 `json:"gaps"`
	Duplicates uint64 `json:"duplicates"`
	Malformed  uint64 `json:"malformed"`
	Reconnects uint64 `json:"reconnects"`
	Resumes    uint64 `json:"resumes"`
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
	}
}

// WithObserver registers a state machine observer.
func WithObserver(o Observer) Option {
	return func(a *Adapter) {
		a.observers = append(a.observers, o)
	}
}

// WithSleep overrides the backoff wait. Used by tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(a *Adapter) {
		a.sleep = sleep
	}
}

// Adapter turns one upstream feed into canonical messages. It owns the
// connection lifecycle: connect, detect gaps, reconnect with backoff.
type Adapter struct {
	cfg       Config
	src       Source
	norm      *Normalizer
	sm        *StateMachine
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
	observers []Observer

	mu     sync.Mutex
	stream Stream
	seq    *Sequencer
	known  map[string]struct{}
	retry  int

	running    atomic.Bool
	events     atomic.Uint64
	gaps       atomic.Uint64
	duplicates atomic.Uint64
	malformed  atomic.Uint64
	reconnects atomic.Uint64
	resumes    atomic.Uint64
}

// NewAdapter validates cfg and builds an adapter for src.
func NewAdapter(cfg Config, src Source, reg *schema.Registry, opts ...Option) (*Adapter, error) {
	if src == nil {
		return nil, exception.ErrNilSource
	}
	if reg == nil {
		return nil, fmt.Errorf("%w: registry", exception.ErrNilInstance)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	a := &Adapter{
		cfg:   cfg,
		src:   src,
		now:   time.Now,
		sleep: sleepContext,
		seq:   NewSequencer(),
		known: make(map[string]struct{}, len(cfg.Symbols)),
	}
	for _, opt := range opts {
		opt(a)
	}
	for _, s := range cfg.Symbols {
		a.known[s] = struct{}{}
	}
	a.norm = NewNormalizer(reg, cfg.ID, cfg.Source, a.now)
	a.sm = NewStateMachine(a.now, a.observers...)
	return a, nil
}

// ID returns the adapter id.
func (a *Adapter) ID() string { return a.cfg.ID }

// State returns the connection state.
func (a *Adapter) State() schema.ConnState {
	s, _ := a.sm.State()
	return s
}

// Session returns a snapshot of the feed session.
func (a *Adapter) Session() SessionInfo {
	state, since := a.sm.State()
	a.mu.Lock()
	checkpoint := a.seq.Checkpoint()
	retry := a.retry
	a.mu.Unlock()
	return SessionInfo{
		AdapterID:  a.cfg.ID,
		Source:     a.src.Name(),
		State:      state.String(),
		Since:      since,
		LastSeq:    checkpoint,
		RetryCount: retry,
		Stats:      a.Stats(),
	}
}

// Stats returns the adapter counters.
func (a *Adapter) Stats() Stats {
	return Stats{
		Events:     a.events.Load(),
		Gaps:       a.gaps.Load(),
		Duplicates: a.duplicates.Load(),
		Malformed:  a.malformed.Load(),
		Reconnects: a.reconnects.Load(),
		Resumes:    a.resumes.Load(),
	}
}

// Connect dials the source for the first time. A failure here is fatal to the
// caller: the endpoint is misconfigured or unreachable at startup.
func (a *Adapter) Connect(ctx context.Context) (SessionInfo, error) {
	if _, err := a.sm.Transition(schema.ConnConnecting, "connect"); err != nil {
		return SessionInfo{}, err
	}
	stream, err := a.dial(ctx)
	if err != nil {
		_, _ = a.sm.Transition(schema.ConnDisconnected, err.Error())
		return SessionInfo{}, fmt.Errorf("connect feed %s: %w", a.cfg.ID, err)
	}
	a.mu.Lock()
	a.stream = stream
	a.mu.Unlock()
	if _, err := a.sm.Transition(schema.ConnLive, "connected"); err != nil {
		return SessionInfo{}, err
	}
	logs.Infof("feed %s: connected to %s", a.cfg.ID, a.src.Name())
	return a.Session(), nil
}

// Run streams messages to h until ctx is done or reconnect retries are exhausted.
// Connect must succeed first.
func (a *Adapter) Run(ctx context.Context, h Handler) error {
	if h == nil {
		return fmt.Errorf("%w: handler", exception.ErrNilInstance)
	}
	if !a.running.CompareAndSwap(false, true) {
		return exception.ErrAdapterRunning
	}
	defer a.running.Store(false)

	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()
	if stream == nil {
		return exception.ErrNotConnected
	}
	a.announce(schema.ConnLive, h)

	for {
		tick, err := stream.Recv(ctx)
		if err == nil {
			a.handleTick(tick, h)
			continue
		}
		if ctx.Err() != nil {
			a.shutdown(h)
			return nil
		}
		if errors.Is(err, exception.ErrMalformedEvent) {
			a.malformed.Add(1)
			continue
		}

		logs.Warnf("feed %s: stream ended, err: %+v", a.cfg.ID, err)
		a.closeStream()
		if _, terr := a.sm.Transition(schema.ConnDegraded, err.Error()); terr != nil {
			logs.Errorf("feed %s: transition, err: %+v", a.cfg.ID, terr)
		}
		a.announce(schema.ConnDegraded, h)

		stream, err = a.reconnect(ctx, h)
		if err != nil {
			if ctx.Err() != nil {
				a.shutdown(h)
				return nil
			}
			_, _ = a.sm.Transition(schema.ConnDisconnected, err.Error())
			a.announce(schema.ConnDisconnected, h)
			logs.Errorf("feed %s: giving up, err: %+v", a.cfg.ID, err)
			return err
		}
	}
}

// Close releases the current connection.
func (a *Adapter) Close() error {
	a.closeStream()
	return nil
}

func (a *Adapter) handleTick(tick codec.Tick, h Handler) {
	ev, err := a.norm.Normalize(tick)
	if err != nil {
		a.malformed.Add(1)
		return
	}

	a.mu.Lock()
	res, expected := a.seq.Observe(ev.Symbol, ev.Seq)
	a.known[ev.Symbol] = struct{}{}
	a.mu.Unlock()

	switch res {
	case SeqDuplicate:
		a.duplicates.Add(1)
		return
	case SeqGap:
		a.gaps.Add(1)
		h(schema.GapMessage(schema.Gap{
			Symbol:   ev.Symbol,
			Reason:   schema.GapSequence,
			Expected: expected,
			Got:      ev.Seq,
			Ts:       ev.TsRecv,
			Source:   a.cfg.Source,
		}))
	}
	a.events.Add(1)
	h(schema.EventMessage(ev))
}

func (a *Adapter) reconnect(ctx context.Context, h Handler) (Stream, error) {
	a.mu.Lock()
	checkpoint := a.seq.Checkpoint()
	a.mu.Unlock()

	for attempt := 1; ; attempt++ {
		if a.cfg.Backoff.Exhausted(attempt) {
			return nil, fmt.Errorf("%w: adapter %s after %d attempts", exception.ErrRetryExhausted, a.cfg.ID, attempt-1)
		}
		a.setRetry(attempt)
		a.reconnects.Add(1)
		if err := a.sleep(ctx, a.cfg.Backoff.Next(attempt)); err != nil {
			return nil, err
		}

		stream, err := a.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logs.Warnf("feed %s: reconnect attempt %d, err: %+v", a.cfg.ID, attempt, err)
			continue
		}

		resumed := false
		if r, ok := stream.(Resumer); ok && len(checkpoint) > 0 {
			switch err := r.Resume(ctx, checkpoint); {
			case err == nil:
				resumed = true
				a.resumes.Add(1)
			case errors.Is(err, exception.ErrResumeUnsupported):
			default:
				logs.Warnf("feed %s: resume attempt %d, err: %+v", a.cfg.ID, attempt, err)
				_ = stream.Close()
				continue
			}
		}
		if !resumed {
			a.emitReconnectGaps(checkpoint, h)
		}

		a.mu.Lock()
		a.stream = stream
		a.retry = 0
		a.mu.Unlock()
		if _, err := a.sm.Transition(schema.ConnLive, "reconnected"); err != nil {
			logs.Errorf("feed %s: transition, err: %+v", a.cfg.ID, err)
		}
		a.announce(schema.ConnLive, h)
		logs.Infof("feed %s: reconnected after %d attempts, resumed: %v", a.cfg.ID, attempt, resumed)
		return stream, nil
	}
}

// emitReconnectGaps flags every symbol with a known sequence and forgets the
// sequences, since the new session may number events differently.
func (a *Adapter) emitReconnectGaps(checkpoint map[string]uint64, h Handler) {
	symbols := make([]string, 0, len(checkpoint))
	for s := range checkpoint {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	ts := a.now().UTC().UnixNano()
	for _, s := range symbols {
		a.gaps.Add(1)
		h(schema.GapMessage(schema.Gap{
			Symbol:   s,
			Reason:   schema.GapReconnect,
			Expected: checkpoint[s] + 1,
			Ts:       ts,
			Source:   a.cfg.Source,
		}))
	}
	a.mu.Lock()
	a.seq.Reset()
	a.mu.Unlock()
}

// announce sends one connectivity message per known symbol, then one for the adapter.
func (a *Adapter) announce(state schema.ConnState, h Handler) {
	a.mu.Lock()
	symbols := make([]string, 0, len(a.known))
	for s := range a.known {
		symbols = append(symbols, s)
	}
	a.mu.Unlock()
	sort.Strings(symbols)

	ts := a.now().UTC().UnixNano()
	for _, s := range symbols {
		h(schema.ConnectivityMessage(schema.Connectivity{
			AdapterID: a.cfg.ID,
			Symbol:    s,
			State:     state,
			Ts:        ts,
			Source:    a.cfg.Source,
		}))
	}
	h(schema.ConnectivityMessage(schema.Connectivity{
		AdapterID: a.cfg.ID,
		State:     state,
		Ts:        ts,
		Source:    a.cfg.Source,
	}))
}

func (a *Adapter) shutdown(h Handler) {
	a.closeStream()
	if _, err := a.sm.Transition(schema.ConnDisconnected, "shutdown"); err == nil {
		a.announce(schema.ConnDisconnected, h)
	}
	logs.Infof("feed %s: stopped", a.cfg.ID)
}

func (a *Adapter) dial(ctx context.Context) (Stream, error) {
	dialCtx, cancel := context.WithTimeout(ctx, a.cfg.DialTimeout)
	defer cancel()
	stream, err := a.src.Dial(dialCtx)
	if err != nil {
		return nil, &exception.TransientFeedError{AdapterID: a.cfg.ID, Err: err}
	}
	return stream, nil
}

func (a *Adapter) closeStream() {
	a.mu.Lock()
	stream := a.stream
	a.stream = nil
	a.mu.Unlock()
	if stream != nil {
		if err := stream.Close(); err != nil {
			logs.Warnf("feed %s: close stream, err: %+v", a.cfg.ID, err)
		}
	}
}

func (a *Adapter) setRetry(attempt int) {
	a.mu.Lock()
	a.retry = attempt
	a.mu.Unlock()
}
