package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/chaos"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/codec"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/mdg"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

var errLinkDown = errors.New("link down")

type scriptedStream struct {
	ticks     []codec.Tick
	end       error
	resumable bool
	resumed   map[string]uint64
	closed    bool
}

func (s *scriptedStream) Recv(ctx context.Context) (codec.Tick, error) {
	if len(s.ticks) > 0 {
		t := s.ticks[0]
		s.ticks = s.ticks[1:]
		return t, nil
	}
	if s.end != nil {
		return codec.Tick{}, s.end
	}
	<-ctx.Done()
	return codec.Tick{}, ctx.Err()
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

type resumableStream struct {
	*scriptedStream
}

func (s resumableStream) Resume(_ context.Context, checkpoint map[string]uint64) error {
	s.resumed = checkpoint
	return nil
}

type dialResult struct {
	stream Stream
	err    error
}

type scriptedSource struct {
	mu    sync.Mutex
	dials []dialResult
	count int
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Dial(_ context.Context) (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	if len(s.dials) == 0 {
		return nil, errLinkDown
	}
	d := s.dials[0]
	s.dials = s.dials[1:]
	return d.stream, d.err
}

func testRegistry(t *testing.T, symbols ...string) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	venue, err := reg.AddVenue("TEST")
	require.NoError(t, err)
	for _, s := range symbols {
		_, err := reg.AddSymbol(s, venue, schema.ScaleSpec{PriceScale: 2, QuantityScale: 0})
		require.NoError(t, err)
	}
	return reg
}

func tick(symbol string, seq uint64, price string) codec.Tick {
	return codec.Tick{Symbol: symbol, Type: "trade", Price: price, Size: "1", Seq: seq, TsEvent: int64(seq) * 1_000}
}

type collector struct {
	mu   sync.Mutex
	msgs []schema.Message
}

func (c *collector) handle(m schema.Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
}

func (c *collector) kinds(symbol string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.msgs {
		if m.Symbol() != symbol {
			continue
		}
		switch m.Kind {
		case schema.MessageEvent:
			out = append(out, "event")
		case schema.MessageGap:
			out = append(out, "gap:"+m.Gap.Reason.String())
		case schema.MessageConnectivity:
			out = append(out, "conn:"+m.Connectivity.State.String())
		}
	}
	return out
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestAdapter(t *testing.T, src Source, backoff Backoff, opts ...Option) *Adapter {
	t.Helper()
	opts = append([]Option{WithSleep(noSleep)}, opts...)
	a, err := NewAdapter(Config{ID: "test", Source: 1, Backoff: backoff}, src, testRegistry(t, "ABC", "XYZ"), opts...)
	require.NoError(t, err)
	return a
}

func runUntil(t *testing.T, a *Adapter, c *collector, done func() bool) error {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx, c.handle) }()

	deadline := time.After(5 * time.Second)
	for !done() {
		select {
		case err := <-errc:
			return err
		case <-deadline:
			t.Fatal("adapter did not reach the expected state")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	return <-errc
}

func TestGapEmittedBeforeRevealingEvent(t *testing.T) {
	stream := &scriptedStream{ticks: []codec.Tick{
		tick("ABC", 1, "10"), tick("ABC", 2, "11"), tick("ABC", 3, "12"), tick("ABC", 7, "13"),
	}}
	src := &scriptedSource{dials: []dialResult{{stream: stream}}}
	a := newTestAdapter(t, src, DefaultBackoff())
	_, err := a.Connect(t.Context())
	require.NoError(t, err)

	c := &collector{}
	require.NoError(t, runUntil(t, a, c, func() bool { return a.Stats().Events == 4 }))

	assert.Equal(t, []string{"event", "event", "event", "gap:sequence", "event", "conn:disconnected"}, c.kinds("ABC"))
	for _, m := range c.msgs {
		if m.Kind == schema.MessageGap {
			assert.Equal(t, uint64(4), m.Gap.Expected)
			assert.Equal(t, uint64(7), m.Gap.Got)
		}
	}
	assert.Equal(t, uint64(1), a.Stats().Gaps)
	assert.True(t, stream.closed)
}

func TestDuplicatesAndMalformedAreDropped(t *testing.T) {
	stream := &scriptedStream{ticks: []codec.Tick{
		tick("ABC", 1, "10"),
		tick("ABC", 1, "10"),
		{Symbol: "ABC", Type: "trade", Price: "abc", Seq: 2},
		{Symbol: "NOPE", Type: "trade", Price: "1", Seq: 1},
		{Symbol: "ABC", Type: "bogus", Price: "1", Seq: 2},
		{Symbol: "ABC", Type: "trade", Price: "1.001", Seq: 2},
		tick("ABC", 2, "10.5"),
	}}
	src := &scriptedSource{dials: []dialResult{{stream: stream}}}
	a := newTestAdapter(t, src, DefaultBackoff())
	_, err := a.Connect(t.Context())
	require.NoError(t, err)

	c := &collector{}
	require.NoError(t, runUntil(t, a, c, func() bool { return a.Stats().Events == 2 }))

	stats := a.Stats()
	assert.Equal(t, uint64(1), stats.Duplicates)
	assert.Equal(t, uint64(4), stats.Malformed)
	assert.Equal(t, uint64(0), stats.Gaps)
}

func TestReconnectWithoutResumeEmitsGaps(t *testing.T) {
	first := &scriptedStream{ticks: []codec.Tick{tick("ABC", 1, "10"), tick("XYZ", 5, "20")}, end: errLinkDown}
	second := &scriptedStream{ticks: []codec.Tick{tick("ABC", 1, "10.1")}}
	src := &scriptedSource{dials: []dialResult{{stream: first}, {err: errLinkDown}, {stream: second}}}

	var mu sync.Mutex
	var states []schema.ConnState
	a := newTestAdapter(t, src, DefaultBackoff(), WithObserver(func(tr Transition) {
		mu.Lock()
		states = append(states, tr.To)
		mu.Unlock()
	}))
	_, err := a.Connect(t.Context())
	require.NoError(t, err)

	c := &collector{}
	require.NoError(t, runUntil(t, a, c, func() bool { return a.Stats().Events == 3 }))

	assert.Equal(t, []string{
		"event", "conn:degraded", "gap:reconnect", "conn:live", "event", "conn:disconnected",
	}, c.kinds("ABC"))
	assert.Equal(t, []string{
		"event", "conn:degraded", "gap:reconnect", "conn:live", "conn:disconnected",
	}, c.kinds("XYZ"))
	assert.Equal(t, uint64(2), a.Stats().Reconnects)
	assert.Equal(t, 3, src.count)

	mu.Lock()
	assert.Equal(t, []schema.ConnState{
		schema.ConnConnecting, schema.ConnLive, schema.ConnDegraded, schema.ConnLive, schema.ConnDisconnected,
	}, states)
	mu.Unlock()
}

func TestReconnectWithResumeKeepsSequence(t *testing.T) {
	first := &scriptedStream{ticks: []codec.Tick{tick("ABC", 1, "10")}, end: errLinkDown}
	second := resumableStream{&scriptedStream{ticks: []codec.Tick{tick("ABC", 2, "10.1")}}}
	src := &scriptedSource{dials: []dialResult{{stream: first}, {stream: second}}}
	a := newTestAdapter(t, src, DefaultBackoff())
	_, err := a.Connect(t.Context())
	require.NoError(t, err)

	c := &collector{}
	require.NoError(t, runUntil(t, a, c, func() bool { return a.Stats().Events == 2 }))

	assert.Equal(t, []string{"event", "conn:degraded", "conn:live", "event", "conn:disconnected"}, c.kinds("ABC"))
	assert.Equal(t, map[string]uint64{"ABC": 1}, second.resumed)
	assert.Equal(t, uint64(1), a.Stats().Resumes)
	assert.Equal(t, uint64(0), a.Stats().Gaps)
}

func TestRetriesAreBounded(t *testing.T) {
	first := &scriptedStream{ticks: []codec.Tick{tick("ABC", 1, "10")}, end: errLinkDown}
	src := &scriptedSource{dials: []dialResult{{stream: first}}}
	backoff := DefaultBackoff()
	backoff.MaxRetries = 3
	a := newTestAdapter(t, src, backoff)
	_, err := a.Connect(t.Context())
	require.NoError(t, err)

	c := &collector{}
	err = a.Run(t.Context(), c.handle)
	require.ErrorIs(t, err, exception.ErrRetryExhausted)
	assert.Equal(t, schema.ConnDisconnected, a.State())
	assert.Equal(t, 4, src.count)
	assert.Equal(t, []string{"event", "conn:degraded", "conn:disconnected"}, c.kinds("ABC"))
	assert.Equal(t, []string{"conn:live", "conn:degraded", "conn:disconnected"}, c.kinds(""))
	assert.Equal(t, 3, a.Session().RetryCount)
}

func TestConnectFailureIsFatal(t *testing.T) {
	src := &scriptedSource{dials: []dialResult{{err: errLinkDown}}}
	a := newTestAdapter(t, src, DefaultBackoff())
	_, err := a.Connect(t.Context())
	require.ErrorIs(t, err, exception.ErrTransientFeed)
	require.ErrorIs(t, err, errLinkDown)
	assert.Equal(t, schema.ConnDisconnected, a.State())

	err = a.Run(t.Context(), func(schema.Message) {})
	require.ErrorIs(t, err, exception.ErrNotConnected)
}

func TestSimSourceWithForcedDisconnects(t *testing.T) {
	reg := testRegistry(t, "ABC", "XYZ")
	gen, err := mdg.NewGenerator(reg, mdg.Config{Seed: 1, BasePrice: 100, Volatility: 0.001, TradeRatio: 0.5, MaxSize: 10})
	require.NoError(t, err)
	src, err := NewSimSource("sim", gen, chaos.Config{Seed: 1, DisconnectEvery: 25}, 0)
	require.NoError(t, err)

	a, err := NewAdapter(Config{ID: "sim", Backoff: DefaultBackoff()}, src, reg, WithSleep(noSleep))
	require.NoError(t, err)
	_, err = a.Connect(t.Context())
	require.NoError(t, err)

	c := &collector{}
	require.NoError(t, runUntil(t, a, c, func() bool { return a.Stats().Events >= 100 }))
	stats := a.Stats()
	assert.GreaterOrEqual(t, stats.Reconnects, uint64(3))
	assert.Equal(t, stats.Reconnects, stats.Resumes)
	assert.Equal(t, uint64(0), stats.Gaps)
	assert.Equal(t, uint64(0), stats.Duplicates)
}

func TestStateMachineRejectsInvalidTransitions(t *testing.T) {
	sm := NewStateMachine(nil)
	_, err := sm.Transition(schema.ConnLive, "skip")
	require.ErrorIs(t, err, exception.ErrInvalidTransition)

	_, err = sm.Transition(schema.ConnConnecting, "")
	require.NoError(t, err)
	_, err = sm.Transition(schema.ConnDegraded, "")
	require.ErrorIs(t, err, exception.ErrInvalidTransition)

	tr, err := sm.Transition(schema.ConnConnecting, "again")
	require.NoError(t, err)
	assert.Equal(t, tr.From, tr.To)
}

func TestBackoff(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: time.Second, Multiplier: 2, MaxRetries: 5}
	assert.Equal(t, 100*time.Millisecond, b.Next(1))
	assert.Equal(t, 200*time.Millisecond, b.Next(2))
	assert.Equal(t, 800*time.Millisecond, b.Next(4))
	assert.Equal(t, time.Second, b.Next(5))
	assert.Equal(t, time.Second, b.Next(50))
	assert.False(t, b.Exhausted(5))
	assert.True(t, b.Exhausted(6))

	b.Jitter = 0.2
	for i := 0; i < 100; i++ {
		d := b.Next(3)
		assert.GreaterOrEqual(t, d, 320*time.Millisecond)
		assert.LessOrEqual(t, d, 480*time.Millisecond)
	}

	require.Error(t, Backoff{Jitter: 2}.Validate())
	require.Error(t, Backoff{Base: time.Second, Max: time.Millisecond}.Validate())
	require.NoError(t, DefaultBackoff().Validate())
}

func TestBackoffRequiresRetryCap(t *testing.T) {
	unbounded := Backoff{Base: time.Millisecond, Max: time.Second}
	require.Error(t, unbounded.Validate())
	require.Error(t, Backoff{Base: time.Millisecond, Max: time.Second, MaxRetries: -1}.Validate())

	_, err := NewAdapter(Config{ID: "test", Backoff: unbounded}, &scriptedSource{}, testRegistry(t, "ABC"))
	require.Error(t, err)

	filled := unbounded.WithDefaults()
	require.NoError(t, filled.Validate())
	assert.Equal(t, DefaultBackoff().MaxRetries, filled.MaxRetries)
	assert.Equal(t, time.Millisecond, filled.Base)
	assert.True(t, filled.Exhausted(filled.MaxRetries+1))
}

func TestSequencer(t *testing.T) {
	s := NewSequencer()
	res, _ := s.Observe("A", 5)
	assert.Equal(t, SeqFirst, res)
	res, _ = s.Observe("A", 6)
	assert.Equal(t, SeqNext, res)
	res, exp := s.Observe("A", 9)
	assert.Equal(t, SeqGap, res)
	assert.Equal(t, uint64(7), exp)
	res, _ = s.Observe("A", 8)
	assert.Equal(t, SeqDuplicate, res)
	assert.Equal(t, []string{"A"}, s.Symbols())
	assert.Equal(t, map[string]uint64{"A": 9}, s.Checkpoint())
	s.Reset()
	_, ok := s.Last("A")
	assert.False(t, ok)
}
