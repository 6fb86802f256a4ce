package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yanun0323/logs"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/bus"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/indicator"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/state"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/valuation"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// lane owns the symbol states of one shard. Only its goroutine touches them.
type lane struct {
	id    int
	e     *Engine
	sub   *bus.Subscription[schema.Message]
	arena *state.Arena
}

func newLane(e *Engine, id int) (*lane, error) {
	lanes := len(e.lanes)
	match := func(topic string) bool { return shard(topic, lanes) == id }
	sub, err := e.ingress.SubscribeFunc(fmt.Sprintf("lane-%d", id), match, e.cfg.LaneQueue)
	if err != nil {
		return nil, err
	}
	specs := e.cfg.Indicators
	timeout := e.cfg.ReseedTimeout
	arena := state.NewArena(func(_ string, scale schema.ScaleSpec) (*indicator.Set, error) {
		return indicator.NewSet(specs, scale.PriceScale, timeout)
	})
	return &lane{id: id, e: e, sub: sub, arena: arena}, nil
}

func (l *lane) run(ctx context.Context) error {
	ticker := time.NewTicker(l.e.cfg.ReseedInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.sub.Done():
			return nil
		case <-ticker.C:
			l.checkReseed()
		case <-l.sub.Ready():
			for msg, ok := l.sub.TryNext(); ok; msg, ok = l.sub.TryNext() {
				l.handle(msg)
			}
		}
	}
}

func (l *lane) handle(msg schema.Message) {
	switch msg.Kind {
	case schema.MessageEvent:
		l.onEvent(msg.Event)
	case schema.MessageGap:
		l.onGap(msg.Gap)
	case schema.MessageConnectivity:
		l.onConnectivity(msg.Connectivity)
	}
}

func (l *lane) ensure(symbol string) (*state.SymbolState, bool) {
	sym, ok := l.e.reg.SymbolByName(symbol)
	if !ok {
		return nil, false
	}
	st, err := l.arena.Ensure(sym.Name, sym.Scale)
	if err != nil {
		logs.Errorf("lane %d: create state %s, err: %+v", l.id, symbol, err)
		return nil, false
	}
	return st, true
}

func (l *lane) onEvent(ev schema.MarketEvent) {
	st, ok := l.ensure(ev.Symbol)
	if !ok {
		return
	}
	reseeding := st.Indicators != nil && st.Indicators.Stale()
	if err := st.Apply(ev, l.e.cfg.Location); err != nil {
		if errors.Is(err, exception.ErrOutOfOrder) {
			l.e.metrics.IncOutOfOrder()
			return
		}
		logs.Errorf("lane %d: apply %s, err: %+v", l.id, ev.Symbol, err)
		return
	}
	if reseeding && !st.Indicators.Stale() {
		l.e.metrics.IncReseed()
	}

	view := st.View()
	l.e.emit(schema.SymbolUpdate(view))
	l.e.emit(l.e.values.OnSymbolUpdate(valuation.Quote{
		Symbol: view.Symbol,
		Price:  view.LastPrice,
		Open:   view.OpenPrice,
		Seq:    view.Seq,
		Ts:     view.LastEventTs,
	})...)
	if ev.TsRecv > 0 {
		l.e.metrics.ObserveProcess(time.Duration(l.e.now().UnixNano() - ev.TsRecv))
	}
}

func (l *lane) onGap(g schema.Gap) {
	st, ok := l.ensure(g.Symbol)
	if !ok {
		return
	}
	if g.Reason == schema.GapReconnect {
		st.ResetSequence(g.Source)
	}
	l.markStale(st, schema.StaleReasonGap, g.Ts, true)
}

func (l *lane) onConnectivity(c schema.Connectivity) {
	var reason string
	switch c.State {
	case schema.ConnDegraded:
		reason = schema.StaleReasonFeedDegraded
	case schema.ConnDisconnected:
		reason = schema.StaleReasonFeedDisconnected
	default:
		return
	}
	st, ok := l.ensure(c.Symbol)
	if !ok {
		return
	}
	l.markStale(st, reason, c.Ts, false)
}

func (l *lane) markStale(st *state.SymbolState, reason string, ts int64, resetIndicators bool) {
	if ts == 0 {
		ts = l.e.now().UnixNano()
	}
	st.MarkStale(reason, ts, resetIndicators)
	l.e.metrics.IncStale()

	view := st.View()
	l.e.emit(
		schema.SymbolUpdate(view),
		schema.StalenessUpdate(schema.StalenessNotice{Symbol: st.Symbol, Reason: reason, Since: view.StaleSince}),
	)
	l.e.emit(l.e.values.MarkSymbolStale(st.Symbol, reason, ts)...)
}

// checkReseed reports indicator sets that stayed stale past the re-seed timeout.
func (l *lane) checkReseed() {
	now := l.e.now().UnixNano()
	for st := range l.arena.All() {
		if st.Indicators == nil || !st.Indicators.CheckReseed(now) {
			continue
		}
		st.Touch()
		view := st.View()
		l.e.emit(
			schema.SymbolUpdate(view),
			schema.StalenessUpdate(schema.StalenessNotice{
				Symbol: st.Symbol,
				Reason: schema.StaleReasonReseedTimeout,
				Since:  st.Indicators.StaleSince(),
			}),
		)
	}
}
