package feed

import (
	"time"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/codec"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// Normalizer maps wire ticks to canonical market events.
type Normalizer struct {
	reg    *schema.Registry
	name   string
	source uint16
	now    func() time.Time
}

// NewNormalizer creates a normalizer for a registry.
func NewNormalizer(reg *schema.Registry, name string, source uint16, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{reg: reg, name: name, source: source, now: now}
}

// Normalize converts a tick. Any failure is an exception.MalformedEventError.
func (n *Normalizer) Normalize(t codec.Tick) (schema.MarketEvent, error) {
	if n.reg == nil {
		return schema.MarketEvent{}, exception.Malformed(n.name, "registry is nil", exception.ErrNilInstance)
	}
	sym, ok := n.reg.SymbolByName(t.Symbol)
	if !ok {
		return schema.MarketEvent{}, exception.Malformed(n.name, "unknown symbol "+t.Symbol, exception.ErrUnknownSymbol)
	}
	kind := schema.ParseEventKind(t.Type)
	if kind == schema.EventUnknown {
		return schema.MarketEvent{}, exception.Malformed(n.name, "unknown event type "+t.Type, nil)
	}
	price, err := schema.ParseScaled(t.Price, sym.Scale.PriceScale)
	if err != nil {
		return schema.MarketEvent{}, exception.Malformed(n.name, "price", err)
	}
	var size int64
	if t.Size != "" {
		size, err = schema.ParseScaled(t.Size, sym.Scale.QuantityScale)
		if err != nil {
			return schema.MarketEvent{}, exception.Malformed(n.name, "size", err)
		}
	}

	if t.TsRecv == 0 {
		t.TsRecv = n.now().UTC().UnixNano()
	}
	if t.TsEvent == 0 {
		t.TsEvent = t.TsRecv
	}
	ev := schema.MarketEvent{
		Symbol:  sym.Name,
		Kind:    kind,
		Price:   schema.Price(price),
		Size:    schema.Quantity(size),
		TsEvent: t.TsEvent,
		TsRecv:  t.TsRecv,
		Seq:     t.Seq,
		Source:  n.source,
	}
	if err := ev.Validate(); err != nil {
		return schema.MarketEvent{}, exception.Malformed(n.name, "invalid event", err)
	}
	return ev, nil
}
