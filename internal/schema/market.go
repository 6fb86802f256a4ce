package schema

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Price is a scaled integer. The scale is defined per symbol by the registry.
type Price int64

// Quantity is a scaled integer. The scale is defined per symbol by the registry.
type Quantity int64

// Float converts the scaled value to float64.
func (p Price) Float(scale Scale) float64 {
	return float64(p) / scale.Factor()
}

// Decimal converts the scaled value to an exact decimal.
func (p Price) Decimal(scale Scale) decimal.Decimal {
	return decimal.New(int64(p), -int32(scale))
}

// Decimal converts the scaled value to an exact decimal.
func (q Quantity) Decimal(scale Scale) decimal.Decimal {
	return decimal.New(int64(q), -int32(scale))
}

// ParseScaled parses a decimal string into a scaled integer.
// Values with more fractional digits than the scale allows are rejected.
func ParseScaled(s string, scale Scale) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return ScaleDecimal(d, scale)
}

// ScaleDecimal converts an exact decimal into a scaled integer.
func ScaleDecimal(d decimal.Decimal, scale Scale) (int64, error) {
	shifted := d.Shift(int32(scale))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("value %s exceeds scale %d", d.String(), scale)
	}
	if shifted.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || shifted.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("value %s overflows scaled integer", d.String())
	}
	return shifted.IntPart(), nil
}

// MarketEvent is the canonical quote or trade observation. It is immutable once emitted.
type MarketEvent struct {
	Symbol  string
	Kind    EventKind
	Price   Price
	Size    Quantity
	TsEvent int64
	TsRecv  int64
	Seq     uint64
	Source  uint16
}

// Validate checks the fields every downstream stage relies on.
func (e MarketEvent) Validate() error {
	if e.Symbol == "" {
		return fmt.Errorf("symbol is empty")
	}
	if e.Kind == EventUnknown {
		return fmt.Errorf("event kind is unknown")
	}
	if e.Price <= 0 {
		return fmt.Errorf("price must be > 0")
	}
	if e.Size < 0 {
		return fmt.Errorf("size must be >= 0")
	}
	if e.Seq == 0 {
		return fmt.Errorf("sequence number is zero")
	}
	return nil
}

// Gap signals a discontinuity in the event sequence of one symbol.
type Gap struct {
	Symbol   string
	Reason   GapReason
	Expected uint64
	Got      uint64
	Ts       int64
	Source   uint16
}

// Connectivity reports a feed session state change.
// Symbol is empty for the adapter-wide notification.
type Connectivity struct {
	AdapterID string
	Symbol    string
	State     ConnState
	Ts        int64
	Source    uint16
}

// Message is the unit routed through the ingress bus.
type Message struct {
	Kind         MessageKind
	Event        MarketEvent
	Gap          Gap
	Connectivity Connectivity
}

// EventMessage wraps a market event.
func EventMessage(ev MarketEvent) Message {
	return Message{Kind: MessageEvent, Event: ev}
}

// GapMessage wraps a gap signal.
func GapMessage(g Gap) Message {
	return Message{Kind: MessageGap, Gap: g}
}

// ConnectivityMessage wraps a connectivity notification.
func ConnectivityMessage(c Connectivity) Message {
	return Message{Kind: MessageConnectivity, Connectivity: c}
}

// Symbol returns the routing key of the message.
func (m Message) Symbol() string {
	switch m.Kind {
	case MessageEvent:
		return m.Event.Symbol
	case MessageGap:
		return m.Gap.Symbol
	case MessageConnectivity:
		return m.Connectivity.Symbol
	default:
		return ""
	}
}

// Ts returns the source timestamp carried by the message.
func (m Message) Ts() int64 {
	switch m.Kind {
	case MessageEvent:
		return m.Event.TsEvent
	case MessageGap:
		return m.Gap.Ts
	case MessageConnectivity:
		return m.Connectivity.Ts
	default:
		return 0
	}
}
