package state

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/indicator"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// SymbolState is the live state of one symbol. It is mutated only by the lane
// that owns it.
type SymbolState struct {
	Symbol      string
	Scale       schema.ScaleSpec
	LastPrice   schema.Price
	LastEventTs int64
	OpenPrice   schema.Price
	DayHigh     schema.Price
	DayLow      schema.Price
	Volume      schema.Quantity
	// LastSeq and LastSource identify the last applied event.
	LastSeq     uint64
	LastSource  uint16
	Priced      bool
	Stale       bool
	StaleReason string
	StaleSince  int64
	Indicators  *indicator.Set

	// Version increases on every change and orders snapshot writes.
	Version uint64
	day     int64
	// seqs holds the last applied sequence per feed source. Sequence
	// numbers are only comparable within one source.
	seqs map[uint16]uint64
}

// Apply folds one event into the state. Events at or below the last sequence
// applied from the same source are rejected with exception.ErrOutOfOrder.
func (s *SymbolState) Apply(ev schema.MarketEvent, loc *time.Location) error {
	if last := s.seqs[ev.Source]; ev.Seq <= last {
		return fmt.Errorf("%w: %s source %d seq %d, last %d", exception.ErrOutOfOrder, s.Symbol, ev.Source, ev.Seq, last)
	}
	ts := ev.TsEvent
	if ts == 0 {
		ts = ev.TsRecv
	}

	day := dayOf(ts, loc)
	if !s.Priced || day > s.day {
		s.day = day
		s.OpenPrice = ev.Price
		s.DayHigh = ev.Price
		s.DayLow = ev.Price
		s.Volume = 0
	} else {
		s.DayHigh = max(s.DayHigh, ev.Price)
		s.DayLow = min(s.DayLow, ev.Price)
	}
	if ev.Kind == schema.EventTrade {
		s.Volume += ev.Size
	}

	s.LastPrice = ev.Price
	s.LastEventTs = max(s.LastEventTs, ts)
	if s.seqs == nil {
		s.seqs = make(map[uint16]uint64, 1)
	}
	s.seqs[ev.Source] = ev.Seq
	s.LastSeq = ev.Seq
	s.LastSource = ev.Source
	s.Priced = true
	s.Stale = false
	s.StaleReason = ""
	s.StaleSince = 0
	if s.Indicators != nil {
		s.Indicators.Update(ev.Price, ts)
	}
	s.Version++
	return nil
}

// MarkStale flags the last price as possibly outdated. Indicators are reset
// only for discontinuities in the event stream.
func (s *SymbolState) MarkStale(reason string, ts int64, resetIndicators bool) {
	if !s.Stale {
		s.StaleSince = ts
	}
	s.Stale = true
	s.StaleReason = reason
	if resetIndicators && s.Indicators != nil {
		s.Indicators.MarkStale(ts)
	}
	s.Version++
}

// ResetSequence forgets the last sequence of source after its upstream
// session was replaced. Other sources are unaffected.
func (s *SymbolState) ResetSequence(source uint16) {
	delete(s.seqs, source)
}

// Touch bumps the version without changing market fields.
func (s *SymbolState) Touch() {
	s.Version++
}

// View returns the published form of the state.
func (s *SymbolState) View() schema.SymbolView {
	ps, qs := s.Scale.PriceScale, s.Scale.QuantityScale
	v := schema.SymbolView{
		Symbol:      s.Symbol,
		Version:     s.Version,
		Seq:         s.LastSeq,
		Source:      s.LastSource,
		LastPrice:   s.LastPrice.Decimal(ps),
		LastEventTs: s.LastEventTs,
		OpenPrice:   s.OpenPrice.Decimal(ps),
		DayHigh:     s.DayHigh.Decimal(ps),
		DayLow:      s.DayLow.Decimal(ps),
		Volume:      s.Volume.Decimal(qs),
		Stale:       s.Stale,
		StaleReason: s.StaleReason,
		StaleSince:  s.StaleSince,
	}
	if s.Indicators != nil {
		snap := s.Indicators.Snapshot()
		v.Indicators = snap.Values
		v.IndicatorsStale = snap.Stale
		v.ReseedExpired = snap.ReseedExpired
	}
	if !s.Priced {
		v.StaleReason = schema.StaleReasonNoPrice
		v.Stale = true
	}
	return v
}

// Restore loads the market fields of a published view. Indicator history is
// not part of the view, so restored indicators start stale and re-seed.
func (s *SymbolState) Restore(v schema.SymbolView, loc *time.Location) error {
	ps, qs := s.Scale.PriceScale, s.Scale.QuantityScale
	var err error
	scaled := func(d decimal.Decimal, scale schema.Scale) int64 {
		if err != nil {
			return 0
		}
		var n int64
		n, err = schema.ScaleDecimal(d, scale)
		return n
	}
	last := scaled(v.LastPrice, ps)
	open := scaled(v.OpenPrice, ps)
	high := scaled(v.DayHigh, ps)
	low := scaled(v.DayLow, ps)
	volume := scaled(v.Volume, qs)
	if err != nil {
		return fmt.Errorf("restore %s: %w", s.Symbol, err)
	}

	s.LastPrice = schema.Price(last)
	s.OpenPrice = schema.Price(open)
	s.DayHigh = schema.Price(high)
	s.DayLow = schema.Price(low)
	s.Volume = schema.Quantity(volume)
	s.LastEventTs = v.LastEventTs
	s.LastSeq = v.Seq
	s.LastSource = v.Source
	s.seqs = nil
	if v.Seq > 0 {
		s.seqs = map[uint16]uint64{v.Source: v.Seq}
	}
	s.Version = v.Version
	s.Priced = last > 0
	s.Stale = v.Stale && v.StaleReason != schema.StaleReasonNoPrice
	s.StaleReason = ""
	s.StaleSince = 0
	if s.Stale {
		s.StaleReason = v.StaleReason
		s.StaleSince = v.StaleSince
	}
	if s.Priced {
		s.day = dayOf(v.LastEventTs, loc)
	}
	if s.Indicators != nil && s.Priced {
		s.Indicators.MarkStale(v.LastEventTs)
	}
	return nil
}

func dayOf(ts int64, loc *time.Location) int64 {
	if loc == nil {
		loc = time.UTC
	}
	t := time.Unix(0, ts).In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
