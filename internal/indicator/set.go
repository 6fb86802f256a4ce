package indicator

import (
	"time"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

// Set is the group of indicators tracked for one symbol.
// It is owned by a single lane and is not safe for concurrent use.
type Set struct {
	indicators    []Indicator
	reseedN       int
	reseedTimeout time.Duration

	stale      bool
	staleSince int64
	absorbed   int
	expired    bool
}

// Snapshot is the published state of a Set.
type Snapshot struct {
	Values        []schema.IndicatorValue
	Stale         bool
	ReseedExpired bool
	StaleSince    int64
}

// NewSet builds one indicator per spec. A zero reseedTimeout disables the re-seed deadline.
func NewSet(specs []Spec, scale schema.Scale, reseedTimeout time.Duration) (*Set, error) {
	s := &Set{
		indicators:    make([]Indicator, 0, len(specs)),
		reseedTimeout: reseedTimeout,
	}
	for _, spec := range specs {
		ind, err := New(spec, scale)
		if err != nil {
			return nil, err
		}
		s.indicators = append(s.indicators, ind)
		s.reseedN = max(s.reseedN, ind.Window())
	}
	return s, nil
}

// Update feeds one price to every indicator. It returns true when this sample
// completed a re-seed and the set is no longer stale.
func (s *Set) Update(price schema.Price, ts int64) bool {
	for _, ind := range s.indicators {
		ind.Update(price)
	}
	if !s.stale {
		return false
	}
	s.absorbed++
	if s.absorbed < s.reseedN {
		return false
	}
	s.stale = false
	s.expired = false
	s.staleSince = 0
	s.absorbed = 0
	return true
}

// MarkStale resets every indicator after a discontinuity. The set stays stale
// until ReseedLength consecutive samples have been absorbed. Repeated calls
// restart the count but keep the original stale time.
func (s *Set) MarkStale(ts int64) {
	for _, ind := range s.indicators {
		ind.Reset()
	}
	if !s.stale {
		s.staleSince = ts
	}
	s.stale = true
	s.absorbed = 0
}

// CheckReseed reports whether the re-seed deadline passed at now. It returns
// true once per stale period.
func (s *Set) CheckReseed(now int64) bool {
	if !s.stale || s.expired || s.reseedTimeout <= 0 {
		return false
	}
	if now-s.staleSince < int64(s.reseedTimeout) {
		return false
	}
	s.expired = true
	return true
}

// Stale reports whether the set is re-seeding.
func (s *Set) Stale() bool { return s.stale }

// Expired reports whether the current re-seed missed its deadline.
func (s *Set) Expired() bool { return s.expired }

// StaleSince returns the time the current stale period began, or zero.
func (s *Set) StaleSince() int64 { return s.staleSince }

// ReseedLength is the number of samples needed to leave the stale state.
func (s *Set) ReseedLength() int { return s.reseedN }

// Len returns the number of indicators.
func (s *Set) Len() int { return len(s.indicators) }

// Indicators returns the tracked indicators in configuration order.
func (s *Set) Indicators() []Indicator { return s.indicators }

// Values appends the current value of every indicator to dst.
func (s *Set) Values(dst []schema.IndicatorValue) []schema.IndicatorValue {
	for _, ind := range s.indicators {
		v := schema.IndicatorValue{
			Name:    ind.Name(),
			Window:  ind.Window(),
			Value:   ind.Value(),
			Samples: ind.Samples(),
			Ready:   ind.Ready() && !s.stale,
		}
		if b, ok := ind.(Bander); ok {
			v.Upper, v.Lower = b.Bands()
		}
		if sg, ok := ind.(Signaler); ok {
			v.Signal = sg.Signal().String()
		}
		dst = append(dst, v)
	}
	return dst
}

// Snapshot returns a copy of the current values and flags.
func (s *Set) Snapshot() Snapshot {
	return Snapshot{
		Values:        s.Values(make([]schema.IndicatorValue, 0, len(s.indicators))),
		Stale:         s.stale,
		ReseedExpired: s.expired,
		StaleSince:    s.staleSince,
	}
}
