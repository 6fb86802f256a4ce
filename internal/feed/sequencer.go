package feed

import (
	"maps"
	"slices"
)

// SeqResult classifies an observed sequence number.
type SeqResult uint8

const (
	SeqFirst SeqResult = iota
	SeqNext
	SeqGap
	SeqDuplicate
)

// Sequencer tracks the last sequence number per symbol of one feed session.
// It is owned by the adapter goroutine.
type Sequencer struct {
	last map[string]uint64
}

// NewSequencer creates an empty sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{last: make(map[string]uint64)}
}

// Observe records seq for symbol. For SeqGap, expected is the sequence that
// was missed first. Duplicates and older sequences leave the state unchanged.
func (s *Sequencer) Observe(symbol string, seq uint64) (res SeqResult, expected uint64) {
	last, ok := s.last[symbol]
	switch {
	case !ok:
		s.last[symbol] = seq
		return SeqFirst, seq
	case seq <= last:
		return SeqDuplicate, last + 1
	case seq == last+1:
		s.last[symbol] = seq
		return SeqNext, seq
	default:
		s.last[symbol] = seq
		return SeqGap, last + 1
	}
}

// Last returns the last sequence seen for symbol.
func (s *Sequencer) Last(symbol string) (uint64, bool) {
	v, ok := s.last[symbol]
	return v, ok
}

// Checkpoint returns a copy of the last sequence per symbol.
func (s *Sequencer) Checkpoint() map[string]uint64 {
	return maps.Clone(s.last)
}

// Symbols returns the tracked symbols in order.
func (s *Sequencer) Symbols() []string {
	return slices.Sorted(maps.Keys(s.last))
}

// Reset forgets every symbol.
func (s *Sequencer) Reset() {
	clear(s.last)
}
