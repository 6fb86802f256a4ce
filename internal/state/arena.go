package state

import (
	"iter"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/indicator"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

// IndicatorFactory builds the indicator set of a new symbol.
type IndicatorFactory func(symbol string, scale schema.ScaleSpec) (*indicator.Set, error)

// Arena holds the symbol states of one lane.
// It is not safe for concurrent use.
type Arena struct {
	states   []*SymbolState
	index    map[string]int
	newIndic IndicatorFactory
}

// NewArena creates an empty arena. A nil factory leaves indicators disabled.
func NewArena(factory IndicatorFactory) *Arena {
	return &Arena{
		index:    make(map[string]int),
		newIndic: factory,
	}
}

// Ensure returns the state of symbol, creating it on first use.
func (a *Arena) Ensure(symbol string, scale schema.ScaleSpec) (*SymbolState, error) {
	if i, ok := a.index[symbol]; ok {
		return a.states[i], nil
	}
	st := &SymbolState{Symbol: symbol, Scale: scale}
	if a.newIndic != nil {
		set, err := a.newIndic(symbol, scale)
		if err != nil {
			return nil, err
		}
		st.Indicators = set
	}
	a.index[symbol] = len(a.states)
	a.states = append(a.states, st)
	return st, nil
}

// Get returns the state of symbol if it exists.
func (a *Arena) Get(symbol string) (*SymbolState, bool) {
	i, ok := a.index[symbol]
	if !ok {
		return nil, false
	}
	return a.states[i], true
}

// Len returns the number of symbols.
func (a *Arena) Len() int {
	return len(a.states)
}

// All iterates states in creation order.
func (a *Arena) All() iter.Seq[*SymbolState] {
	return func(yield func(*SymbolState) bool) {
		for _, st := range a.states {
			if !yield(st) {
				return
			}
		}
	}
}

// Reset drops every state.
func (a *Arena) Reset() {
	clear(a.index)
	clear(a.states)
	a.states = a.states[:0]
}
