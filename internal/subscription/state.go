package subscription

import (
	"fmt"

	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// State is the delivery state of a client session.
type State uint8

const (
	StateIdle State = iota
	StateSubscribing
	StateLive
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribing:
		return "subscribing"
	case StateLive:
		return "live"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// transitions lists the allowed moves:
//
//	Idle -> Subscribing -> Live <-> Degraded
//	Subscribing, Live, Degraded -> Idle
var transitions = map[State][]State{
	StateIdle:        {StateSubscribing},
	StateSubscribing: {StateLive, StateIdle},
	StateLive:        {StateDegraded, StateIdle},
	StateDegraded:    {StateLive, StateIdle},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition validates from -> to. Moving to the current state is a no-op.
func transition(from, to State) (State, error) {
	if from == to {
		return to, nil
	}
	if !canTransition(from, to) {
		return from, fmt.Errorf("%w: session %s -> %s", exception.ErrInvalidTransition, from, to)
	}
	return to, nil
}
