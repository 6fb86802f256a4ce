package feed

import (
	"fmt"
	"sync"
	"time"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// Transition is one observed state change of a feed session.
type Transition struct {
	From   schema.ConnState
	To     schema.ConnState
	At     time.Time
	Reason string
}

// Observer is notified after every state change. It runs on the adapter goroutine.
type Observer func(Transition)

var transitions = map[schema.ConnState][]schema.ConnState{
	schema.ConnDisconnected: {schema.ConnConnecting},
	schema.ConnConnecting:   {schema.ConnLive, schema.ConnDisconnected},
	schema.ConnLive:         {schema.ConnDegraded, schema.ConnDisconnected},
	schema.ConnDegraded:     {schema.ConnLive, schema.ConnDisconnected},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to schema.ConnState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateMachine tracks the connection state of one feed session.
//
//	Disconnected -> Connecting -> Live <-> Degraded
//	Connecting, Live, Degraded -> Disconnected
type StateMachine struct {
	mu        sync.Mutex
	state     schema.ConnState
	since     time.Time
	observers []Observer
	now       func() time.Time
}

// NewStateMachine starts in Disconnected.
func NewStateMachine(now func() time.Time, observers ...Observer) *StateMachine {
	if now == nil {
		now = time.Now
	}
	return &StateMachine{
		state:     schema.ConnDisconnected,
		since:     now(),
		observers: observers,
		now:       now,
	}
}

// State returns the current state and when it was entered.
func (m *StateMachine) State() (schema.ConnState, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.since
}

// Observe adds an observer.
func (m *StateMachine) Observe(o Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

// Transition moves to the next state. Moving to the current state is a no-op.
func (m *StateMachine) Transition(to schema.ConnState, reason string) (Transition, error) {
	m.mu.Lock()
	from := m.state
	if from == to {
		m.mu.Unlock()
		return Transition{From: from, To: to}, nil
	}
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return Transition{}, fmt.Errorf("%w: %s -> %s", exception.ErrInvalidTransition, from, to)
	}
	tr := Transition{From: from, To: to, At: m.now(), Reason: reason}
	m.state = to
	m.since = tr.At
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	for _, o := range observers {
		o(tr)
	}
	return tr, nil
}
