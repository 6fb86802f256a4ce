package subscription

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/bus"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

type viewKey struct {
	kind ViewKind
	id   string
}

// Session is one connected client. Its writer goroutine is the only caller of
// the transport.
type Session struct {
	id        string
	owner     string
	transport Transport
	queue     *bus.Queue[Envelope]
	cancel    context.CancelFunc
	done      chan struct{}
	now       func() time.Time

	mu       sync.Mutex
	state    State
	views    map[viewKey][]string
	topics   map[string]int
	symbols  map[string]int
	degraded map[string]struct{}
	versions map[string]uint64
	seq      uint64

	delivered atomic.Uint64
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Owner returns the authenticated owner of the session.
func (s *Session) Owner() string { return s.owner }

// State returns the delivery state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Symbols returns the symbols the session needs, in order.
func (s *Session) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.symbols))
}

// Topics returns every bus topic the session holds, in order.
func (s *Session) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.topics))
}

// Degraded returns the needed symbols currently flagged stale.
func (s *Session) Degraded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.degraded))
}

// Delivered returns how many envelopes reached the transport.
func (s *Session) Delivered() uint64 { return s.delivered.Load() }

// Dropped returns how many envelopes were evicted before delivery.
func (s *Session) Dropped() uint64 { return s.queue.Dropped() }

// Pending returns the number of queued envelopes.
func (s *Session) Pending() int { return s.queue.Len() }

// Done is closed when the writer goroutine exits.
func (s *Session) Done() <-chan struct{} { return s.done }

// addView records the topics of a view and returns the ones new to the session.
// Caller holds mu.
func (s *Session) addView(key viewKey, topics []string) []string {
	s.views[key] = topics
	var added []string
	for _, t := range topics {
		if s.topics[t] == 0 {
			added = append(added, t)
		}
		s.topics[t]++
		if isSymbolTopic(t) {
			s.symbols[t]++
		}
	}
	if s.state == StateIdle {
		s.state, _ = transition(s.state, StateSubscribing)
	}
	return added
}

// removeView forgets a view and returns the topics the session no longer needs.
// Caller holds mu.
func (s *Session) removeView(key viewKey) ([]string, bool) {
	topics, ok := s.views[key]
	if !ok {
		return nil, false
	}
	delete(s.views, key)
	var released []string
	for _, t := range topics {
		s.topics[t]--
		if isSymbolTopic(t) {
			if s.symbols[t]--; s.symbols[t] == 0 {
				delete(s.symbols, t)
				delete(s.degraded, t)
			}
		}
		if s.topics[t] == 0 {
			delete(s.topics, t)
			delete(s.versions, t)
			released = append(released, t)
		}
	}
	if len(s.views) == 0 {
		s.state, _ = transition(s.state, StateIdle)
	} else if s.state == StateDegraded && len(s.degraded) == 0 {
		s.state, _ = transition(s.state, StateLive)
	}
	return released, true
}

// newSymbols counts symbols of topics the session does not need yet.
// Caller holds mu.
func (s *Session) newSymbols(topics []string) int {
	var n int
	for _, t := range topics {
		if isSymbolTopic(t) && s.symbols[t] == 0 {
			n++
		}
	}
	return n
}

// deliver enqueues u unless the session already has a newer version of its key.
// It returns false when the enqueue evicted an older envelope.
func (s *Session) deliver(u schema.Update, snapshot bool) bool {
	env, ok := envelopeOf(u)
	if !ok {
		return true
	}

	s.mu.Lock()
	if _, needed := s.topics[u.Key]; !needed {
		s.mu.Unlock()
		return true
	}
	if v := u.Version(); v > 0 {
		if v <= s.versions[u.Key] {
			s.mu.Unlock()
			return true
		}
		s.versions[u.Key] = v
	}
	s.track(u)
	s.seq++
	env.Seq = s.seq
	env.Ts = s.now().UTC().UnixNano()
	env.Snapshot = snapshot
	_, evicted := s.queue.Push(env)
	s.mu.Unlock()
	return !evicted
}

// track moves between Live and Degraded from the staleness of needed symbols.
// Caller holds mu.
func (s *Session) track(u schema.Update) {
	switch u.Kind {
	case schema.UpdateStaleness:
		if _, ok := s.symbols[u.Staleness.Symbol]; !ok {
			return
		}
		s.degraded[u.Staleness.Symbol] = struct{}{}
		if s.state == StateLive {
			s.state, _ = transition(s.state, StateDegraded)
		}
	case schema.UpdateSymbol:
		if u.Symbol.Stale {
			return
		}
		delete(s.degraded, u.Symbol.Symbol)
		if s.state == StateDegraded && len(s.degraded) == 0 {
			s.state, _ = transition(s.state, StateLive)
		}
	}
}

func (s *Session) markLive() {
	s.mu.Lock()
	if s.state == StateSubscribing {
		s.state, _ = transition(s.state, StateLive)
		if len(s.degraded) > 0 {
			s.state, _ = transition(s.state, StateDegraded)
		}
	}
	s.mu.Unlock()
}

// write pushes queued envelopes to the transport until the session closes.
func (s *Session) write(ctx context.Context, onError func(error)) {
	defer close(s.done)
	for {
		env, err := s.queue.Pop(ctx)
		if err != nil {
			return
		}
		if err := s.transport.Send(ctx, env); err != nil {
			if ctx.Err() == nil {
				onError(err)
			}
			return
		}
		s.delivered.Add(1)
		s.markLive()
	}
}

func isSymbolTopic(topic string) bool {
	return !strings.HasPrefix(topic, schema.PortfolioTopic("")) && !strings.HasPrefix(topic, schema.WatchlistTopic(""))
}
