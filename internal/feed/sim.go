package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/chaos"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/codec"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/mdg"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// SimSource serves a synthetic random walk with optional fault injection.
// Its streams share one generator, so a new stream resumes the sequence.
type SimSource struct {
	name     string
	interval time.Duration
	now      func() time.Time

	mu    sync.Mutex
	gen   *mdg.Generator
	chaos *chaos.Engine
}

// NewSimSource creates a synthetic source. A zero interval emits as fast as Recv is called.
func NewSimSource(name string, gen *mdg.Generator, chaosCfg chaos.Config, interval time.Duration) (*SimSource, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: generator", exception.ErrNilInstance)
	}
	s := &SimSource{name: name, gen: gen, interval: interval, now: time.Now}
	if chaosCfg.Enabled() {
		engine, err := chaos.NewEngine(chaosCfg)
		if err != nil {
			return nil, err
		}
		s.chaos = engine
	}
	return s, nil
}

func (s *SimSource) Name() string { return "sim:" + s.name }

func (s *SimSource) Dial(_ context.Context) (Stream, error) {
	return &simStream{src: s}, nil
}

type simStream struct {
	src     *SimSource
	pending []codec.Tick
	count   int
	closed  bool
}

func (st *simStream) Recv(ctx context.Context) (codec.Tick, error) {
	for {
		if st.closed {
			return codec.Tick{}, exception.ErrStreamClosed
		}
		if len(st.pending) > 0 {
			t := st.pending[0]
			st.pending = st.pending[1:]
			return t, nil
		}
		if err := sleepContext(ctx, st.src.interval); err != nil {
			return codec.Tick{}, err
		}
		if err := ctx.Err(); err != nil {
			return codec.Tick{}, err
		}

		st.src.mu.Lock()
		if every := st.src.chaos.DisconnectEvery(); every > 0 && st.count >= every {
			st.src.mu.Unlock()
			st.closed = true
			return codec.Tick{}, fmt.Errorf("%w: simulated disconnect after %d ticks", exception.ErrStreamClosed, st.count)
		}
		now := st.src.now()
		tick := st.src.gen.Next(now)
		tick.TsRecv = now.UnixNano()
		st.pending = append(st.pending, st.src.chaos.Process(tick)...)
		st.src.mu.Unlock()
		st.count++
	}
}

// Resume is a no-op: the shared generator continues where the last stream stopped.
func (st *simStream) Resume(_ context.Context, _ map[string]uint64) error {
	return nil
}

func (st *simStream) Close() error {
	st.closed = true
	return nil
}
