// Package chaos injects feed faults into a tick stream so the adapter's
// gap, duplicate and reconnect handling can be exercised end to end.
package chaos

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/codec"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// Config selects the faults to inject. The zero value injects nothing.
type Config struct {
	Seed          uint64  `mapstructure:"seed"`
	DropRate      float64 `mapstructure:"drop_rate"`
	DuplicateRate float64 `mapstructure:"duplicate_rate"`
	// CorruptRate replaces the price with an unparsable value.
	CorruptRate float64 `mapstructure:"corrupt_rate"`
	// ReorderWindow holds that many ticks and releases them in random order. 0 and 1 disable it.
	ReorderWindow int           `mapstructure:"reorder_window"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	// DisconnectEvery closes the stream after this many ticks. Zero disables it.
	DisconnectEvery int `mapstructure:"disconnect_every"`
}

// Enabled reports whether any fault is configured.
func (c Config) Enabled() bool {
	return c.DropRate > 0 || c.DuplicateRate > 0 || c.CorruptRate > 0 ||
		c.ReorderWindow > 1 || c.MaxDelay > 0 || c.DisconnectEvery > 0
}

func (c Config) Validate() error {
	var problems []string
	for _, r := range []struct {
		name string
		v    float64
	}{{"drop_rate", c.DropRate}, {"duplicate_rate", c.DuplicateRate}, {"corrupt_rate", c.CorruptRate}} {
		if r.v < 0 || r.v > 1 {
			problems = append(problems, fmt.Sprintf("%s %v outside [0, 1]", r.name, r.v))
		}
	}
	if c.ReorderWindow < 0 {
		problems = append(problems, "reorder_window must be >= 0")
	}
	if c.MaxDelay < 0 {
		problems = append(problems, "max_delay must be >= 0")
	}
	if c.DisconnectEvery < 0 {
		problems = append(problems, "disconnect_every must be >= 0")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: chaos config: %s", exception.ErrInvalidArgument, strings.Join(problems, "; "))
	}
	return nil
}

// Stats counts the faults injected so far.
type Stats struct {
	Seen       uint64 `json:"seen"`
	Dropped    uint64 `json:"dropped"`
	Duplicated uint64 `json:"duplicated"`
	Corrupted  uint64 `json:"corrupted"`
	Delayed    uint64 `json:"delayed"`
}

// Engine applies the configured faults. It is not safe for concurrent use.
// A nil Engine passes ticks through unchanged.
type Engine struct {
	cfg    Config
	rng    *rand.Rand
	window []codec.Tick
	stats  Stats
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UTC().UnixNano())
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed>>1|1)),
	}, nil
}

// DisconnectEvery returns the forced disconnect period, zero when disabled.
func (e *Engine) DisconnectEvery() int {
	if e == nil {
		return 0
	}
	return e.cfg.DisconnectEvery
}

func (e *Engine) Stats() Stats {
	if e == nil {
		return Stats{}
	}
	return e.stats
}

// Process feeds one tick through the faults and returns what leaves the engine now.
func (e *Engine) Process(t codec.Tick) []codec.Tick {
	if e == nil {
		return []codec.Tick{t}
	}
	e.stats.Seen++
	if e.hit(e.cfg.DropRate) {
		e.stats.Dropped++
		return nil
	}
	t = e.delay(t)
	if e.hit(e.cfg.CorruptRate) {
		e.stats.Corrupted++
		t.Price = "corrupt"
	}
	if e.cfg.ReorderWindow <= 1 {
		return e.emit(t)
	}
	e.window = append(e.window, t)
	if len(e.window) < e.cfg.ReorderWindow {
		return nil
	}
	return e.emit(e.takeRandom())
}

// Flush releases the ticks still held by the reorder window.
func (e *Engine) Flush() []codec.Tick {
	if e == nil || len(e.window) == 0 {
		return nil
	}
	var out []codec.Tick
	for len(e.window) > 0 {
		out = append(out, e.emit(e.takeRandom())...)
	}
	return out
}

func (e *Engine) hit(rate float64) bool {
	return rate > 0 && e.rng.Float64() < rate
}

// takeRandom swaps a random held tick to the end and pops it.
func (e *Engine) takeRandom() codec.Tick {
	last := len(e.window) - 1
	i := e.rng.IntN(len(e.window))
	e.window[i], e.window[last] = e.window[last], e.window[i]
	t := e.window[last]
	e.window = e.window[:last]
	return t
}

func (e *Engine) emit(t codec.Tick) []codec.Tick {
	if e.hit(e.cfg.DuplicateRate) {
		e.stats.Duplicated++
		return []codec.Tick{t, t}
	}
	return []codec.Tick{t}
}

// delay pushes the receive time of t up to MaxDelay past its event time.
func (e *Engine) delay(t codec.Tick) codec.Tick {
	if e.cfg.MaxDelay <= 0 {
		return t
	}
	d := e.rng.Int64N(e.cfg.MaxDelay.Nanoseconds() + 1)
	if d == 0 {
		return t
	}
	switch {
	case t.TsRecv > 0:
		t.TsRecv += d
	case t.TsEvent > 0:
		t.TsRecv = t.TsEvent + d
	default:
		return t
	}
	e.stats.Delayed++
	return t
}
