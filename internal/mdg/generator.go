package mdg

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/codec"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

// Config controls the synthetic random walk.
type Config struct {
	Seed uint64 `mapstructure:"seed"`
	// BasePrice is the starting price of every symbol.
	BasePrice float64 `mapstructure:"base_price"`
	// Volatility is the standard deviation of the relative price change per tick.
	Volatility float64 `mapstructure:"volatility"`
	// TradeRatio is the share of ticks emitted as trades, the rest are quotes.
	TradeRatio float64 `mapstructure:"trade_ratio"`
	MaxSize    int64   `mapstructure:"max_size"`
}

// Validate checks the generator bounds.
func (c Config) Validate() error {
	if c.BasePrice <= 0 {
		return fmt.Errorf("basePrice must be > 0")
	}
	if c.Volatility < 0 || c.Volatility >= 1 {
		return fmt.Errorf("volatility must be within [0, 1)")
	}
	if c.TradeRatio < 0 || c.TradeRatio > 1 {
		return fmt.Errorf("tradeRatio must be between 0 and 1")
	}
	return nil
}

// DefaultConfig returns a mild random walk around 100.
func DefaultConfig() Config {
	return Config{
		BasePrice:  100,
		Volatility: 0.001,
		TradeRatio: 0.5,
		MaxSize:    100,
	}
}

// Generator creates synthetic market data ticks with a per-symbol sequence.
type Generator struct {
	cfg     Config
	symbols []schema.Symbol
	prices  []float64
	seqs    []uint64
	rng     *rand.Rand
	index   int
}

// NewGenerator creates a generator for all symbols in the registry.
func NewGenerator(reg *schema.Registry, cfg Config) (*Generator, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, fmt.Errorf("registry has no symbols")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UTC().UnixNano())
	}
	symbols := slices.Collect(reg.Symbols())
	g := &Generator{
		cfg:     cfg,
		symbols: symbols,
		prices:  make([]float64, len(symbols)),
		seqs:    make([]uint64, len(symbols)),
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
	for i := range g.prices {
		g.prices[i] = cfg.BasePrice
	}
	return g, nil
}

// Symbols returns the generated symbol names.
func (g *Generator) Symbols() []string {
	out := make([]string, len(g.symbols))
	for i, s := range g.symbols {
		out[i] = s.Name
	}
	return out
}

// Next creates the next tick, cycling through the symbols.
func (g *Generator) Next(now time.Time) codec.Tick {
	i := g.index
	g.index = (g.index + 1) % len(g.symbols)
	symbol := g.symbols[i]

	scale := symbol.Scale.PriceScale
	minTick := 1 / scale.Factor()
	p := g.prices[i] * (1 + g.cfg.Volatility*g.rng.NormFloat64())
	p = math.Max(minTick, math.Round(p*scale.Factor())/scale.Factor())
	g.prices[i] = p
	g.seqs[i]++

	tick := codec.Tick{
		Symbol:  symbol.Name,
		Type:    schema.EventQuote.String(),
		Price:   codec.FormatPrice(p, int(scale)),
		Seq:     g.seqs[i],
		TsEvent: now.UnixNano(),
	}
	if g.rng.Float64() < g.cfg.TradeRatio {
		tick.Type = schema.EventTrade.String()
		tick.Size = codec.FormatPrice(float64(1+g.rng.Int64N(g.cfg.MaxSize)), 0)
	}
	return tick
}

// Seq returns the last sequence emitted for a symbol.
func (g *Generator) Seq(symbol string) uint64 {
	for i, s := range g.symbols {
		if s.Name == symbol {
			return g.seqs[i]
		}
	}
	return 0
}
