package indicator

import (
	"fmt"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

// Crossover compares a short and a long simple moving average.
// Value is short minus long.
type Crossover struct {
	short *SMA
	long  *SMA
}

// NewCrossover creates a moving average crossover signal.
func NewCrossover(short, long int, scale schema.Scale) *Crossover {
	return &Crossover{
		short: NewSMA(short, scale),
		long:  NewSMA(long, scale),
	}
}

func (c *Crossover) Name() string {
	return fmt.Sprintf("XOVER-%d-%d", c.short.Window(), c.long.Window())
}

func (c *Crossover) Window() int { return c.long.Window() }

func (c *Crossover) Update(price schema.Price) float64 {
	c.short.Update(price)
	c.long.Update(price)
	return c.Value()
}

func (c *Crossover) Value() float64 {
	if !c.Ready() {
		return 0
	}
	return c.short.Value() - c.long.Value()
}

// Signal is Buy while the short average is above the long one, Sell while below.
func (c *Crossover) Signal() Signal {
	if !c.Ready() {
		return SignalHold
	}
	// Compare sums scaled to the same window to stay on integers.
	s := c.short.Sum() * int64(c.long.Window())
	l := c.long.Sum() * int64(c.short.Window())
	switch {
	case s > l:
		return SignalBuy
	case s < l:
		return SignalSell
	default:
		return SignalHold
	}
}

func (c *Crossover) Ready() bool { return c.long.Ready() }

func (c *Crossover) Samples() int { return c.long.Samples() }

func (c *Crossover) Reset() {
	c.short.Reset()
	c.long.Reset()
}
