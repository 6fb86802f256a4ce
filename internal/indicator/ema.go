package indicator

import (
	"fmt"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

// EMA is an exponential moving average with multiplier 2/(W+1).
// It is seeded with the simple average of the first W samples.
type EMA struct {
	window     int
	factor     float64
	multiplier float64
	seedSum    float64
	count      int
	value      float64
}

// NewEMA creates an exponential moving average.
func NewEMA(window int, scale schema.Scale) *EMA {
	if window <= 0 {
		window = 1
	}
	return &EMA{
		window:     window,
		factor:     scale.Factor(),
		multiplier: 2 / float64(window+1),
	}
}

func (e *EMA) Name() string { return fmt.Sprintf("EMA-%d", e.window) }

func (e *EMA) Window() int { return e.window }

func (e *EMA) Update(price schema.Price) float64 {
	p := float64(price) / e.factor
	e.count++
	switch {
	case e.count < e.window:
		e.seedSum += p
		e.value = e.seedSum / float64(e.count)
	case e.count == e.window:
		e.seedSum += p
		e.value = e.seedSum / float64(e.window)
	default:
		e.value = (p-e.value)*e.multiplier + e.value
	}
	return e.value
}

func (e *EMA) Value() float64 { return e.value }

func (e *EMA) Ready() bool { return e.count >= e.window }

func (e *EMA) Samples() int { return e.count }

func (e *EMA) Reset() {
	e.seedSum = 0
	e.count = 0
	e.value = 0
}
