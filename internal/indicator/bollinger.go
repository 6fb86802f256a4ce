package indicator

import (
	"fmt"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

// Bollinger is a moving average with an envelope of K standard deviations.
// Value is the middle band.
type Bollinger struct {
	window int
	k      float64
	factor float64
	w      floatWindow
}

// NewBollinger creates Bollinger bands.
func NewBollinger(window int, k float64, scale schema.Scale) *Bollinger {
	if window <= 0 {
		window = 1
	}
	return &Bollinger{
		window: window,
		k:      k,
		factor: scale.Factor(),
		w:      newFloatWindow(window),
	}
}

func (b *Bollinger) Name() string { return fmt.Sprintf("BOLL-%d", b.window) }

func (b *Bollinger) Window() int { return b.window }

func (b *Bollinger) Update(price schema.Price) float64 {
	b.w.push(float64(price) / b.factor)
	return b.w.mean()
}

func (b *Bollinger) Value() float64 { return b.w.mean() }

// Bands returns the upper and lower band.
func (b *Bollinger) Bands() (upper, lower float64) {
	m := b.w.mean()
	d := b.k * b.w.stddev(false)
	return m + d, m - d
}

func (b *Bollinger) Ready() bool { return b.w.full() }

func (b *Bollinger) Samples() int { return b.w.count }

func (b *Bollinger) Reset() { b.w.reset() }
