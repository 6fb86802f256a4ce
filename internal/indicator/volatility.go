package indicator

import (
	"fmt"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

// Volatility is the sample variance of simple returns over the last W returns.
type Volatility struct {
	window  int
	prev    schema.Price
	samples int
	w       floatWindow
}

// NewVolatility creates a return variance indicator. The scale is not needed
// since returns are ratios.
func NewVolatility(window int, _ schema.Scale) *Volatility {
	if window <= 0 {
		window = 1
	}
	return &Volatility{window: window, w: newFloatWindow(window)}
}

func (v *Volatility) Name() string { return fmt.Sprintf("VOL-%d", v.window) }

func (v *Volatility) Window() int { return v.window + 1 }

func (v *Volatility) Update(price schema.Price) float64 {
	v.samples++
	if v.samples > 1 && v.prev != 0 {
		v.w.push(float64(price-v.prev) / float64(v.prev))
	}
	v.prev = price
	return v.Value()
}

func (v *Volatility) Value() float64 { return v.w.variance(true) }

func (v *Volatility) Ready() bool { return v.w.full() }

func (v *Volatility) Samples() int { return v.samples }

func (v *Volatility) Reset() {
	v.prev = 0
	v.samples = 0
	v.w.reset()
}
