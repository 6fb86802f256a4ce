package indicator

import (
	"fmt"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

// RSI is the relative strength index with Wilder smoothing.
// The first average gain and loss are simple means of the first W deltas.
type RSI struct {
	period  int
	factor  float64
	prev    float64
	samples int
	deltas  int
	avgGain float64
	avgLoss float64
	value   float64
}

// NewRSI creates a relative strength index over period deltas.
func NewRSI(period int, scale schema.Scale) *RSI {
	if period <= 0 {
		period = 1
	}
	return &RSI{period: period, factor: scale.Factor()}
}

func (r *RSI) Name() string { return fmt.Sprintf("RSI-%d", r.period) }

// Window is period+1 samples, since period deltas need one more price.
func (r *RSI) Window() int { return r.period + 1 }

func (r *RSI) Update(price schema.Price) float64 {
	p := float64(price) / r.factor
	r.samples++
	if r.samples == 1 {
		r.prev = p
		return r.value
	}

	delta := p - r.prev
	r.prev = p
	var gain, loss float64
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	r.deltas++
	n := float64(r.period)
	switch {
	case r.deltas < r.period:
		r.avgGain += gain
		r.avgLoss += loss
		return r.value
	case r.deltas == r.period:
		r.avgGain = (r.avgGain + gain) / n
		r.avgLoss = (r.avgLoss + loss) / n
	default:
		r.avgGain = (r.avgGain*(n-1) + gain) / n
		r.avgLoss = (r.avgLoss*(n-1) + loss) / n
	}
	r.value = rsiValue(r.avgGain, r.avgLoss)
	return r.value
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func (r *RSI) Value() float64 { return r.value }

func (r *RSI) Ready() bool { return r.deltas >= r.period }

func (r *RSI) Samples() int { return r.samples }

func (r *RSI) Reset() {
	*r = RSI{period: r.period, factor: r.factor}
}
