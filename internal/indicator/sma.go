package indicator

import (
	"fmt"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

// SMA is a simple moving average over the last W prices.
// The running sum is kept on scaled integers so the window average is exact.
type SMA struct {
	window int
	factor float64
	buf    []schema.Price
	pos    int
	count  int
	sum    int64
}

// NewSMA creates a simple moving average.
func NewSMA(window int, scale schema.Scale) *SMA {
	if window <= 0 {
		window = 1
	}
	return &SMA{
		window: window,
		factor: scale.Factor(),
		buf:    make([]schema.Price, window),
	}
}

func (s *SMA) Name() string { return fmt.Sprintf("SMA-%d", s.window) }

func (s *SMA) Window() int { return s.window }

func (s *SMA) Update(price schema.Price) float64 {
	if s.count == s.window {
		s.sum -= int64(s.buf[s.pos])
	} else {
		s.count++
	}
	s.buf[s.pos] = price
	s.sum += int64(price)
	s.pos = (s.pos + 1) % s.window
	return s.Value()
}

// Value returns the average of the samples seen so far, up to the window.
func (s *SMA) Value() float64 {
	if s.count == 0 {
		return 0
	}
	return float64(s.sum) / (float64(s.count) * s.factor)
}

// Sum returns the scaled integer sum of the samples in the window.
func (s *SMA) Sum() int64 { return s.sum }

func (s *SMA) Ready() bool { return s.count == s.window }

func (s *SMA) Samples() int { return s.count }

func (s *SMA) Reset() {
	clear(s.buf)
	s.pos = 0
	s.count = 0
	s.sum = 0
}
