package indicator

import "math"

// floatWindow keeps the sum and sum of squares of the last n samples.
// Sums are rebuilt from the buffer every n evictions to bound drift.
type floatWindow struct {
	buf     []float64
	pos     int
	count   int
	sum     float64
	sumSq   float64
	evicted int
}

func newFloatWindow(n int) floatWindow {
	return floatWindow{buf: make([]float64, n)}
}

func (w *floatWindow) push(v float64) {
	n := len(w.buf)
	if w.count == n {
		old := w.buf[w.pos]
		w.sum -= old
		w.sumSq -= old * old
		w.evicted++
	} else {
		w.count++
	}
	w.buf[w.pos] = v
	w.sum += v
	w.sumSq += v * v
	w.pos = (w.pos + 1) % n

	if w.evicted >= n {
		w.evicted = 0
		w.sum, w.sumSq = 0, 0
		for _, x := range w.buf {
			w.sum += x
			w.sumSq += x * x
		}
	}
}

func (w *floatWindow) full() bool { return w.count == len(w.buf) }

func (w *floatWindow) mean() float64 {
	if w.count == 0 {
		return 0
	}
	return w.sum / float64(w.count)
}

// variance returns the population variance when sample is false, else the sample variance.
func (w *floatWindow) variance(sample bool) float64 {
	n := float64(w.count)
	if w.count == 0 || (sample && w.count < 2) {
		return 0
	}
	m := w.sum / n
	ss := w.sumSq - n*m*m
	if ss < 0 {
		ss = 0
	}
	if sample {
		return ss / (n - 1)
	}
	return ss / n
}

func (w *floatWindow) stddev(sample bool) float64 {
	return math.Sqrt(w.variance(sample))
}

func (w *floatWindow) reset() {
	clear(w.buf)
	w.pos, w.count, w.evicted = 0, 0, 0
	w.sum, w.sumSq = 0, 0
}
