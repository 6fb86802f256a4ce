package feed

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Backoff defines reconnect delays: Base * Multiplier^(attempt-1), capped at Max,
// spread by +/- Jitter. Reconnects stop after MaxRetries failed attempts.
type Backoff struct {
	Base       time.Duration `mapstructure:"base"`
	Max        time.Duration `mapstructure:"max"`
	Multiplier float64       `mapstructure:"multiplier"`
	Jitter     float64       `mapstructure:"jitter"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// DefaultBackoff provides conservative reconnect defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:       250 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
		MaxRetries: 10,
	}
}

// Validate checks the backoff bounds.
func (b Backoff) Validate() error {
	if b.Base < 0 || b.Max < 0 {
		return fmt.Errorf("invalid backoff: durations must be >= 0")
	}
	if b.Max > 0 && b.Base > b.Max {
		return fmt.Errorf("invalid backoff: base %s exceeds max %s", b.Base, b.Max)
	}
	if b.Jitter < 0 || b.Jitter > 1 {
		return fmt.Errorf("invalid backoff: jitter must be between 0 and 1")
	}
	if b.MaxRetries <= 0 {
		return fmt.Errorf("invalid backoff: max retries must be > 0")
	}
	return nil
}

// WithDefaults fills unset fields from DefaultBackoff. Jitter zero is kept.
func (b Backoff) WithDefaults() Backoff {
	def := DefaultBackoff()
	if b.Base == 0 {
		b.Base = def.Base
	}
	if b.Max == 0 {
		b.Max = def.Max
	}
	if b.Multiplier == 0 {
		b.Multiplier = def.Multiplier
	}
	if b.MaxRetries == 0 {
		b.MaxRetries = def.MaxRetries
	}
	return b
}

// Exhausted reports whether attempt (1-based) is past the retry cap.
func (b Backoff) Exhausted(attempt int) bool {
	return attempt > max(b.MaxRetries, 1)
}

// Next returns the delay before the given attempt (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	limit := b.Max
	if limit <= 0 {
		limit = 30 * time.Second
	}
	factor := b.Multiplier
	if factor <= 1 {
		factor = 2.0
	}

	wait := base
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > limit {
			wait = limit
			break
		}
		wait = next
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := min(b.Jitter, 1)
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}
