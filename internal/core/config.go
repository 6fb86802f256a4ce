package core

import (
	"fmt"
	"time"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/indicator"
)

const (
	DefaultLanes          = 8
	DefaultLaneQueue      = 4096
	DefaultReseedTimeout  = 5 * time.Minute
	DefaultReseedInterval = time.Second
	DefaultSweepInterval  = time.Second
)

// DefaultIndicators is the indicator set computed for every symbol.
var DefaultIndicators = []string{"sma:20", "ema:20", "rsi:14", "bollinger:20:2", "crossover:10:30", "volatility:20"}

// Config controls sharding and the periodic tasks of the engine.
type Config struct {
	Lanes     int
	LaneQueue int
	// ReseedTimeout bounds how long indicators may stay stale after a gap.
	ReseedTimeout  time.Duration
	ReseedInterval time.Duration
	SweepInterval  time.Duration
	Indicators     []indicator.Spec
	// Location defines the session day used for open, high and low.
	Location *time.Location

	// SnapshotPath enables periodic snapshot files when set.
	SnapshotPath     string
	SnapshotInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Lanes <= 0 {
		c.Lanes = DefaultLanes
	}
	if c.LaneQueue <= 0 {
		c.LaneQueue = DefaultLaneQueue
	}
	if c.ReseedTimeout <= 0 {
		c.ReseedTimeout = DefaultReseedTimeout
	}
	if c.ReseedInterval <= 0 {
		c.ReseedInterval = DefaultReseedInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.Indicators == nil {
		c.Indicators = indicator.MustParseSpecs(DefaultIndicators...)
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.SnapshotPath != "" && c.SnapshotInterval <= 0 {
		c.SnapshotInterval = time.Minute
	}
	return c
}

// Validate checks the engine config.
func (c Config) Validate() error {
	if c.Lanes < 0 || c.LaneQueue < 0 {
		return fmt.Errorf("invalid core config: lanes and lane queue must be >= 0")
	}
	for _, spec := range c.Indicators {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("invalid core config: %w", err)
		}
	}
	return nil
}
