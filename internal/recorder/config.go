package recorder

import (
	"fmt"
	"strings"
	"time"

	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

const (
	DefaultSegmentMaxBytes    int64 = 256 << 20
	DefaultSegmentMaxDuration       = 15 * time.Minute
	DefaultQueueSize                = 8192
	DefaultBufferSize               = 128 << 10
	DefaultFlushInterval            = 100 * time.Millisecond
	DefaultSyncInterval             = time.Second
	DefaultFilePrefix               = "ingress"
)

// Config controls the ingress WAL writer.
type Config struct {
	Dir                string
	FilePrefix         string
	SegmentMaxBytes    int64
	SegmentMaxDuration time.Duration
	QueueSize          int
	BufferSize         int
	// FlushInterval and SyncInterval of zero leave flushing to rotation and Close.
	FlushInterval time.Duration
	SyncInterval  time.Duration
}

// DefaultConfig returns the writer settings used by the engine for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                dir,
		FilePrefix:         DefaultFilePrefix,
		SegmentMaxBytes:    DefaultSegmentMaxBytes,
		SegmentMaxDuration: DefaultSegmentMaxDuration,
		QueueSize:          DefaultQueueSize,
		BufferSize:         DefaultBufferSize,
		FlushInterval:      DefaultFlushInterval,
		SyncInterval:       DefaultSyncInterval,
	}
}

func (c Config) withDefaults() Config {
	if c.FilePrefix == "" {
		c.FilePrefix = DefaultFilePrefix
	}
	if c.SegmentMaxBytes == 0 {
		c.SegmentMaxBytes = DefaultSegmentMaxBytes
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	return c
}

// Validate reports every unusable field at once.
func (c Config) Validate() error {
	var problems []string
	if c.Dir == "" {
		problems = append(problems, "dir is empty")
	}
	if strings.ContainsAny(c.FilePrefix, `/\`) || c.FilePrefix == "" {
		problems = append(problems, fmt.Sprintf("file prefix %q is not a plain name", c.FilePrefix))
	}
	if c.SegmentMaxBytes <= recordHeaderSize+recordChecksumSize {
		problems = append(problems, "segment max bytes is too small")
	}
	if c.SegmentMaxDuration < 0 {
		problems = append(problems, "segment max duration is negative")
	}
	if c.QueueSize <= 0 {
		problems = append(problems, "queue size must be > 0")
	}
	if c.BufferSize <= 0 {
		problems = append(problems, "buffer size must be > 0")
	}
	if c.FlushInterval < 0 || c.SyncInterval < 0 {
		problems = append(problems, "flush and sync intervals must be >= 0")
	}
	return invalid("recorder", problems)
}

// PlaybackConfig controls WAL playback.
type PlaybackConfig struct {
	Dir        string
	FilePrefix string
	// Speed scales the recorded gaps between records. Zero replays as fast as possible.
	Speed       float64
	UseRecvTime bool
	// Symbols restricts playback to these symbols. Adapter-wide messages always pass.
	Symbols         []string
	DisableChecksum bool
	MaxPayloadSize  int
}

func (c PlaybackConfig) withDefaults() PlaybackConfig {
	if c.FilePrefix == "" {
		c.FilePrefix = DefaultFilePrefix
	}
	return c
}

// Validate reports every unusable field at once.
func (c PlaybackConfig) Validate() error {
	var problems []string
	if c.Dir == "" {
		problems = append(problems, "dir is empty")
	}
	if c.Speed < 0 {
		problems = append(problems, "speed must be >= 0")
	}
	if c.MaxPayloadSize < 0 {
		problems = append(problems, "max payload size must be >= 0")
	}
	return invalid("playback", problems)
}

func invalid(scope string, problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s config: %s", exception.ErrInvalidArgument, scope, strings.Join(problems, "; "))
}
