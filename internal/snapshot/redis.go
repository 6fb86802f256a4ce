package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/bus"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

const (
	defaultMirrorPrefix = "mde"
	defaultMirrorQueue  = 4096
	defaultMirrorBatch  = 128
	defaultMirrorTTL    = 24 * time.Hour
	warmScanCount       = 256
)

// RedisConfig configures a RedisMirror.
type RedisConfig struct {
	Prefix     string
	TTL        time.Duration
	QueueDepth int
	BatchSize  int
}

// RedisMirror copies accepted store writes to Redis through a bounded queue.
// When Redis falls behind, the oldest pending writes are dropped.
type RedisMirror struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	batch  int
	queue  *bus.Queue[schema.Update]
}

// NewRedisMirror creates a mirror. Run must be called to drain the queue.
func NewRedisMirror(client redis.UniversalClient, cfg RedisConfig) *RedisMirror {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultMirrorPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultMirrorTTL
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultMirrorQueue
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultMirrorBatch
	}
	return &RedisMirror{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		batch:  cfg.BatchSize,
		queue:  bus.NewQueue[schema.Update](cfg.QueueDepth),
	}
}

// Enqueue schedules u for writing. It never blocks.
func (m *RedisMirror) Enqueue(u schema.Update) bool {
	ok, _ := m.queue.Push(u)
	return ok
}

// Dropped returns the number of writes evicted before reaching Redis.
func (m *RedisMirror) Dropped() uint64 {
	return m.queue.Dropped()
}

// Pending returns the number of queued writes.
func (m *RedisMirror) Pending() int {
	return m.queue.Len()
}

// Run drains the queue until ctx is done or Close is called.
func (m *RedisMirror) Run(ctx context.Context) error {
	pending := make([]schema.Update, 0, m.batch)
	for {
		u, err := m.queue.Pop(ctx)
		if err != nil {
			// closed or cancelled
			return nil
		}
		pending = append(pending[:0], u)
		for len(pending) < m.batch {
			next, ok := m.queue.TryPop()
			if !ok {
				break
			}
			pending = append(pending, next)
		}
		if err := m.flush(ctx, pending); err != nil {
			logs.Warnf("snapshot mirror: flush %d entries, err: %+v", len(pending), err)
		}
	}
}

// Close stops Run and discards pending writes.
func (m *RedisMirror) Close() {
	m.queue.Close()
}

// Flush writes updates synchronously.
func (m *RedisMirror) Flush(ctx context.Context, updates ...schema.Update) error {
	return m.flush(ctx, updates)
}

func (m *RedisMirror) flush(ctx context.Context, updates []schema.Update) error {
	pipe := m.client.Pipeline()
	var n int
	for _, u := range updates {
		key, ok := m.key(u)
		if !ok {
			continue
		}
		data, err := json.Marshal(u)
		if err != nil {
			return errors.Wrapf(err, "marshal %s", key)
		}
		pipe.Set(ctx, key, data, m.ttl)
		n++
	}
	if n == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "exec pipeline")
	}
	return nil
}

// Warm loads every mirrored entry into store. Entries older than the ones
// already present are skipped.
func (m *RedisMirror) Warm(ctx context.Context, store *Store) (int, error) {
	var (
		cursor uint64
		loaded int
	)
	for {
		keys, next, err := m.client.Scan(ctx, cursor, m.prefix+":*", warmScanCount).Result()
		if err != nil {
			return loaded, errors.Wrap(err, "scan snapshot keys")
		}
		if len(keys) > 0 {
			values, err := m.client.MGet(ctx, keys...).Result()
			if err != nil {
				return loaded, errors.Wrap(err, "mget snapshot keys")
			}
			for i, raw := range values {
				s, ok := raw.(string)
				if !ok {
					continue
				}
				var u schema.Update
				if err := json.Unmarshal([]byte(s), &u); err != nil {
					logs.Warnf("snapshot mirror: skip %s, err: %+v", keys[i], err)
					continue
				}
				if store.Put(u) == nil {
					loaded++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return loaded, nil
		}
	}
}

func (m *RedisMirror) key(u schema.Update) (string, bool) {
	switch {
	case u.Kind == schema.UpdateSymbol && u.Symbol != nil:
		return m.prefix + ":symbol:" + u.Symbol.Symbol, true
	case u.Kind == schema.UpdatePortfolio && u.Portfolio != nil:
		return m.prefix + ":portfolio:" + u.Portfolio.ID, true
	case u.Kind == schema.UpdateWatchlist && u.Watchlist != nil:
		return m.prefix + ":watchlist:" + u.Watchlist.ID, true
	default:
		return "", false
	}
}
