package feed

import (
	"context"
	"time"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/codec"
)

// Source dials an upstream feed.
type Source interface {
	Name() string
	Dial(ctx context.Context) (Stream, error)
}

// Stream is the lazy tick sequence of one connection. A stream is never
// restarted: after an error the adapter dials a new one.
//
// Recv returns an error matching exception.ErrMalformedEvent for a payload
// that cannot be decoded; the stream stays usable. Any other error ends it.
type Stream interface {
	Recv(ctx context.Context) (codec.Tick, error)
	Close() error
}

// Resumer is implemented by streams that can continue from a checkpoint of
// the last sequence per symbol. A resumed stream does not produce reconnect gaps.
type Resumer interface {
	Resume(ctx context.Context, checkpoint map[string]uint64) error
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
