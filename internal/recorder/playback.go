package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	"github.com/yanun0323/logs"
)

// Clock paces playback.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Playback replays the WAL segments of a directory in write order.
type Playback struct {
	cfg     PlaybackConfig
	clock   Clock
	symbols map[string]struct{}
}

func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Playback{cfg: cfg, clock: realClock{}}
	if len(cfg.Symbols) > 0 {
		p.symbols = make(map[string]struct{}, len(cfg.Symbols))
		for _, s := range cfg.Symbols {
			p.symbols[s] = struct{}{}
		}
	}
	return p, nil
}

// WithClock swaps the clock used for pacing.
func (p *Playback) WithClock(clock Clock) *Playback {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// Run calls handler for every record and stops at the first error.
func (p *Playback) Run(ctx context.Context, handler func(Record) error) error {
	if handler == nil {
		return errors.New("playback handler is nil")
	}
	for rec, err := range p.Records(ctx) {
		if err != nil {
			return err
		}
		if err := handler(rec); err != nil {
			return err
		}
	}
	return nil
}

// Records yields the records of every segment. A torn record ends its segment
// and playback moves on to the next one. The first other error is yielded
// once and ends the sequence.
func (p *Playback) Records(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		files, err := Segments(p.cfg.Dir, p.cfg.FilePrefix)
		if err != nil {
			yield(Record{}, err)
			return
		}
		pace := pacer{clock: p.clock, speed: p.cfg.Speed, recv: p.cfg.UseRecvTime}
		for _, path := range files {
			if !p.playSegment(ctx, path, &pace, yield) {
				return
			}
		}
	}
}

func (p *Playback) playSegment(ctx context.Context, path string, pace *pacer, yield func(Record, error) bool) bool {
	file, err := os.Open(path)
	if err != nil {
		return yield(Record{}, err)
	}
	defer file.Close()

	reader := NewReader(file, ReaderOptions{
		DisableChecksum: p.cfg.DisableChecksum,
		MaxPayloadSize:  p.cfg.MaxPayloadSize,
	})
	for {
		if err := ctx.Err(); err != nil {
			yield(Record{}, err)
			return false
		}
		rec, err := reader.Next()
		switch {
		case errors.Is(err, io.EOF):
			return true
		case errors.Is(err, io.ErrUnexpectedEOF):
			logs.Warnf("recorder: torn record in %s at offset %d", path, reader.Offset())
			return true
		case err != nil:
			yield(Record{}, fmt.Errorf("read %s: %w", path, err))
			return false
		}
		if !p.wants(rec) {
			continue
		}
		if err := pace.wait(ctx, rec); err != nil {
			yield(Record{}, err)
			return false
		}
		if !yield(rec, nil) {
			return false
		}
	}
}

func (p *Playback) wants(rec Record) bool {
	if p.symbols == nil {
		return true
	}
	symbol := rec.Message.Symbol()
	if symbol == "" {
		return true
	}
	_, ok := p.symbols[symbol]
	return ok
}

// pacer sleeps for the recorded gap between consecutive records, scaled by speed.
type pacer struct {
	clock Clock
	speed float64
	recv  bool
	last  int64
}

func (p *pacer) wait(ctx context.Context, rec Record) error {
	if p.speed <= 0 {
		return nil
	}
	ts := rec.Message.Ts()
	if p.recv {
		ts = rec.TsRecv
	}
	if ts <= 0 {
		return nil
	}
	prev := p.last
	p.last = ts
	if prev <= 0 || ts <= prev {
		return nil
	}
	return p.clock.Sleep(ctx, time.Duration(float64(ts-prev)/p.speed))
}
