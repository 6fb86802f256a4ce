package recorder

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/codec"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

var (
	ErrQueueFull       = errors.New("wal queue full")
	ErrClosed          = errors.New("wal writer closed")
	ErrNotStarted      = errors.New("wal writer not started")
	ErrAlreadyStarted  = errors.New("wal writer already started")
	ErrPayloadTooLarge = errors.New("wal payload too large")
)

const maxPayloadLen = uint64(^uint32(0))

// Stats counts writer activity.
type Stats struct {
	Written  uint64 `json:"written"`
	Rejected uint64 `json:"rejected"`
	Skipped  uint64 `json:"skipped"`
	Segments uint64 `json:"segments"`
	Pending  int    `json:"pending"`
}

// Writer records ingress messages into rotating WAL segments. Appending never
// blocks the caller: a full queue rejects the message and counts it.
type Writer struct {
	cfg Config

	mu      sync.RWMutex
	queue   chan schema.Message
	started bool
	closed  bool
	wg      sync.WaitGroup

	errMu sync.Mutex
	err   error

	// owned by the loop goroutine
	seq   uint64
	segID uint64

	written  atomic.Uint64
	rejected atomic.Uint64
	skipped  atomic.Uint64
	segments atomic.Uint64
}

// NewWriter validates cfg and creates the target directory.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{cfg: cfg, queue: make(chan schema.Message, cfg.QueueSize)}, nil
}

// Start runs the writer loop until ctx ends or Close is called.
func (w *Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.closed:
		return ErrClosed
	case w.started:
		return ErrAlreadyStarted
	}
	w.started = true
	w.wg.Go(func() { w.loop(ctx) })
	return nil
}

// Close drains the queue, closes the open segment and returns the first write error.
func (w *Writer) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	w.wg.Wait()
	return w.Err()
}

// Err returns the error that stopped the writer, if any.
func (w *Writer) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

// Stats returns the writer counters.
func (w *Writer) Stats() Stats {
	return Stats{
		Written:  w.written.Load(),
		Rejected: w.rejected.Load(),
		Skipped:  w.skipped.Load(),
		Segments: w.segments.Load(),
		Pending:  len(w.queue),
	}
}

// TryAppend enqueues msg without blocking.
func (w *Writer) TryAppend(msg schema.Message) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	switch {
	case w.closed:
		return ErrClosed
	case !w.started:
		return ErrNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	select {
	case w.queue <- msg:
		return nil
	default:
		w.rejected.Add(1)
		return ErrQueueFull
	}
}

func (w *Writer) loop(ctx context.Context) {
	var (
		seg *segment
		rec recordBuf
	)
	flushC, stopFlush := ticker(w.cfg.FlushInterval)
	syncC, stopSync := ticker(w.cfg.SyncInterval)
	defer func() {
		stopFlush()
		stopSync()
		if err := seg.close(); err != nil {
			w.fail(err)
		}
	}()

	for {
		var err error
		select {
		case <-ctx.Done():
			w.drain(&seg, &rec)
			return
		case msg, ok := <-w.queue:
			if !ok {
				return
			}
			err = w.append(&seg, &rec, msg)
		case <-flushC:
			err = seg.flush()
		case <-syncC:
			err = seg.sync()
		}
		if err != nil {
			w.fail(err)
			return
		}
	}
}

// drain writes what is already queued without waiting for more.
func (w *Writer) drain(seg **segment, rec *recordBuf) {
	for {
		select {
		case msg, ok := <-w.queue:
			if !ok {
				return
			}
			if err := w.append(seg, rec, msg); err != nil {
				w.fail(err)
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) append(seg **segment, rec *recordBuf, msg schema.Message) error {
	if err := rec.encode(w.seq+1, msg); err != nil {
		// the record is dropped, the log stays writable
		w.skipped.Add(1)
		logs.Warnf("recorder: skip %s message for %s, err: %+v", msg.Kind, msg.Symbol(), err)
		return nil
	}

	now := time.Now().UTC()
	if (*seg).full(w.cfg, now, rec.size()) {
		if err := (*seg).close(); err != nil {
			return err
		}
		next, err := createSegment(w.cfg.Dir, w.cfg.FilePrefix, &w.segID, now, w.cfg.BufferSize)
		if err != nil {
			return err
		}
		*seg = next
		w.segments.Add(1)
	}

	if err := (*seg).write(rec.header[:], rec.payload, rec.sum[:]); err != nil {
		return err
	}
	w.seq++
	w.written.Add(1)
	return nil
}

func (w *Writer) fail(err error) {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
		logs.Errorf("recorder: writer stopped, err: %+v", err)
	}
}

// recordBuf holds the encoded form of one record between writes.
type recordBuf struct {
	header  [recordHeaderSize]byte
	payload []byte
	sum     [recordChecksumSize]byte
}

func (b *recordBuf) encode(seq uint64, msg schema.Message) error {
	payload, err := codec.AppendMessage(b.payload[:0], msg)
	if err != nil {
		return err
	}
	if uint64(len(payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}
	b.payload = payload
	encodeHeader(b.header[:], headerOf(seq, msg, len(payload)))
	binary.LittleEndian.PutUint32(b.sum[:], checksum(b.header[:], payload))
	return nil
}

func (b *recordBuf) size() int64 {
	return int64(recordHeaderSize + len(b.payload) + recordChecksumSize)
}

func ticker(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}
