package recorder

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

func sampleMessages() []schema.Message {
	return []schema.Message{
		schema.EventMessage(schema.MarketEvent{Symbol: "ABC", Kind: schema.EventTrade, Price: 10050, Size: 3, TsEvent: 1_000, TsRecv: 1_100, Seq: 1, Source: 2}),
		schema.GapMessage(schema.Gap{Symbol: "ABC", Reason: schema.GapSequence, Expected: 2, Got: 7, Ts: 2_000, Source: 2}),
		schema.ConnectivityMessage(schema.Connectivity{AdapterID: "sim", Symbol: "ABC", State: schema.ConnDegraded, Ts: 3_000, Source: 2}),
		schema.EventMessage(schema.MarketEvent{Symbol: "XYZ", Kind: schema.EventQuote, Price: 2_000, TsEvent: 4_000, TsRecv: 4_100, Seq: 9, Source: 2}),
	}
}

func writeAll(t *testing.T, cfg Config, msgs []schema.Message) {
	t.Helper()
	w, err := NewWriter(cfg)
	require.NoError(t, err)
	require.NoError(t, w.Start(t.Context()))
	for _, m := range msgs {
		require.NoError(t, w.TryAppend(m))
	}
	require.NoError(t, w.Close())
	assert.Equal(t, uint64(len(msgs)), w.Stats().Written)
}

func readAll(t *testing.T, dir string) []Record {
	t.Helper()
	p, err := NewPlayback(PlaybackConfig{Dir: dir})
	require.NoError(t, err)
	var out []Record
	require.NoError(t, p.Run(t.Context(), func(r Record) error {
		out = append(out, r)
		return nil
	}))
	return out
}

func segments(t *testing.T, dir string) []string {
	t.Helper()
	files, err := Segments(dir, DefaultFilePrefix)
	require.NoError(t, err)
	return files
}

func TestWriteAndPlayback(t *testing.T) {
	dir := t.TempDir()
	msgs := sampleMessages()
	writeAll(t, DefaultConfig(dir), msgs)

	recs := readAll(t, dir)
	require.Len(t, recs, len(msgs))
	for i, r := range recs {
		assert.Equal(t, uint64(i+1), r.Seq)
		assert.Equal(t, msgs[i], r.Message)
	}
	assert.Equal(t, int64(1_100), recs[0].TsRecv)
	assert.Equal(t, int64(2_000), recs[1].TsRecv)
}

func TestSegmentRotation(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.SegmentMaxBytes = 100
	msgs := sampleMessages()
	writeAll(t, cfg, msgs)

	files := segments(t, dir)
	assert.Len(t, files, len(msgs))

	recs := readAll(t, dir)
	require.Len(t, recs, len(msgs))
	assert.Equal(t, msgs[3], recs[3].Message)
}

func TestTornTailIsIgnored(t *testing.T) {
	dir := t.TempDir()
	writeAll(t, DefaultConfig(dir), sampleMessages())

	files := segments(t, dir)
	require.Len(t, files, 1)
	info, err := os.Stat(files[0])
	require.NoError(t, err)
	require.NoError(t, os.Truncate(files[0], info.Size()-3))

	recs := readAll(t, dir)
	assert.Len(t, recs, 3)
}

func TestChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	writeAll(t, DefaultConfig(dir), sampleMessages()[:1])

	files := segments(t, dir)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	data[recordHeaderSize+2] ^= 0xff
	require.NoError(t, os.WriteFile(files[0], data, 0o644))

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()
	_, err = NewReader(f, ReaderOptions{}).Next()
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestReaderMaxPayload(t *testing.T) {
	dir := t.TempDir()
	writeAll(t, DefaultConfig(dir), sampleMessages()[:1])

	f, err := os.Open(segments(t, dir)[0])
	require.NoError(t, err)
	defer f.Close()
	_, err = NewReader(f, ReaderOptions{MaxPayloadSize: 1}).Next()
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestPlaybackSymbolFilter(t *testing.T) {
	dir := t.TempDir()
	msgs := sampleMessages()
	msgs = append(msgs, schema.ConnectivityMessage(schema.Connectivity{AdapterID: "sim", State: schema.ConnDisconnected, Ts: 5_000, Source: 2}))
	writeAll(t, DefaultConfig(dir), msgs)

	p, err := NewPlayback(PlaybackConfig{Dir: dir, Symbols: []string{"XYZ"}})
	require.NoError(t, err)
	var got []schema.Message
	require.NoError(t, p.Run(t.Context(), func(r Record) error {
		got = append(got, r.Message)
		return nil
	}))
	assert.Equal(t, []schema.Message{msgs[3], msgs[4]}, got)
}

func TestRecordsStopsEarly(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.SegmentMaxBytes = 100
	writeAll(t, cfg, sampleMessages())

	p, err := NewPlayback(PlaybackConfig{Dir: dir})
	require.NoError(t, err)
	var seqs []uint64
	for rec, err := range p.Records(t.Context()) {
		require.NoError(t, err)
		seqs = append(seqs, rec.Seq)
		if len(seqs) == 2 {
			break
		}
	}
	assert.Equal(t, []uint64{1, 2}, seqs)
}

func TestInvalidConfigs(t *testing.T) {
	cfg := DefaultConfig("")
	cfg.QueueSize = -1
	cfg.FilePrefix = "a/b"
	err := cfg.Validate()
	require.ErrorIs(t, err, exception.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "dir is empty")
	assert.Contains(t, err.Error(), "queue size")
	assert.Contains(t, err.Error(), "file prefix")

	_, err = NewPlayback(PlaybackConfig{Dir: "x", Speed: -1})
	require.ErrorIs(t, err, exception.ErrInvalidArgument)
}

func TestTryAppendLifecycle(t *testing.T) {
	w, err := NewWriter(DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	require.ErrorIs(t, w.TryAppend(sampleMessages()[0]), ErrNotStarted)
	require.NoError(t, w.Start(t.Context()))
	require.ErrorIs(t, w.Start(t.Context()), ErrAlreadyStarted)
	require.NoError(t, w.Close())
	require.ErrorIs(t, w.TryAppend(sampleMessages()[0]), ErrClosed)
}

type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return nil
}

func TestPlaybackPacing(t *testing.T) {
	dir := t.TempDir()
	writeAll(t, DefaultConfig(dir), sampleMessages())

	p, err := NewPlayback(PlaybackConfig{Dir: dir, Speed: 2})
	require.NoError(t, err)
	clock := &fakeClock{}
	p.WithClock(clock)
	require.NoError(t, p.Run(t.Context(), func(Record) error { return nil }))
	assert.Equal(t, []time.Duration{500, 500, 500}, clock.slept)
}
