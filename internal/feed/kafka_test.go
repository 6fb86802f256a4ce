package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/codec"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

type queuedReader struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (r *queuedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	if len(r.msgs) == 0 {
		return kafka.Message{}, r.err
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *queuedReader) Close() error {
	r.closed = true
	return nil
}

func encoded(t *testing.T, tk codec.Tick) []byte {
	t.Helper()
	data, err := codec.EncodeTick(tk)
	require.NoError(t, err)
	return data
}

func TestKafkaStreamDecodesTicks(t *testing.T) {
	recv := time.Unix(1_700_000_000, 0)
	produced := time.Unix(1_699_999_999, 0)

	keyed := tick("", 2, "11")
	keyed.TsEvent = 0
	linkDown := errors.New("broker gone")
	reader := &queuedReader{
		msgs: []kafka.Message{
			{Key: []byte("ABC"), Value: encoded(t, tick("ABC", 1, "10.5"))},
			{Key: []byte("ABC"), Value: encoded(t, keyed), Time: produced},
			{Key: []byte("ABC"), Value: []byte("{nope")},
		},
		err: linkDown,
	}
	st := &kafkaStream{reader: reader, now: func() time.Time { return recv }, name: "kafka:test"}

	got, err := st.Recv(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "ABC", got.Symbol)
	assert.Equal(t, "10.5", got.Price)
	assert.Equal(t, int64(1_000), got.TsEvent)
	assert.Equal(t, recv.UnixNano(), got.TsRecv)

	// symbol and event time fall back to the record key and timestamp
	got, err = st.Recv(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "ABC", got.Symbol)
	assert.Equal(t, produced.UnixNano(), got.TsEvent)

	_, err = st.Recv(t.Context())
	require.ErrorIs(t, err, exception.ErrMalformedEvent)

	_, err = st.Recv(t.Context())
	require.ErrorIs(t, err, exception.ErrTransientFeed)
	require.ErrorIs(t, err, linkDown)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = st.Recv(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, st.Close())
	assert.True(t, reader.closed)
}

func TestKafkaStreamResume(t *testing.T) {
	checkpoint := map[string]uint64{"ABC": 4}
	grouped := &kafkaStream{reader: &queuedReader{}, grouped: true}
	require.NoError(t, grouped.Resume(t.Context(), checkpoint))

	plain := &kafkaStream{reader: &queuedReader{}}
	require.ErrorIs(t, plain.Resume(t.Context(), checkpoint), exception.ErrResumeUnsupported)
}

func TestNewKafkaSource(t *testing.T) {
	_, err := NewKafkaSource("k", KafkaConfig{Topic: "ticks"})
	require.Error(t, err)

	src, err := NewKafkaSource("k", KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "ticks"})
	require.NoError(t, err)
	assert.Equal(t, "kafka:k", src.Name())
	assert.Equal(t, 200*time.Millisecond, src.cfg.MaxWait)
}
