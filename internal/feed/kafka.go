package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/codec"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// KafkaConfig configures a KafkaSource.
type KafkaConfig struct {
	Brokers []string      `mapstructure:"brokers"`
	Topic   string        `mapstructure:"topic"`
	GroupID string        `mapstructure:"group_id"`
	MaxWait time.Duration `mapstructure:"max_wait"`
}

// KafkaSource reads JSON ticks keyed by symbol from a topic.
// With a consumer group the committed offsets let a new stream resume.
type KafkaSource struct {
	name string
	cfg  KafkaConfig
	now  func() time.Time
}

// NewKafkaSource creates a kafka source.
func NewKafkaSource(name string, cfg KafkaConfig) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("invalid kafka source %s: brokers and topic are required", name)
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 200 * time.Millisecond
	}
	return &KafkaSource{name: name, cfg: cfg, now: time.Now}, nil
}

func (s *KafkaSource) Name() string { return "kafka:" + s.name }

func (s *KafkaSource) Dial(_ context.Context) (Stream, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  s.cfg.Brokers,
		Topic:    s.cfg.Topic,
		GroupID:  s.cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  s.cfg.MaxWait,
	})
	return &kafkaStream{reader: reader, grouped: s.cfg.GroupID != "", now: s.now, name: s.Name()}, nil
}

// messageReader is the part of *kafka.Reader a stream uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type kafkaStream struct {
	reader  messageReader
	grouped bool
	now     func() time.Time
	name    string
}

func (st *kafkaStream) Recv(ctx context.Context) (codec.Tick, error) {
	m, err := st.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return codec.Tick{}, ctx.Err()
		}
		return codec.Tick{}, &exception.TransientFeedError{Err: err}
	}
	tick, err := codec.DecodeTick(m.Value)
	if err != nil {
		return codec.Tick{}, exception.Malformed(st.name, "decode tick", err)
	}
	if tick.Symbol == "" {
		tick.Symbol = string(m.Key)
	}
	if tick.TsEvent == 0 && !m.Time.IsZero() {
		tick.TsEvent = m.Time.UnixNano()
	}
	tick.TsRecv = st.now().UTC().UnixNano()
	return tick, nil
}

// Resume relies on the consumer group offsets. Without a group the reader
// starts from scratch and gaps must be raised.
func (st *kafkaStream) Resume(_ context.Context, _ map[string]uint64) error {
	if !st.grouped {
		return exception.ErrResumeUnsupported
	}
	return nil
}

func (st *kafkaStream) Close() error {
	return st.reader.Close()
}
