package ops

import (
	"fmt"
	"time"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/chaos"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/feed"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/mdg"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

// Feed source kinds.
const (
	FeedSim       = "sim"
	FeedWebSocket = "websocket"
	FeedKafka     = "kafka"
)

const defaultDialTimeout = 10 * time.Second

// FeedConfig describes one feed adapter and its source.
type FeedConfig struct {
	ID          string           `mapstructure:"id"`
	Kind        string           `mapstructure:"kind"`
	DialTimeout time.Duration    `mapstructure:"dial_timeout"`
	Backoff     *feed.Backoff    `mapstructure:"backoff"`
	Symbols     []string         `mapstructure:"symbols"`
	Sim         SimConfig        `mapstructure:"sim"`
	WebSocket   WebSocketConfig  `mapstructure:"websocket"`
	Kafka       feed.KafkaConfig `mapstructure:"kafka"`
}

// SimConfig drives a synthetic source.
type SimConfig struct {
	mdg.Config `mapstructure:",squash"`
	Interval   time.Duration `mapstructure:"interval"`
	Chaos      chaos.Config  `mapstructure:"chaos"`
}

// WebSocketConfig points at a provider stream.
type WebSocketConfig struct {
	URL         string            `mapstructure:"url"`
	Headers     map[string]string `mapstructure:"headers"`
	Subscribe   map[string]any    `mapstructure:"subscribe"`
	ReadTimeout time.Duration     `mapstructure:"read_timeout"`
}

// FeedSpec is a validated feed ready to be built.
type FeedSpec struct {
	Kind      string
	Adapter   feed.Config
	Sim       SimConfig
	WebSocket feed.WebSocketConfig
	Kafka     feed.KafkaConfig
}

func resolveFeed(fc FeedConfig, source uint16, reg *schema.Registry) (FeedSpec, error) {
	if fc.ID == "" {
		return FeedSpec{}, fmt.Errorf("invalid feed config: id is empty")
	}
	backoff := feed.DefaultBackoff()
	if fc.Backoff != nil {
		backoff = fc.Backoff.WithDefaults()
	}
	dialTimeout := fc.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	symbols := fc.Symbols
	if len(symbols) == 0 {
		symbols = reg.SymbolNames()
	}
	for _, s := range symbols {
		if _, ok := reg.SymbolByName(s); !ok {
			return FeedSpec{}, fmt.Errorf("invalid feed config %s: unknown symbol %s", fc.ID, s)
		}
	}

	spec := FeedSpec{
		Kind: fc.Kind,
		Adapter: feed.Config{
			ID:          fc.ID,
			Source:      source,
			Backoff:     backoff,
			DialTimeout: dialTimeout,
			Symbols:     symbols,
		},
	}
	if err := spec.Adapter.Validate(); err != nil {
		return FeedSpec{}, err
	}

	switch fc.Kind {
	case FeedSim:
		spec.Sim = fc.Sim
		if spec.Sim.BasePrice == 0 {
			spec.Sim.Config = mdg.DefaultConfig()
			spec.Sim.Config.Seed = fc.Sim.Seed
		}
		if err := spec.Sim.Config.Validate(); err != nil {
			return FeedSpec{}, fmt.Errorf("invalid feed config %s: %w", fc.ID, err)
		}
		if err := spec.Sim.Chaos.Validate(); err != nil {
			return FeedSpec{}, fmt.Errorf("invalid feed config %s: %w", fc.ID, err)
		}
	case FeedWebSocket:
		if fc.WebSocket.URL == "" {
			return FeedSpec{}, fmt.Errorf("invalid feed config %s: websocket url is empty", fc.ID)
		}
		spec.WebSocket = feed.WebSocketConfig{URL: fc.WebSocket.URL, ReadTimeout: fc.WebSocket.ReadTimeout}
		if len(fc.WebSocket.Headers) > 0 {
			spec.WebSocket.Header = make(map[string][]string, len(fc.WebSocket.Headers))
			for k, v := range fc.WebSocket.Headers {
				spec.WebSocket.Header.Set(k, v)
			}
		}
		if len(fc.WebSocket.Subscribe) > 0 {
			spec.WebSocket.Subscribe = fc.WebSocket.Subscribe
		}
	case FeedKafka:
		if len(fc.Kafka.Brokers) == 0 || fc.Kafka.Topic == "" {
			return FeedSpec{}, fmt.Errorf("invalid feed config %s: kafka brokers and topic are required", fc.ID)
		}
		spec.Kafka = fc.Kafka
	default:
		return FeedSpec{}, fmt.Errorf("invalid feed config %s: unknown kind %q", fc.ID, fc.Kind)
	}
	return spec, nil
}

// BuildSource creates the source of a feed.
func BuildSource(spec FeedSpec, reg *schema.Registry) (feed.Source, error) {
	switch spec.Kind {
	case FeedSim:
		gen, err := mdg.NewGenerator(reg, spec.Sim.Config)
		if err != nil {
			return nil, err
		}
		return feed.NewSimSource(spec.Adapter.ID, gen, spec.Sim.Chaos, spec.Sim.Interval)
	case FeedWebSocket:
		return feed.NewWebSocketSource(spec.Adapter.ID, spec.WebSocket)
	case FeedKafka:
		return feed.NewKafkaSource(spec.Adapter.ID, spec.Kafka)
	default:
		return nil, fmt.Errorf("unknown feed kind %q", spec.Kind)
	}
}
