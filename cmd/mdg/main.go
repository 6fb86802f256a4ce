package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/chaos"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/codec"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/feed"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/mdg"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/obs"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/ops"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/recorder"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

type options struct {
	configPath string
	feedID     string
	ticks      int
	out        string
	walDir     string
	brokers    string
	topic      string
}

func main() {
	var opt options
	flag.StringVar(&opt.configPath, "config", "config/engine.yaml", "Path to the config file")
	flag.StringVar(&opt.feedID, "feed", "", "Sim feed whose generator and chaos settings are used (default: first sim feed)")
	flag.IntVar(&opt.ticks, "ticks", 10000, "Number of ticks to generate")
	flag.StringVar(&opt.out, "out", "wal", "Output: wal|kafka")
	flag.StringVar(&opt.walDir, "wal-dir", "testdata/wal", "WAL directory for -out=wal")
	flag.StringVar(&opt.brokers, "kafka-brokers", "localhost:9092", "Comma separated brokers for -out=kafka")
	flag.StringVar(&opt.topic, "kafka-topic", "market_ticks", "Topic for -out=kafka")
	flag.Parse()

	if err := run(opt); err != nil {
		logs.Errorf("mdg: %+v", err)
		os.Exit(1)
	}
}

func run(opt options) error {
	if opt.ticks <= 0 {
		return fmt.Errorf("ticks must be > 0")
	}
	loaded, err := ops.Load(opt.configPath)
	if err != nil {
		return err
	}
	spec, err := simFeed(loaded.Feeds, opt.feedID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			cancel()
		case <-ctx.Done():
		}
	}()

	switch opt.out {
	case "wal":
		return toWAL(ctx, opt, spec, loaded.Registry)
	case "kafka":
		return toKafka(ctx, opt, spec, loaded.Registry)
	default:
		return fmt.Errorf("unsupported output: %s", opt.out)
	}
}

func simFeed(feeds []ops.FeedSpec, id string) (ops.FeedSpec, error) {
	for _, f := range feeds {
		if f.Kind == ops.FeedSim && (id == "" || f.Adapter.ID == id) {
			return f, nil
		}
	}
	if id == "" {
		return ops.FeedSpec{}, fmt.Errorf("config has no sim feed")
	}
	return ops.FeedSpec{}, fmt.Errorf("sim feed not found: %s", id)
}

// toWAL runs a feed adapter over the sim source and records what it emits,
// gaps and connectivity included.
func toWAL(ctx context.Context, opt options, spec ops.FeedSpec, reg *schema.Registry) error {
	writer, err := recorder.NewWriter(recorder.DefaultConfig(opt.walDir))
	if err != nil {
		return err
	}
	if err := writer.Start(ctx); err != nil {
		return err
	}

	src, err := ops.BuildSource(spec, reg)
	if err != nil {
		return err
	}
	adapter, err := feed.NewAdapter(spec.Adapter, src, reg)
	if err != nil {
		return err
	}
	if _, err := adapter.Connect(ctx); err != nil {
		return err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	metrics := obs.NewMetrics()
	var events atomic.Int64
	runErr := adapter.Run(runCtx, func(msg schema.Message) {
		metrics.ObserveMessage(msg)
		for {
			err := writer.TryAppend(msg)
			if !errors.Is(err, recorder.ErrQueueFull) {
				if err != nil {
					metrics.IncWALRejected()
				}
				break
			}
			time.Sleep(time.Millisecond)
		}
		if msg.Kind == schema.MessageEvent && events.Add(1) >= int64(opt.ticks) {
			stop()
		}
	})
	_ = adapter.Close()

	if err := writer.Close(); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	snap := metrics.Snapshot()
	stats := adapter.Stats()
	logs.Infof("mdg: wrote %s, messages=%v rejected=%d duplicates=%d reconnects=%d",
		opt.walDir, snap.Messages, snap.WALRejected, stats.Duplicates, stats.Reconnects)
	return nil
}

// toKafka publishes raw ticks, after chaos, keyed by symbol.
func toKafka(ctx context.Context, opt options, spec ops.FeedSpec, reg *schema.Registry) error {
	gen, err := mdg.NewGenerator(reg, spec.Sim.Config)
	if err != nil {
		return err
	}
	var faults *chaos.Engine
	if spec.Sim.Chaos.Enabled() {
		if faults, err = chaos.NewEngine(spec.Sim.Chaos); err != nil {
			return err
		}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(opt.brokers, ",")...),
		Topic:        opt.topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}
	defer func() { _ = w.Close() }()

	batch := make([]kafka.Message, 0, 256)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.WriteMessages(ctx, batch...); err != nil {
			return errors.Wrapf(err, "write %d ticks to %s", len(batch), opt.topic)
		}
		batch = batch[:0]
		return nil
	}
	appendTick := func(t codec.Tick) error {
		payload, err := codec.EncodeTick(t)
		if err != nil {
			return err
		}
		batch = append(batch, kafka.Message{Key: []byte(t.Symbol), Value: payload})
		if len(batch) == cap(batch) {
			return flush()
		}
		return nil
	}

	for i := 0; i < opt.ticks && ctx.Err() == nil; i++ {
		for _, t := range faults.Process(gen.Next(time.Now())) {
			if err := appendTick(t); err != nil {
				return err
			}
		}
		if spec.Sim.Interval > 0 {
			time.Sleep(spec.Sim.Interval)
		}
	}
	for _, t := range faults.Flush() {
		if err := appendTick(t); err != nil {
			return err
		}
	}
	if err := flush(); err != nil {
		return err
	}
	logs.Infof("mdg: published %d ticks to %s", opt.ticks, opt.topic)
	return nil
}
