package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/core"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/ops"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/recorder"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/snapshot"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/valuation"
)

type options struct {
	playback recorder.PlaybackConfig
	decode   bool

	rebuild    bool
	configPath string
	from       string
	expect     string
	out        string
}

func main() {
	var opt options
	flag.StringVar(&opt.playback.Dir, "dir", "testdata/wal", "WAL directory")
	flag.StringVar(&opt.playback.FilePrefix, "prefix", "", "WAL file prefix (default: ingress)")
	flag.Float64Var(&opt.playback.Speed, "speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	flag.BoolVar(&opt.playback.UseRecvTime, "use-recv-time", false, "Use receive timestamp for pacing")
	flag.BoolVar(&opt.playback.DisableChecksum, "no-checksum", false, "Disable checksum validation")
	flag.IntVar(&opt.playback.MaxPayloadSize, "max-payload", 0, "Max payload size in bytes (0=unlimited)")
	symbols := flag.String("symbols", "", "Comma separated symbols to replay (empty=all)")
	flag.BoolVar(&opt.decode, "decode", false, "Print message fields")
	flag.BoolVar(&opt.rebuild, "rebuild", false, "Rebuild engine state from the WAL instead of listing records")
	flag.StringVar(&opt.configPath, "config", "config/engine.yaml", "Config file used by -rebuild")
	flag.StringVar(&opt.from, "from", "", "Snapshot to start the rebuild from (empty=none)")
	flag.StringVar(&opt.expect, "expect", "", "Snapshot the rebuilt state must match (empty=skip)")
	flag.StringVar(&opt.out, "out", "", "Write the rebuilt state to this snapshot file (empty=skip)")
	flag.Parse()
	if *symbols != "" {
		opt.playback.Symbols = strings.Split(*symbols, ",")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sys.Shutdown():
			cancel()
		case <-ctx.Done():
		}
	}()

	var err error
	if opt.rebuild {
		err = rebuild(ctx, opt)
	} else {
		err = list(ctx, opt)
	}
	cancel()
	if err != nil {
		logs.Errorf("replay: %+v", err)
		os.Exit(1)
	}
}

func list(ctx context.Context, opt options) error {
	pb, err := recorder.NewPlayback(opt.playback)
	if err != nil {
		return err
	}
	return pb.Run(ctx, func(rec recorder.Record) error {
		msg := rec.Message
		fmt.Printf("%08d kind=%s symbol=%s ts=%d ts_recv=%d\n", rec.Seq, msg.Kind, msg.Symbol(), msg.Ts(), rec.TsRecv)
		if opt.decode {
			printMessage(msg)
		}
		return nil
	})
}

func printMessage(msg schema.Message) {
	switch msg.Kind {
	case schema.MessageEvent:
		ev := msg.Event
		fmt.Printf("  event kind=%s price=%d size=%d seq=%d source=%d\n", ev.Kind, ev.Price, ev.Size, ev.Seq, ev.Source)
	case schema.MessageGap:
		g := msg.Gap
		fmt.Printf("  gap reason=%s expected=%d got=%d source=%d\n", g.Reason, g.Expected, g.Got, g.Source)
	case schema.MessageConnectivity:
		c := msg.Connectivity
		fmt.Printf("  connectivity adapter=%s state=%s source=%d\n", c.AdapterID, c.State, c.Source)
	}
}

// rebuild replays the WAL into a fresh engine and optionally checks the
// result against a snapshot taken by a live engine.
func rebuild(ctx context.Context, opt options) error {
	loaded, err := ops.Load(opt.configPath)
	if err != nil {
		return err
	}

	store := snapshot.NewStore()
	values := valuation.NewEngine(loaded.Valuation)
	engine, err := core.New(loaded.Engine, loaded.Registry, values, store)
	if err != nil {
		return err
	}
	defer engine.Close()

	for _, p := range loaded.Portfolios {
		if _, err := engine.AddPortfolio(ctx, p); err != nil {
			return err
		}
	}
	for _, w := range loaded.Watchlists {
		if _, err := engine.AddWatchlist(ctx, w); err != nil {
			return err
		}
	}

	var base *snapshot.File
	if opt.from != "" {
		f, err := snapshot.ReadFile(opt.from)
		if err != nil {
			return err
		}
		base = &f
	}
	pb, err := recorder.NewPlayback(opt.playback)
	if err != nil {
		return err
	}
	stats, err := engine.Rebuild(ctx, base, pb)
	if err != nil {
		return err
	}
	fmt.Printf("symbols=%d replayed=%d skipped=%d\n", stats.Symbols, stats.Replayed, stats.Skipped)

	got := store.Export()
	if opt.out != "" {
		if err := snapshot.WriteFile(opt.out, got); err != nil {
			return err
		}
	}
	if opt.expect != "" {
		want, err := snapshot.ReadFile(opt.expect)
		if err != nil {
			return err
		}
		if err := snapshot.Compare(want, got); err != nil {
			return err
		}
		fmt.Println("rebuilt state matches", opt.expect)
	}
	return nil
}
