package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"golang.org/x/sync/errgroup"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/core"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/feed"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/obs"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/ops"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/recorder"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/server"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/snapshot"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/subscription"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/valuation"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/conn"
)

type options struct {
	configPath string
	recover    bool
	pyroscope  string
}

func main() {
	var opt options
	flag.StringVar(&opt.configPath, "config", "config/engine.yaml", "Path to the config file")
	flag.BoolVar(&opt.recover, "recover", false, "Rebuild state from the last snapshot and the WAL before serving")
	flag.StringVar(&opt.pyroscope, "pyroscope", "", "Pyroscope server address (empty=disable)")
	flag.Parse()

	if err := run(opt); err != nil {
		logs.Errorf("engine: %+v", err)
		os.Exit(1)
	}
}

func run(opt options) error {
	loaded, err := ops.Load(opt.configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Info("engine: shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	if opt.pyroscope != "" {
		profiler, err := startProfiler(opt.pyroscope)
		if err != nil {
			return err
		}
		defer func() { _ = profiler.Stop() }()
	}

	metrics := obs.NewMetrics()
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		return err
	}
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var repo valuation.Repository = valuation.NewMemoryRepository()
	if loaded.Postgres.Enabled() {
		pg, err := conn.NewPostgres(ctx, loaded.Postgres)
		if err != nil {
			return err
		}
		defer func() { _ = pg.Close() }()
		gr := valuation.NewGormRepository(pg.DB())
		if err := gr.Migrate(ctx); err != nil {
			return err
		}
		repo = gr
	}

	var (
		mirror    *snapshot.RedisMirror
		storeOpts []snapshot.Option
	)
	if loaded.Redis.Enabled() {
		client, err := conn.NewRedis(ctx, loaded.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		mirror = snapshot.NewRedisMirror(client, loaded.Mirror)
		storeOpts = append(storeOpts, snapshot.WithMirror(mirror))
	}
	store := snapshot.NewStore(storeOpts...)

	values := valuation.NewEngine(loaded.Valuation)
	if err := obs.RegisterStaleAges(registry, values.StaleAges); err != nil {
		return err
	}
	n, err := valuation.Load(ctx, repo, values)
	if err != nil {
		return err
	}
	logs.Infof("engine: loaded %d portfolios and watchlists", n)

	coreOpts := []core.Option{core.WithMetrics(metrics), core.WithRepository(repo)}
	var wal *recorder.Writer
	if loaded.Recorder != nil {
		if wal, err = recorder.NewWriter(*loaded.Recorder); err != nil {
			return err
		}
		coreOpts = append(coreOpts, core.WithRecorder(wal))
	}

	engine, err := core.New(loaded.Engine, loaded.Registry, values, store, coreOpts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := seed(ctx, engine, values, loaded); err != nil {
		return err
	}
	if err := restore(ctx, engine, store, mirror, loaded, opt.recover); err != nil {
		return err
	}

	subs := subscription.NewManager(engine.Updates(), store, values, append(loaded.Subscription, subscription.WithMetrics(metrics))...)
	defer subs.Close()
	srv := server.New(loaded.Server, store, engine, subs, server.WithGatherer(registry))

	if wal != nil {
		if err := wal.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := wal.Close(); err != nil {
				logs.Errorf("engine: close wal, err: %+v", err)
			}
		}()
	}

	// Every feed must resolve and connect before the server accepts sessions.
	adapters, err := connectFeeds(ctx, loaded, registry)
	defer func() {
		for _, a := range adapters {
			_ = a.Close()
		}
	}()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if mirror != nil {
		defer mirror.Close()
		g.Go(func() error { return mirror.Run(gctx) })
	}
	g.Go(func() error { return engine.Run(gctx) })
	for _, adapter := range adapters {
		g.Go(func() error {
			// A feed that gave up leaves its symbols stale; the rest keeps serving.
			if err := adapter.Run(gctx, engine.Publish); err != nil && !errors.Is(err, context.Canceled) {
				logs.Errorf("engine: feed %s stopped, err: %+v", adapter.ID(), err)
			}
			return nil
		})
	}
	g.Go(func() error { return srv.Run(gctx) })

	return g.Wait()
}

// connectFeeds builds and connects every configured feed. On error it returns
// the adapters connected so far so the caller can close them.
func connectFeeds(ctx context.Context, loaded ops.Loaded, registry prometheus.Registerer) ([]*feed.Adapter, error) {
	adapters := make([]*feed.Adapter, 0, len(loaded.Feeds))
	for _, spec := range loaded.Feeds {
		src, err := ops.BuildSource(spec, loaded.Registry)
		if err != nil {
			return adapters, err
		}
		adapter, err := feed.NewAdapter(spec.Adapter, src, loaded.Registry)
		if err != nil {
			return adapters, err
		}
		if _, err := adapter.Connect(ctx); err != nil {
			return adapters, err
		}
		adapters = append(adapters, adapter)
		if err := obs.RegisterFeed(registry, adapter.ID(), feedCounters(adapter)); err != nil {
			return adapters, err
		}
	}
	return adapters, nil
}

func feedCounters(a *feed.Adapter) func() obs.FeedCounters {
	return func() obs.FeedCounters {
		st := a.Stats()
		return obs.FeedCounters{
			Events:     st.Events,
			Gaps:       st.Gaps,
			Duplicates: st.Duplicates,
			Malformed:  st.Malformed,
			Reconnects: st.Reconnects,
			Resumes:    st.Resumes,
		}
	}
}

// seed registers the portfolios and watchlists of the config file that the
// repository does not know yet.
func seed(ctx context.Context, engine *core.Engine, values *valuation.Engine, loaded ops.Loaded) error {
	for _, p := range loaded.Portfolios {
		if _, err := values.Portfolio(p.ID); err == nil {
			continue
		}
		if _, err := engine.AddPortfolio(ctx, p); err != nil {
			return err
		}
	}
	for _, w := range loaded.Watchlists {
		if _, err := values.Watchlist(w.ID); err == nil {
			continue
		}
		if _, err := engine.AddWatchlist(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

func restore(ctx context.Context, engine *core.Engine, store *snapshot.Store, mirror *snapshot.RedisMirror, loaded ops.Loaded, rebuild bool) error {
	if rebuild {
		var snap *snapshot.File
		if path := loaded.Engine.SnapshotPath; path != "" {
			f, err := snapshot.ReadFile(path)
			switch {
			case err == nil:
				snap = &f
			case errors.Is(err, os.ErrNotExist):
				logs.Warnf("engine: no snapshot at %s, replaying the full wal", path)
			default:
				return err
			}
		}
		var playback *recorder.Playback
		if loaded.Recorder != nil {
			p, err := recorder.NewPlayback(recorder.PlaybackConfig{Dir: loaded.Recorder.Dir, FilePrefix: loaded.Recorder.FilePrefix})
			if err != nil {
				return err
			}
			playback = p
		}
		_, err := engine.Rebuild(ctx, snap, playback)
		return err
	}

	if mirror != nil && loaded.WarmMirror {
		n, err := mirror.Warm(ctx, store)
		if err != nil {
			return err
		}
		warmed := store.Export()
		if _, err := engine.Rebuild(ctx, &warmed, nil); err != nil {
			return err
		}
		logs.Infof("engine: warmed %d entries from redis", n)
	}
	return nil
}
