package ops

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/yanun0323/errors"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/core"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/indicator"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/recorder"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/server"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/snapshot"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/subscription"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/valuation"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/conn"
)

// EnvPrefix prefixes every environment override, e.g. MDE_ENGINE_LANES.
const EnvPrefix = "MDE"

// FileConfig mirrors the config file layout.
type FileConfig struct {
	Registry   RegistryConfig      `mapstructure:"registry"`
	Engine     EngineConfig        `mapstructure:"engine"`
	Session    SessionConfig       `mapstructure:"session"`
	Valuation  ValuationConfig     `mapstructure:"valuation"`
	Server     server.Config       `mapstructure:"server"`
	Feeds      []FeedConfig        `mapstructure:"feeds"`
	Recorder   RecorderConfig      `mapstructure:"recorder"`
	Redis      RedisConfig         `mapstructure:"redis"`
	Postgres   conn.PostgresOption `mapstructure:"postgres"`
	Portfolios []PortfolioConfig   `mapstructure:"portfolios"`
	Watchlists []WatchlistConfig   `mapstructure:"watchlists"`
}

// RegistryConfig defines venue and symbol mappings.
type RegistryConfig struct {
	Venues  []VenueConfig  `mapstructure:"venues"`
	Symbols []SymbolConfig `mapstructure:"symbols"`
}

// VenueConfig describes a venue entry.
type VenueConfig struct {
	Name string `mapstructure:"name"`
}

// SymbolConfig describes a symbol entry.
type SymbolConfig struct {
	Name  string           `mapstructure:"name"`
	Venue string           `mapstructure:"venue"`
	Scale schema.ScaleSpec `mapstructure:"scale"`
}

// EngineConfig controls lanes, indicators and snapshots.
type EngineConfig struct {
	Lanes            int           `mapstructure:"lanes"`
	IngressQueue     int           `mapstructure:"ingress_queue"`
	UpdateQueue      int           `mapstructure:"update_queue"`
	StalenessBound   time.Duration `mapstructure:"staleness_bound"`
	ReseedTimeout    time.Duration `mapstructure:"reseed_timeout"`
	Indicators       []string      `mapstructure:"indicators"`
	Location         string        `mapstructure:"location"`
	SnapshotPath     string        `mapstructure:"snapshot_path"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
}

// SessionConfig bounds client sessions.
type SessionConfig struct {
	QueueDepth int `mapstructure:"queue_depth"`
	MaxSymbols int `mapstructure:"max_symbols"`
}

// ValuationConfig bounds portfolios and watchlists.
type ValuationConfig struct {
	MaxSymbolsPerPortfolio int `mapstructure:"max_symbols_per_portfolio"`
	MaxSymbolsPerWatchlist int `mapstructure:"max_symbols_per_watchlist"`
}

// RecorderConfig enables the write-ahead log when Dir is set.
type RecorderConfig struct {
	Dir                string        `mapstructure:"dir"`
	SegmentMaxBytes    int64         `mapstructure:"segment_max_bytes"`
	SegmentMaxDuration time.Duration `mapstructure:"segment_max_duration"`
	QueueSize          int           `mapstructure:"queue_size"`
	FlushInterval      time.Duration `mapstructure:"flush_interval"`
	SyncInterval       time.Duration `mapstructure:"sync_interval"`
}

// RedisConfig enables the snapshot mirror when Addr is set.
type RedisConfig struct {
	conn.RedisOption `mapstructure:",squash"`
	Prefix           string        `mapstructure:"prefix"`
	TTL              time.Duration `mapstructure:"ttl"`
	QueueDepth       int           `mapstructure:"queue_depth"`
	Warm             bool          `mapstructure:"warm"`
}

// PositionConfig is one seeded position. Decimals are strings to keep precision.
type PositionConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Quantity string `mapstructure:"quantity"`
	AvgCost  string `mapstructure:"avg_cost"`
}

// PortfolioConfig seeds a portfolio on start.
type PortfolioConfig struct {
	ID        string           `mapstructure:"id"`
	Owner     string           `mapstructure:"owner"`
	Positions []PositionConfig `mapstructure:"positions"`
}

// WatchlistConfig seeds a watchlist on start.
type WatchlistConfig struct {
	ID      string   `mapstructure:"id"`
	Owner   string   `mapstructure:"owner"`
	Symbols []string `mapstructure:"symbols"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Registry     *schema.Registry
	Engine       core.Config
	UpdateQueue  int
	Valuation    valuation.Config
	Subscription []subscription.Option
	Server       server.Config
	Feeds        []FeedSpec
	// Recorder is nil when the write-ahead log is disabled.
	Recorder   *recorder.Config
	Redis      conn.RedisOption
	Mirror     snapshot.RedisConfig
	WarmMirror bool
	Postgres   conn.PostgresOption
	Portfolios []valuation.Portfolio
	Watchlists []valuation.Watchlist
}

// Load reads path (YAML, JSON or TOML by extension), applies MDE_ environment
// overrides and resolves the result. A .env file next to the working directory
// is loaded first when present.
func Load(path string) (Loaded, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Loaded{}, errors.Wrap(err, "load .env")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Loaded{}, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg FileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "decode config")
	}
	return Resolve(cfg)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.lanes", core.DefaultLanes)
	v.SetDefault("engine.ingress_queue", core.DefaultLaneQueue)
	v.SetDefault("engine.update_queue", subscription.DefaultTopicQueue)
	v.SetDefault("engine.staleness_bound", valuation.DefaultStalenessBound)
	v.SetDefault("engine.reseed_timeout", core.DefaultReseedTimeout)
	v.SetDefault("engine.indicators", core.DefaultIndicators)
	v.SetDefault("engine.location", "UTC")
	v.SetDefault("session.queue_depth", subscription.DefaultQueueDepth)
	v.SetDefault("session.max_symbols", subscription.DefaultMaxSymbols)
	v.SetDefault("valuation.max_symbols_per_portfolio", valuation.DefaultMaxSymbolsPerPortfolio)
	v.SetDefault("valuation.max_symbols_per_watchlist", valuation.DefaultMaxSymbolsPerWatchlist)
	v.SetDefault("server.addr", server.DefaultAddr)

	// AutomaticEnv only sees keys viper already knows about.
	for _, key := range []string{
		"server.write_timeout", "engine.snapshot_path", "engine.snapshot_interval",
		"recorder.dir", "redis.addr", "redis.password", "redis.db",
		"postgres.dsn", "postgres.host", "postgres.port", "postgres.user", "postgres.password", "postgres.database",
	} {
		_ = v.BindEnv(key)
	}
}

// Resolve validates a decoded FileConfig.
func Resolve(cfg FileConfig) (Loaded, error) {
	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}

	engine, err := resolveEngine(cfg.Engine)
	if err != nil {
		return Loaded{}, err
	}

	feeds := make([]FeedSpec, 0, len(cfg.Feeds))
	seen := make(map[string]struct{}, len(cfg.Feeds))
	for i, fc := range cfg.Feeds {
		spec, err := resolveFeed(fc, uint16(i+1), registry)
		if err != nil {
			return Loaded{}, err
		}
		if _, dup := seen[spec.Adapter.ID]; dup {
			return Loaded{}, fmt.Errorf("invalid feed config: duplicate id %s", spec.Adapter.ID)
		}
		seen[spec.Adapter.ID] = struct{}{}
		feeds = append(feeds, spec)
	}

	portfolios, err := resolvePortfolios(cfg.Portfolios)
	if err != nil {
		return Loaded{}, err
	}
	watchlists := make([]valuation.Watchlist, 0, len(cfg.Watchlists))
	for _, w := range cfg.Watchlists {
		wl := valuation.Watchlist{ID: w.ID, Owner: w.Owner, Symbols: w.Symbols}
		if err := wl.Validate(); err != nil {
			return Loaded{}, err
		}
		watchlists = append(watchlists, wl)
	}

	out := Loaded{
		Registry:    registry,
		Engine:      engine,
		UpdateQueue: cfg.Engine.UpdateQueue,
		Valuation: valuation.Config{
			StalenessBound:         cfg.Engine.StalenessBound,
			MaxSymbolsPerPortfolio: cfg.Valuation.MaxSymbolsPerPortfolio,
			MaxSymbolsPerWatchlist: cfg.Valuation.MaxSymbolsPerWatchlist,
		},
		Subscription: []subscription.Option{
			subscription.WithQueueDepth(cfg.Session.QueueDepth),
			subscription.WithMaxSymbols(cfg.Session.MaxSymbols),
			subscription.WithTopicQueue(cfg.Engine.UpdateQueue),
		},
		Server:   cfg.Server,
		Feeds:    feeds,
		Redis:    cfg.Redis.RedisOption,
		Mirror:   snapshot.RedisConfig{Prefix: cfg.Redis.Prefix, TTL: cfg.Redis.TTL, QueueDepth: cfg.Redis.QueueDepth},
		Postgres: cfg.Postgres,

		WarmMirror: cfg.Redis.Warm,
		Portfolios: portfolios,
		Watchlists: watchlists,
	}

	if cfg.Recorder.Dir != "" {
		rc := recorder.DefaultConfig(cfg.Recorder.Dir)
		if cfg.Recorder.SegmentMaxBytes > 0 {
			rc.SegmentMaxBytes = cfg.Recorder.SegmentMaxBytes
		}
		if cfg.Recorder.SegmentMaxDuration > 0 {
			rc.SegmentMaxDuration = cfg.Recorder.SegmentMaxDuration
		}
		if cfg.Recorder.QueueSize > 0 {
			rc.QueueSize = cfg.Recorder.QueueSize
		}
		if cfg.Recorder.FlushInterval > 0 {
			rc.FlushInterval = cfg.Recorder.FlushInterval
		}
		if cfg.Recorder.SyncInterval > 0 {
			rc.SyncInterval = cfg.Recorder.SyncInterval
		}
		if err := rc.Validate(); err != nil {
			return Loaded{}, err
		}
		out.Recorder = &rc
	}
	return out, nil
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("invalid registry config: no symbols")
	}
	reg := schema.NewRegistry()
	for _, venue := range cfg.Venues {
		if _, err := reg.AddVenue(venue.Name); err != nil {
			return nil, err
		}
	}
	for _, sym := range cfg.Symbols {
		venue, ok := reg.VenueByName(sym.Venue)
		if !ok {
			return nil, fmt.Errorf("invalid registry config: venue not found: %s", sym.Venue)
		}
		if err := sym.Scale.Validate(); err != nil {
			return nil, fmt.Errorf("invalid scale for %s: %w", sym.Name, err)
		}
		if _, err := reg.AddSymbol(sym.Name, venue.ID, sym.Scale); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func resolveEngine(cfg EngineConfig) (core.Config, error) {
	specs := make([]indicator.Spec, 0, len(cfg.Indicators))
	for _, raw := range cfg.Indicators {
		spec, err := indicator.ParseSpec(raw)
		if err != nil {
			return core.Config{}, fmt.Errorf("invalid engine config: %w", err)
		}
		specs = append(specs, spec)
	}

	loc := time.UTC
	if cfg.Location != "" {
		l, err := time.LoadLocation(cfg.Location)
		if err != nil {
			return core.Config{}, errors.Wrapf(err, "load location %s", cfg.Location)
		}
		loc = l
	}

	out := core.Config{
		Lanes:            cfg.Lanes,
		LaneQueue:        cfg.IngressQueue,
		ReseedTimeout:    cfg.ReseedTimeout,
		Indicators:       specs,
		Location:         loc,
		SnapshotPath:     cfg.SnapshotPath,
		SnapshotInterval: cfg.SnapshotInterval,
	}
	if err := out.Validate(); err != nil {
		return core.Config{}, err
	}
	return out, nil
}

func resolvePortfolios(cfgs []PortfolioConfig) ([]valuation.Portfolio, error) {
	out := make([]valuation.Portfolio, 0, len(cfgs))
	for _, pc := range cfgs {
		p := valuation.Portfolio{ID: pc.ID, Owner: pc.Owner, Positions: make([]valuation.Position, 0, len(pc.Positions))}
		for _, pos := range pc.Positions {
			qty, err := decimal.NewFromString(pos.Quantity)
			if err != nil {
				return nil, fmt.Errorf("invalid portfolio %s: quantity of %s: %w", pc.ID, pos.Symbol, err)
			}
			cost := decimal.Zero
			if pos.AvgCost != "" {
				if cost, err = decimal.NewFromString(pos.AvgCost); err != nil {
					return nil, fmt.Errorf("invalid portfolio %s: avg cost of %s: %w", pc.ID, pos.Symbol, err)
				}
			}
			p.Positions = append(p.Positions, valuation.NewPosition(pos.Symbol, qty, cost))
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
