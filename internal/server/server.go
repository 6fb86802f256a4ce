package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/core"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/subscription"
)

const (
	DefaultAddr            = ":8080"
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// Config controls the HTTP listener.
type Config struct {
	Addr            string        `mapstructure:"addr"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}

// Snapshots serves the last published views.
type Snapshots interface {
	Symbol(symbol string) (schema.SymbolView, bool)
	Portfolio(id string) (schema.PortfolioView, bool)
	Watchlist(id string) (schema.WatchlistView, bool)
}

// Feeds reports the connectivity of every feed adapter.
type Feeds interface {
	Feeds() []core.FeedStatus
}

// Server exposes snapshots over REST and live updates over a websocket stream.
type Server struct {
	cfg      Config
	snaps    Snapshots
	feeds    Feeds
	subs     *subscription.Manager
	authn    Authenticator
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
	router   *gin.Engine
}

// Option customizes a Server.
type Option func(*Server)

// WithAuthenticator replaces the default HeaderAuthenticator.
func WithAuthenticator(a Authenticator) Option {
	return func(s *Server) {
		if a != nil {
			s.authn = a
		}
	}
}

// WithGatherer serves gatherer at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New builds the router.
func New(cfg Config, snaps Snapshots, feeds Feeds, subs *subscription.Manager, opts ...Option) *Server {
	s := &Server{
		cfg:   cfg.withDefaults(),
		snaps: snaps,
		feeds: feeds,
		subs:  subs,
		authn: HeaderAuthenticator{Header: DefaultUserHeader},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", s.health)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	v1 := r.Group("/v1")
	v1.GET("/symbols/:symbol", s.symbol)
	v1.GET("/portfolios/:id", s.authenticate, s.portfolio)
	v1.GET("/watchlists/:id", s.authenticate, s.watchlist)
	v1.GET("/feeds", s.listFeeds)
	v1.GET("/stream", s.authenticate, s.stream)
	s.router = r
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logs.Infof("server: listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
