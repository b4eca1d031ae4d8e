package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"reputationkit/adapters/jsonfile"
	mem "reputationkit/adapters/memory"
	redisAdapter "reputationkit/adapters/redis"
	sqlxAdapter "reputationkit/adapters/sqlx"
	"reputationkit/analytics"
	"reputationkit/api/httpapi"
	"reputationkit/config"
	"reputationkit/core"
	"reputationkit/engine"
	"reputationkit/gamify"
	"reputationkit/integrations/webhook"
	"reputationkit/leaderboard"
	"reputationkit/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Hub        *realtime.Hub
	Analytics  *analytics.Aggregator
	Service    *engine.Service
	Handler    http.Handler
	Server     *http.Server
	MetricsSrv *MetricsServer
}

// MetricsServer serves /metrics on its own address when configured.
type MetricsServer struct{ *http.Server }

func provideConfig(ctx context.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case os.Getenv("REPUTATION_CONFIG_FILE") != "":
		cfg, err = config.LoadFromFile(os.Getenv("REPUTATION_CONFIG_FILE"))
	case os.Getenv("REPUTATION_PROFILE") != "":
		cfg, err = config.LoadProfile(os.Getenv("REPUTATION_PROFILE"))
	default:
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if cfg.Environment == config.EnvProduction {
		if err := cfg.LoadSecretsFromEnv(ctx); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) zerolog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func provideStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (engine.Store, func(), error) {
	return setupStorage(ctx, cfg, log)
}

func provideRuleset(cfg *config.Config) (core.Ruleset, error) {
	if cfg.Engine.RulesetPath == "" {
		return core.DefaultRuleset(), nil
	}
	return config.LoadRuleset(cfg.Engine.RulesetPath)
}

func provideAggregator(log zerolog.Logger) *analytics.Aggregator {
	return analytics.NewAggregator(analytics.NewMetrics(), time.Hour, log.With().Str("component", "analytics").Logger())
}

func provideService(ctx context.Context, cfg *config.Config, log zerolog.Logger, rules core.Ruleset, hub *realtime.Hub, storage engine.Store, agg *analytics.Aggregator, reg *prometheus.Registry) (*engine.Service, func(), error) {
	prom, err := analytics.NewPrometheusHook(reg, "reputation")
	if err != nil {
		return nil, nil, err
	}
	hooks := []analytics.Hook{agg.Metrics(), prom}
	if len(cfg.Webhooks.Endpoints) > 0 {
		types := make([]core.EventType, len(cfg.Webhooks.EventTypes))
		for i, t := range cfg.Webhooks.EventTypes {
			types[i] = core.EventType(t)
		}
		opts := []webhook.Option{
			webhook.WithClient(&http.Client{Timeout: cfg.Webhooks.Timeout}),
			webhook.WithBreaker(cfg.Webhooks.BreakerFailures, cfg.Webhooks.BreakerCooldown),
			webhook.WithLogger(log.With().Str("component", "webhook").Logger()),
		}
		if len(types) > 0 {
			opts = append(opts, webhook.WithEventTypes(types...))
		}
		hooks = append(hooks, webhook.New(cfg.Webhooks.Endpoints, opts...))
	}
	opts := []gamify.Option{
		gamify.WithStorage(storage),
		gamify.WithRuleset(rules),
		gamify.WithRealtime(hub),
		gamify.WithHooks(hooks...),
		gamify.WithDispatchMode(engine.DispatchAsync),
		gamify.WithAsyncWorkers(cfg.Engine.AsyncWorkers, 1024),
		gamify.WithMaxRetries(cfg.Engine.MaxRetries),
		gamify.WithReferrerCache(cfg.Engine.LookupCacheSize),
		gamify.WithLogger(log),
	}
	if cfg.Engine.LiveLeaderboard {
		opts = append(opts, gamify.WithBoard(leaderboard.NewSkipList(leaderboard.MetricPointsTotal)))
	}
	svc, err := gamify.New(opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := svc.WarmBoard(ctx); err != nil {
		svc.Close()
		return nil, nil, err
	}
	return svc, svc.Close, nil
}

func provideHandler(svc *engine.Service, hub *realtime.Hub, reg *prometheus.Registry, cfg *config.Config, log zerolog.Logger) http.Handler {
	opts := httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigins: cfg.Server.CORSOrigins,
		APIKeys:          cfg.Security.APIKeys,
		Logger:           log.With().Str("component", "http").Logger(),
	}
	if cfg.Security.EnableRateLimit {
		opts.RateLimitRPM = cfg.Security.RateLimit.RequestsPerMinute
	}
	// a dedicated metrics listener takes over /metrics
	if cfg.Metrics.Enabled && cfg.Metrics.Address == cfg.Server.Address {
		opts.Metrics = reg
	}
	return httpapi.NewMux(svc, hub, opts)
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func provideMetricsServer(cfg *config.Config, reg *prometheus.Registry) *MetricsServer {
	if !cfg.Metrics.Enabled || cfg.Metrics.Address == cfg.Server.Address {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &MetricsServer{&http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}
	if cfg.Logging.Format == "text" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp().
		Str("environment", string(cfg.Environment))
	for k, v := range cfg.Logging.Attributes {
		ctx = ctx.Str(k, v)
	}
	return ctx.Logger()
}

// setupStorage creates the appropriate storage adapter based on configuration.
func setupStorage(_ context.Context, cfg *config.Config, log zerolog.Logger) (engine.Store, func(), error) {
	noop := func() {}
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), noop, nil
	case "redis":
		st, err := redisAdapter.New(cfg.Storage.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("redis storage: %w", err)
		}
		return st, func() {
			if err := st.Close(); err != nil {
				log.Warn().Err(err).Msg("closing redis storage")
			}
		}, nil
	case "sql":
		st, err := sqlxAdapter.New(cfg.Storage.SQL)
		if err != nil {
			return nil, nil, fmt.Errorf("sql storage: %w", err)
		}
		return st, func() {
			if err := st.Close(); err != nil {
				log.Warn().Err(err).Msg("closing sql storage")
			}
		}, nil
	case "file":
		st, err := jsonfile.New(cfg.Storage.File.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("file storage: %w", err)
		}
		return st, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
