package gamify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	mem "reputationkit/adapters/memory"
	"reputationkit/analytics"
	"reputationkit/core"
	"reputationkit/engine"
	"reputationkit/realtime"
)

// Option configures the reputation service builder.
type Option func(*config)

type config struct {
	storage     engine.Store
	rules       core.Ruleset
	clock       core.Clock
	mode        engine.DispatchMode
	workers     int
	queue       int
	hub         *realtime.Hub
	hooks       []analytics.Hook
	board       engine.Board
	log         zerolog.Logger
	maxRetries  int
	lookupCache int
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Store) Option { return func(c *config) { c.storage = s } }

// WithRuleset replaces the stock tuning.
func WithRuleset(r core.Ruleset) Option { return func(c *config) { c.rules = r } }

func WithClock(clk core.Clock) Option { return func(c *config) { c.clock = clk } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithAsyncWorkers sizes the async dispatch pool.
func WithAsyncWorkers(workers, queue int) Option {
	return func(c *config) { c.workers, c.queue = workers, queue }
}

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithHooks subscribes analytics hooks and sinks to every committed event.
func WithHooks(h ...analytics.Hook) Option { return func(c *config) { c.hooks = append(c.hooks, h...) } }

// WithBoard keeps a live leaderboard current.
func WithBoard(b engine.Board) Option { return func(c *config) { c.board = b } }

func WithLogger(l zerolog.Logger) Option { return func(c *config) { c.log = l } }

func WithMaxRetries(n int) Option { return func(c *config) { c.maxRetries = n } }

// WithReferrerCache puts an LRU of the given size in front of referral code lookups.
func WithReferrerCache(size int) Option { return func(c *config) { c.lookupCache = size } }

// New builds a configured Service. If not provided, defaults are used:
//   - storage: in-memory
//   - rules: core.DefaultRuleset
//   - dispatch: async
func New(opts ...Option) (*engine.Service, error) {
	cfg := &config{
		rules:      core.DefaultRuleset(),
		clock:      core.SystemClock{},
		mode:       engine.DispatchAsync,
		log:        zerolog.Nop(),
		maxRetries: engine.DefaultMaxRetries,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.storage == nil {
		cfg.storage = mem.New()
	}

	eng, err := engine.NewEngine(cfg.rules, engine.WithClock(cfg.clock), engine.WithLogger(cfg.log))
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	busOpts := []engine.BusOption{engine.WithBusLogger(cfg.log)}
	if cfg.workers > 0 {
		busOpts = append(busOpts, engine.WithAsyncWorkers(cfg.workers, cfg.queue))
	}
	bus := engine.NewEventBus(cfg.mode, busOpts...)
	if cfg.hub != nil {
		bus.SubscribeAll(cfg.hub.Broadcast)
	}
	if len(cfg.hooks) > 0 {
		bridge := analytics.NewBridge(cfg.hooks...).WithLogger(cfg.log)
		bus.SubscribeAll(func(_ context.Context, e core.Event) { bridge.OnEvent(e) })
	}

	svcOpts := []engine.ServiceOption{
		engine.WithMaxRetries(cfg.maxRetries),
		engine.WithServiceLogger(cfg.log),
	}
	if cfg.board != nil {
		svcOpts = append(svcOpts, engine.WithBoard(cfg.board))
	}
	if cfg.lookupCache > 0 {
		cached, err := engine.NewCachedReferrerLookup(cfg.storage, cfg.lookupCache)
		if err != nil {
			return nil, fmt.Errorf("referrer cache: %w", err)
		}
		svcOpts = append(svcOpts, engine.WithReferrerLookup(cached))
	}
	return engine.NewService(eng, cfg.storage, bus, svcOpts...), nil
}

// MustNew is New for wiring code that cannot recover from a bad ruleset.
func MustNew(opts ...Option) *engine.Service {
	svc, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return svc
}
