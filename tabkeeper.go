package tabkeeper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/tabkeeper/internal/config"
	"github.com/aretw0/tabkeeper/internal/logging"
	"github.com/aretw0/tabkeeper/pkg/adapters/memory"
	"github.com/aretw0/tabkeeper/pkg/adapters/redis"
	"github.com/aretw0/tabkeeper/pkg/catalog"
	"github.com/aretw0/tabkeeper/pkg/conversation"
	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/aretw0/tabkeeper/pkg/gateway"
	"github.com/aretw0/tabkeeper/pkg/ledger"
	"github.com/aretw0/tabkeeper/pkg/metrics"
	"github.com/aretw0/tabkeeper/pkg/ports"
	"github.com/aretw0/tabkeeper/pkg/session"
	"github.com/aretw0/tabkeeper/pkg/tools"
	"github.com/prometheus/client_golang/prometheus"
)

// Version is overridden at build time with -ldflags "-X github.com/aretw0/tabkeeper.Version=...".
var Version = "dev"

// App is a fully wired session core: store, lock registry, ledger, menu,
// payment gateway and toolbox.
type App struct {
	Config   *config.Config
	Store    ports.SessionStore
	Registry *session.Registry
	Sessions *session.Manager
	Ledger   *ledger.Ledger
	Catalog  *catalog.Menu
	Gateway  *gateway.Simulated
	Tools    *tools.Toolbox
	Metrics  *metrics.Metrics

	logger   *slog.Logger
	notifier tools.Notifier
	reg      prometheus.Registerer
	closers  []func() error
}

// Option configures New.
type Option func(*App)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithRegisterer registers the collectors with reg. Without it the app
// records nothing.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) {
		a.reg = reg
	}
}

// WithStore replaces the store selected by the configuration.
func WithStore(store ports.SessionStore) Option {
	return func(a *App) {
		a.Store = store
	}
}

// WithNotifier is told about every session a tool call changed.
func WithNotifier(n tools.Notifier) Option {
	return func(a *App) {
		a.notifier = n
	}
}

// New wires an App from cfg. A nil cfg means config.Default().
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{Config: cfg, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	if a.reg != nil {
		a.Metrics = metrics.New(a.reg)
	}

	balance, err := cfg.InitialBalance()
	if err != nil {
		return nil, err
	}

	if a.Store == nil {
		a.Store, err = a.openStore(cfg.Store)
		if err != nil {
			return nil, err
		}
	}

	a.Registry = session.NewRegistry(
		session.WithRegistryLogger(a.logger),
		session.WithEvictHook(func(id string) {
			a.logger.Debug("session lock evicted", "session_id", id)
		}),
	)
	metrics.RegistrySize(a.reg, a.Registry.Len)

	a.Sessions = session.NewManager(a.Store,
		session.WithRegistry(a.Registry),
		session.WithDefaults(domain.Defaults{InitialBalance: balance}),
		session.WithLogger(a.logger),
		session.WithMetrics(a.Metrics),
	)
	a.Ledger = ledger.New(a.Sessions,
		ledger.WithLogger(a.logger),
		ledger.WithMetrics(a.Metrics),
	)

	if cfg.Catalog.Path != "" {
		a.Catalog, err = catalog.Load(cfg.Catalog.Path)
		if err != nil {
			return nil, err
		}
	} else {
		a.Catalog = catalog.Default()
	}

	outcome, err := gateway.ParseOutcome(cfg.Gateway.Outcome)
	if err != nil {
		return nil, err
	}
	a.Gateway = gateway.NewSimulated(
		gateway.WithOutcome(outcome),
		gateway.WithSettleAfter(cfg.Gateway.SettleAfter),
		gateway.WithBaseURL(cfg.Gateway.BaseURL),
		gateway.WithLogger(a.logger),
	)

	a.Tools = tools.New(a.Ledger, a.Catalog, a.Gateway,
		tools.WithPolicy(conversation.DefaultPolicy()),
		tools.WithPollTimeout(cfg.Gateway.PollTimeout, cfg.Gateway.MaxPollTimeout),
		// late-bound so adapters built after New can subscribe
		tools.WithNotifier(a.notify),
		tools.WithLogger(a.logger),
		tools.WithMetrics(a.Metrics),
	)
	return a, nil
}

func (a *App) openStore(cfg config.StoreConfig) (ports.SessionStore, error) {
	switch cfg.Driver {
	case config.DriverRedis:
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.TTL),
		)
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return memory.NewStore(), nil
	}
}

// SetNotifier replaces the change callback, typically with an adapter's
// publish function once it exists.
func (a *App) SetNotifier(n tools.Notifier) {
	a.notifier = n
}

func (a *App) notify(sessionID, tool string) {
	if a.notifier != nil {
		a.notifier(sessionID, tool)
	}
}

// Ping checks the store, when it supports it.
func (a *App) Ping(ctx context.Context) error {
	if p, ok := a.Store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Sweeper returns a sweeper for the lock registry using the configured
// interval and idle limit, or nil when sweeping is disabled.
func (a *App) Sweeper() *session.Sweeper {
	if a.Config.Session.SweepInterval <= 0 {
		return nil
	}
	return session.NewSweeper(a.Registry, a.Config.Session.SweepInterval, a.Config.Session.MaxIdle,
		session.WithSweepLogger(a.logger),
		session.WithSweepHook(a.Metrics.LocksEvicted),
	)
}

// Close releases the store's connections.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
