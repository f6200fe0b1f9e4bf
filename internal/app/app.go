// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/kapwatch/internal/archive"
	"github.com/JakeFAU/kapwatch/internal/clock/system"
	"github.com/JakeFAU/kapwatch/internal/config"
	"github.com/JakeFAU/kapwatch/internal/disclosure"
	"github.com/JakeFAU/kapwatch/internal/fetcher/api"
	"github.com/JakeFAU/kapwatch/internal/fetcher/headless"
	"github.com/JakeFAU/kapwatch/internal/fetcher/rss"
	"github.com/JakeFAU/kapwatch/internal/hash/sha256"
	"github.com/JakeFAU/kapwatch/internal/id/uuid"
	"github.com/JakeFAU/kapwatch/internal/ledger"
	"github.com/JakeFAU/kapwatch/internal/message"
	"github.com/JakeFAU/kapwatch/internal/metrics"
	"github.com/JakeFAU/kapwatch/internal/normalize"
	"github.com/JakeFAU/kapwatch/internal/notifier"
	"github.com/JakeFAU/kapwatch/internal/notifier/logsink"
	natsnotifier "github.com/JakeFAU/kapwatch/internal/notifier/nats"
	pubsubnotifier "github.com/JakeFAU/kapwatch/internal/notifier/pubsub"
	"github.com/JakeFAU/kapwatch/internal/notifier/telegram"
	"github.com/JakeFAU/kapwatch/internal/policy/ratelimit"
	"github.com/JakeFAU/kapwatch/internal/scan"
	"github.com/JakeFAU/kapwatch/internal/supervisor"
)

// Option overrides a collaborator, mainly for tests and smoke runs.
type Option func(*options)

type options struct {
	fetcher  disclosure.Fetcher
	notifier disclosure.Notifier
	sleeper  disclosure.Sleeper
}

// WithFetcher replaces the configured fetch strategy.
func WithFetcher(f disclosure.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithNotifier replaces the configured notification channel.
func WithNotifier(n disclosure.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithSleeper replaces the wall-clock sleeper used between cycles.
func WithSleeper(s disclosure.Sleeper) Option {
	return func(o *options) { o.sleeper = s }
}

type closer struct {
	name  string
	close func() error
}

// App holds all the shared, long-lived services for the watcher. It is
// built once at startup and closed by a Cobra hook when the command ends.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	fetcher    disclosure.Fetcher
	ledger     disclosure.Ledger
	cycle      *scan.Cycle
	supervisor *supervisor.Supervisor
	pusher     *metrics.Pusher
	closers    []closer
}

// New wires every service from cfg. It fails fast: any error here is a
// startup error and is wrapped with disclosure.ErrFatalConfig when it stems
// from configuration.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger}
	logger.Info("initializing application services",
		zap.String("strategy", cfg.Fetch.Strategy),
		zap.String("channel", cfg.Notify.Channel),
		zap.String("keyword", cfg.Filter.Keyword),
	)

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.fetcher = o.fetcher
	if a.fetcher == nil {
		f, err := a.buildFetcher()
		if err != nil {
			return nil, err
		}
		a.fetcher = f
	}

	sink := o.notifier
	if sink == nil {
		n, err := a.buildNotifier(ctx)
		if err != nil {
			return nil, err
		}
		sink = n
	}
	if cfg.Notify.RatePerSecond > 0 {
		sink = notifier.NewThrottled(sink, ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Notify.RatePerSecond,
			DefaultBurst: 1,
		}))
	}

	archiver, err := a.buildArchiver(ctx)
	if err != nil {
		return nil, err
	}

	led, err := ledger.New(cfg.Ledger.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("%w: ledger: %w", disclosure.ErrFatalConfig, err)
	}
	a.ledger = led

	matcher, err := normalize.NewMatcher(cfg.Filter.Keyword, cfg.Filter.Locale)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", disclosure.ErrFatalConfig, err)
	}

	deps := scan.Deps{
		Fetcher:    a.fetcher,
		Normalizer: normalize.New(sha256.New(), normalize.DefaultLinkBase),
		Matcher:    matcher,
		Ledger:     led,
		Formatter:  message.NewFormatter(cfg.Notify.Header),
		Notifier:   sink,
		IDs:        uuid.New(),
	}
	if archiver != nil {
		deps.Archiver = archiver
	}
	a.cycle = scan.New(deps, scan.Config{
		Destination:     cfg.Destination(),
		FetchTimeout:    cfg.Fetch.Timeout,
		DispatchTimeout: cfg.Notify.DispatchTimeout,
	}, logger)

	a.pusher = metrics.NewPusher(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job)
	var pusher supervisor.Pusher
	if a.pusher != nil {
		pusher = a.pusher
	}
	sleeper := o.sleeper
	if sleeper == nil {
		sleeper = system.New()
	}
	a.supervisor = supervisor.New(a.cycle, supervisor.SessionOf(a.fetcher), sleeper, pusher, supervisor.Config{
		Interval:     cfg.Poll.Interval,
		Cooldown:     cfg.Poll.Cooldown,
		RecycleAfter: cfg.Session.RecycleAfter,
	}, logger)

	ok = true
	logger.Info("application services initialized")
	return a, nil
}

func (a *App) buildFetcher() (disclosure.Fetcher, error) {
	cfg := a.cfg.Fetch
	switch cfg.Strategy {
	case config.StrategyAPI:
		return api.New(api.Config{
			URL:       cfg.APIURL,
			Query:     a.cfg.Filter.Keyword,
			PageSize:  cfg.PageSize,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.Timeout,
		}), nil
	case config.StrategyBrowser:
		return headless.New(headless.Config{
			PageURL:           cfg.PageURL,
			UserAgent:         cfg.UserAgent,
			NavigationTimeout: cfg.Timeout,
		}, a.logger.Named("browser")), nil
	case config.StrategyRSS:
		f, err := rss.New(rss.Config{URL: cfg.FeedURL, UserAgent: cfg.UserAgent, Timeout: cfg.Timeout})
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: unknown fetch strategy %q", disclosure.ErrFatalConfig, cfg.Strategy)
	}
}

func (a *App) buildNotifier(ctx context.Context) (disclosure.Notifier, error) {
	switch a.cfg.Notify.Channel {
	case config.ChannelTelegram:
		return telegram.New(telegram.Config{
			Token:   a.cfg.Telegram.Token,
			ChatID:  a.cfg.Telegram.ChatID,
			Timeout: a.cfg.Notify.DispatchTimeout,
		}, a.logger.Named("telegram"))
	case config.ChannelPubSub:
		n, err := pubsubnotifier.Dial(ctx, a.cfg.PubSub.ProjectID, a.logger.Named("pubsub"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closer{name: "pubsub", close: n.Close})
		return n, nil
	case config.ChannelNATS:
		n, err := natsnotifier.Connect(natsnotifier.Config{
			URL:       a.cfg.NATS.URL,
			JetStream: a.cfg.NATS.JetStream,
		}, a.logger.Named("nats"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closer{name: "nats", close: n.Close})
		return n, nil
	case config.ChannelLog:
		return logsink.New(a.logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown notify channel %q", disclosure.ErrFatalConfig, a.cfg.Notify.Channel)
	}
}

func (a *App) buildArchiver(ctx context.Context) (*archive.Archiver, error) {
	cfg := a.cfg.Archive
	var store archive.BlobStore
	switch cfg.Provider {
	case config.ArchiveNone, "":
		return nil, nil
	case config.ArchiveGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: storage client: %w", disclosure.ErrFatalConfig, err)
		}
		gcs, err := archive.NewGCSStore(client, cfg.Bucket)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("%w: %w", disclosure.ErrFatalConfig, err)
		}
		a.closers = append(a.closers, closer{name: "gcs", close: gcs.Close})
		store = gcs
	case config.ArchiveLocal:
		local, err := archive.NewLocalStore(cfg.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", disclosure.ErrFatalConfig, err)
		}
		store = local
	default:
		return nil, fmt.Errorf("%w: unknown archive provider %q", disclosure.ErrFatalConfig, cfg.Provider)
	}
	a.logger.Info("archiving raw batches", zap.String("provider", cfg.Provider), zap.String("prefix", cfg.Prefix))
	return archive.New(store, cfg.Prefix, system.New()), nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Ledger exposes the dedup ledger.
func (a *App) Ledger() disclosure.Ledger {
	return a.ledger
}

// Supervisor returns the polling supervisor.
func (a *App) Supervisor() *supervisor.Supervisor {
	return a.supervisor
}

// Run polls until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	return a.supervisor.Run(ctx)
}

// RunOnce executes a single scan cycle, opening and closing the fetch session
// around it when the strategy needs one.
func (a *App) RunOnce(ctx context.Context) (scan.Result, error) {
	if session := supervisor.SessionOf(a.fetcher); session != nil {
		if err := session.Open(ctx); err != nil {
			return scan.Result{Status: scan.StatusFetchFailed}, fmt.Errorf("%w: open session: %w", disclosure.ErrFetch, err)
		}
		defer func() {
			if err := session.Close(); err != nil {
				a.logger.Warn("close fetch session failed", zap.Error(err))
			}
		}()
	}
	result, err := a.cycle.Run(ctx)
	if pushErr := a.pusher.Push(context.WithoutCancel(ctx)); pushErr != nil {
		a.logger.Warn("metrics push failed", zap.Error(pushErr))
	}
	return result, err
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	// Sync fails harmlessly on stderr/stdout for some platforms.
	_ = a.logger.Sync()
}
