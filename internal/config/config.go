// Package config loads and validates watcher configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

// EnvPrefix namespaces environment overrides, e.g. KAPWATCH_POLL_INTERVAL.
const EnvPrefix = "KAPWATCH"

// Fetch strategies.
const (
	StrategyAPI     = "api"
	StrategyBrowser = "browser"
	StrategyRSS     = "rss"
)

// Notification channels.
const (
	ChannelTelegram = "telegram"
	ChannelPubSub   = "pubsub"
	ChannelNATS     = "nats"
	ChannelLog      = "log"
)

// Archive providers.
const (
	ArchiveNone  = "none"
	ArchiveGCS   = "gcs"
	ArchiveLocal = "local"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Poll     PollConfig     `mapstructure:"poll"`
	Filter   FilterConfig   `mapstructure:"filter"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Session  SessionConfig  `mapstructure:"session"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PollConfig paces the supervisor.
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// FilterConfig selects matching disclosures.
type FilterConfig struct {
	Keyword string `mapstructure:"keyword"`
	Locale  string `mapstructure:"locale"`
}

// FetchConfig chooses and tunes the fetch strategy.
type FetchConfig struct {
	Strategy  string        `mapstructure:"strategy"`
	Timeout   time.Duration `mapstructure:"timeout"`
	APIURL    string        `mapstructure:"api_url"`
	PageSize  int           `mapstructure:"page_size"`
	PageURL   string        `mapstructure:"page_url"`
	FeedURL   string        `mapstructure:"feed_url"`
	UserAgent string        `mapstructure:"user_agent"`
}

// SessionConfig controls proactive recycling of session-based fetchers.
type SessionConfig struct {
	RecycleAfter int `mapstructure:"recycle_after"`
}

// LedgerConfig bounds the dedup ledger. Zero means unbounded.
type LedgerConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
}

// NotifyConfig selects the notification channel.
type NotifyConfig struct {
	Channel         string        `mapstructure:"channel"`
	Header          string        `mapstructure:"header"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
}

// TelegramConfig holds bot credentials.
type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID string `mapstructure:"chat_id"`
}

// PubSubConfig names the Google Cloud Pub/Sub topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// NATSConfig names the NATS server and subject.
type NATSConfig struct {
	URL       string `mapstructure:"url"`
	Subject   string `mapstructure:"subject"`
	JetStream bool   `mapstructure:"jetstream"`
}

// ArchiveConfig sets where raw batches are written.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	BaseDir  string `mapstructure:"base_dir"`
	Prefix   string `mapstructure:"prefix"`
}

// MetricsConfig enables pushing to a Prometheus Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from .env, an optional file and the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: load .env: %w", disclosure.ErrFatalConfig, err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindAliases(v)

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read config: %w", disclosure.ErrFatalConfig, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshal config: %w", disclosure.ErrFatalConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// bindAliases honours the bare variable names used by existing deployments.
func bindAliases(v *viper.Viper) {
	_ = v.BindEnv("telegram.token", EnvPrefix+"_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("telegram.chat_id", EnvPrefix+"_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("poll.interval", "45s")
	v.SetDefault("poll.cooldown", "120s")
	v.SetDefault("filter.keyword", "Yeni İş İlişkisi")
	v.SetDefault("filter.locale", "tr")
	v.SetDefault("fetch.strategy", StrategyAPI)
	v.SetDefault("fetch.timeout", "25s")
	v.SetDefault("fetch.api_url", "https://www.kap.org.tr/tr/api/kapt-data-collector/search")
	v.SetDefault("fetch.page_size", 25)
	v.SetDefault("fetch.page_url", "https://www.kap.org.tr/tr/bildirim-sorgu")
	v.SetDefault("fetch.feed_url", "")
	v.SetDefault("fetch.user_agent", "kapwatch/1.0")
	v.SetDefault("session.recycle_after", 50)
	v.SetDefault("ledger.max_entries", 0)
	v.SetDefault("notify.channel", ChannelTelegram)
	v.SetDefault("notify.header", "Yeni İş İlişkisi Bildirimi")
	v.SetDefault("notify.rate_per_second", 1.0)
	v.SetDefault("notify.dispatch_timeout", "30s")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "")
	v.SetDefault("nats.jetstream", false)
	v.SetDefault("archive.provider", ArchiveNone)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "kapwatch")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits. Every error wraps
// disclosure.ErrFatalConfig.
func (c Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Poll.Interval <= 0 {
		fail("poll.interval must be > 0")
	}
	if c.Poll.Cooldown <= c.Poll.Interval {
		fail("poll.cooldown (%s) must be greater than poll.interval (%s)", c.Poll.Cooldown, c.Poll.Interval)
	}
	if strings.TrimSpace(c.Filter.Keyword) == "" {
		fail("filter.keyword must be set")
	}
	if _, err := language.Parse(c.Filter.Locale); err != nil {
		fail("filter.locale %q: %w", c.Filter.Locale, err)
	}
	if c.Fetch.Timeout <= 0 {
		fail("fetch.timeout must be > 0")
	}
	switch c.Fetch.Strategy {
	case StrategyAPI:
		if c.Fetch.APIURL == "" {
			fail("fetch.api_url must be set for the api strategy")
		}
		if c.Fetch.PageSize <= 0 {
			fail("fetch.page_size must be > 0")
		}
	case StrategyBrowser:
		if c.Fetch.PageURL == "" {
			fail("fetch.page_url must be set for the browser strategy")
		}
	case StrategyRSS:
		if c.Fetch.FeedURL == "" {
			fail("fetch.feed_url must be set for the rss strategy")
		}
	default:
		fail("unknown fetch.strategy %q", c.Fetch.Strategy)
	}
	if c.Session.RecycleAfter < 0 {
		fail("session.recycle_after must be >= 0")
	}
	if c.Ledger.MaxEntries < 0 {
		fail("ledger.max_entries must be >= 0")
	}
	if c.Notify.RatePerSecond < 0 {
		fail("notify.rate_per_second must be >= 0")
	}
	if c.Notify.DispatchTimeout <= 0 {
		fail("notify.dispatch_timeout must be > 0")
	}
	switch c.Notify.Channel {
	case ChannelTelegram:
		if c.Telegram.Token == "" || c.Telegram.ChatID == "" {
			fail("telegram.token and telegram.chat_id (or TELEGRAM_BOT_TOKEN / TELEGRAM_CHAT_ID) must be set")
		}
	case ChannelPubSub:
		if c.PubSub.ProjectID == "" || c.PubSub.Topic == "" {
			fail("pubsub.project_id and pubsub.topic must be set")
		}
	case ChannelNATS:
		if c.NATS.URL == "" || c.NATS.Subject == "" {
			fail("nats.url and nats.subject must be set")
		}
	case ChannelLog:
	default:
		fail("unknown notify.channel %q", c.Notify.Channel)
	}
	switch c.Archive.Provider {
	case ArchiveNone, "":
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			fail("archive.bucket must be set for the gcs provider")
		}
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			fail("archive.base_dir must be set for the local provider")
		}
	default:
		fail("unknown archive.provider %q", c.Archive.Provider)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", disclosure.ErrFatalConfig, errors.Join(errs...))
}

// Destination returns the channel-specific address notifications go to.
func (c Config) Destination() string {
	switch c.Notify.Channel {
	case ChannelTelegram:
		return c.Telegram.ChatID
	case ChannelPubSub:
		return c.PubSub.Topic
	case ChannelNATS:
		return c.NATS.Subject
	default:
		return c.Notify.Channel
	}
}
