// Package telegram delivers notifications through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

// Config holds bot credentials.
type Config struct {
	Token string
	// ChatID is the destination notifications go to. When set it is checked
	// before the bot is contacted.
	ChatID string
	// Endpoint overrides the Bot API URL template; it must contain two %s
	// verbs for the token and the method.
	Endpoint string
	Timeout  time.Duration
}

// Notifier sends HTML messages to a chat or channel.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	logger *zap.Logger
}

// New creates the bot and validates the token with getMe. Any failure is a
// startup configuration error.
func New(cfg Config, logger *zap.Logger) (*Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("%w: telegram token is required", disclosure.ErrFatalConfig)
	}
	if cfg.ChatID != "" && !ValidDestination(cfg.ChatID) {
		return nil, fmt.Errorf("%w: telegram chat id %q is neither numeric nor an @channel", disclosure.ErrFatalConfig, cfg.ChatID)
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("%w: telegram bot: %w", disclosure.ErrFatalConfig, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("telegram bot ready", zap.String("username", bot.Self.UserName))
	return &Notifier{bot: bot, logger: logger}, nil
}

// Notify sends msg to destination, a numeric chat id or an @channel name.
func (n *Notifier) Notify(ctx context.Context, destination string, msg disclosure.Message) error {
	out, err := newMessage(destination, msg)
	if err != nil {
		return err
	}

	type result struct {
		sent tgbotapi.Message
		err  error
	}
	done := make(chan result, 1)
	go func() {
		sent, err := n.bot.Send(out)
		done <- result{sent: sent, err: err}
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("telegram send canceled: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("telegram send to %s: %w", destination, r.err)
		}
		n.logger.Debug("telegram message sent",
			zap.String("destination", destination),
			zap.Int("message_id", r.sent.MessageID),
			zap.String("key", msg.Record.Key),
		)
		return nil
	}
}

func newMessage(destination string, msg disclosure.Message) (tgbotapi.MessageConfig, error) {
	destination = strings.TrimSpace(destination)
	var out tgbotapi.MessageConfig
	switch {
	case destination == "":
		return out, fmt.Errorf("telegram destination is empty")
	case strings.HasPrefix(destination, "@"):
		out = tgbotapi.NewMessageToChannel(destination, msg.Text)
	default:
		chatID, err := ParseChatID(destination)
		if err != nil {
			return out, err
		}
		out = tgbotapi.NewMessage(chatID, msg.Text)
	}
	if msg.ParseMode != "" {
		out.ParseMode = msg.ParseMode
	}
	out.DisableWebPagePreview = true
	return out, nil
}

// ParseChatID parses a numeric chat id.
func ParseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", s, err)
	}
	return id, nil
}

// ValidDestination reports whether s is a chat id or an @channel name.
func ValidDestination(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) > 1 && strings.HasPrefix(s, "@") {
		return true
	}
	_, err := ParseChatID(s)
	return err == nil
}
