// Package logsink is a dry-run notifier that writes messages to the log.
package logsink

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

// Notifier logs every message at info level and never fails.
type Notifier struct {
	logger *zap.Logger
}

// New returns a Notifier writing to logger.
func New(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{logger: logger.Named("logsink")}
}

// Notify logs msg.
func (n *Notifier) Notify(_ context.Context, destination string, msg disclosure.Message) error {
	n.logger.Info("disclosure notification",
		zap.String("destination", destination),
		zap.String("key", msg.Record.Key),
		zap.String("company", msg.Record.Company),
		zap.String("title", msg.Record.Title),
		zap.String("link", msg.Record.Link),
		zap.String("text", msg.Text),
	)
	return nil
}
