// Package pubsub publishes notifications to Google Cloud Pub/Sub topics.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

// Notifier publishes each message as JSON to the destination topic.
type Notifier struct {
	client *pubsub.Client
	logger *zap.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// Dial creates a Pub/Sub client for projectID.
func Dial(ctx context.Context, projectID string, logger *zap.Logger, opts ...option.ClientOption) (*Notifier, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: pubsub project id is required", disclosure.ErrFatalConfig)
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: pubsub client: %w", disclosure.ErrFatalConfig, err)
	}
	return New(client, logger), nil
}

// New wraps an existing client. The Notifier takes ownership of it.
func New(client *pubsub.Client, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{client: client, logger: logger, topics: make(map[string]*pubsub.Topic)}
}

// Notify publishes msg and waits for the server to acknowledge it.
func (n *Notifier) Notify(ctx context.Context, destination string, msg disclosure.Message) error {
	if n.client == nil {
		return fmt.Errorf("pubsub client is not configured")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	result := n.topic(destination).Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"key":    msg.Record.Key,
			"source": msg.Record.Source,
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", destination, err)
	}
	n.logger.Debug("pubsub message published",
		zap.String("topic", destination),
		zap.String("message_id", id),
		zap.String("key", msg.Record.Key),
	)
	return nil
}

func (n *Notifier) topic(id string) *pubsub.Topic {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.topics[id]
	if !ok {
		t = n.client.Topic(id)
		// one message per cycle step; do not wait for a batch to fill
		t.PublishSettings.CountThreshold = 1
		n.topics[id] = t
	}
	return t
}

// Close flushes pending publishes and closes the client.
func (n *Notifier) Close() error {
	n.mu.Lock()
	for _, t := range n.topics {
		t.Stop()
	}
	n.topics = map[string]*pubsub.Topic{}
	n.mu.Unlock()
	if n.client == nil {
		return nil
	}
	if err := n.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
