// Package nats publishes notifications to NATS subjects, optionally through
// JetStream for acknowledged delivery.
package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

// Config controls the connection.
type Config struct {
	URL       string
	Name      string
	JetStream bool
}

// publisher is the subset of a NATS connection the notifier needs.
type publisher interface {
	Publish(ctx context.Context, subject string, data []byte, header nats.Header) error
	Close() error
}

// Notifier publishes each message as JSON to the destination subject.
type Notifier struct {
	pub    publisher
	logger *zap.Logger
}

// Connect dials the server and returns a Notifier.
func Connect(cfg Config, logger *zap.Logger) (*Notifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: nats url is required", disclosure.ErrFatalConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	name := cfg.Name
	if name == "" {
		name = "kapwatch"
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected from nats", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to nats", zap.String("server", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to nats: %w", disclosure.ErrFatalConfig, err)
	}

	var pub publisher = &corePublisher{conn: conn}
	if cfg.JetStream {
		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: jetstream: %w", disclosure.ErrFatalConfig, err)
		}
		pub = &jetStreamPublisher{conn: conn, js: js}
	}
	logger.Info("connected to nats", zap.String("server", conn.ConnectedUrl()), zap.Bool("jetstream", cfg.JetStream))
	return &Notifier{pub: pub, logger: logger}, nil
}

// Notify publishes msg. With core NATS the call returns once the server has
// processed the publish; with JetStream once the stream acknowledged it.
func (n *Notifier) Notify(ctx context.Context, destination string, msg disclosure.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	header := nats.Header{}
	header.Set("Kapwatch-Key", msg.Record.Key)
	if msg.Record.Key != "" {
		// JetStream drops duplicates within its window on this header.
		header.Set(nats.MsgIdHdr, msg.Record.Key)
	}
	if err := n.pub.Publish(ctx, destination, data, header); err != nil {
		return fmt.Errorf("publish to %s: %w", destination, err)
	}
	n.logger.Debug("nats message published", zap.String("subject", destination), zap.String("key", msg.Record.Key))
	return nil
}

// Close drains the connection.
func (n *Notifier) Close() error {
	return n.pub.Close()
}

type corePublisher struct {
	conn *nats.Conn
}

func (p *corePublisher) Publish(ctx context.Context, subject string, data []byte, header nats.Header) error {
	if err := p.conn.PublishMsg(&nats.Msg{Subject: subject, Data: data, Header: header}); err != nil {
		return err
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func (p *corePublisher) Close() error {
	return drain(p.conn)
}

type jetStreamPublisher struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

func (p *jetStreamPublisher) Publish(ctx context.Context, subject string, data []byte, header nats.Header) error {
	if _, err := p.js.PublishMsg(ctx, &nats.Msg{Subject: subject, Data: data, Header: header}); err != nil {
		return err
	}
	return nil
}

func (p *jetStreamPublisher) Close() error {
	return drain(p.conn)
}

func drain(conn *nats.Conn) error {
	if conn == nil || !conn.IsConnected() {
		return nil
	}
	if err := conn.Drain(); err != nil {
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}
