package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// Pusher ships the registry to a Prometheus Pushgateway.
type Pusher struct {
	pusher *push.Pusher
}

// NewPusher returns a Pusher for the gateway at url under the given job name.
// A nil Pusher is returned when url is empty.
func NewPusher(url, job string) *Pusher {
	if url == "" {
		return nil
	}
	if job == "" {
		job = "kapwatch"
	}
	Init()
	return &Pusher{pusher: push.New(url, job).Gatherer(Registry)}
}

// Push replaces the job's metrics on the gateway. It is a no-op on a nil Pusher.
func (p *Pusher) Push(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := p.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
