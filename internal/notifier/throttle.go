// Package notifier holds decorators shared by every notification channel.
// Concrete channels live in the sub-packages.
package notifier

import (
	"context"
	"fmt"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
	"github.com/JakeFAU/kapwatch/internal/policy/ratelimit"
)

// Waiter blocks until a send to key is allowed.
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

var _ Waiter = (*ratelimit.Limiter)(nil)

// Throttled delays each Notify until the destination's bucket has a token.
type Throttled struct {
	next   disclosure.Notifier
	waiter Waiter
}

// NewThrottled wraps next. A nil waiter returns next unchanged.
func NewThrottled(next disclosure.Notifier, waiter Waiter) disclosure.Notifier {
	if waiter == nil {
		return next
	}
	return &Throttled{next: next, waiter: waiter}
}

// Notify waits for a token and forwards the message.
func (t *Throttled) Notify(ctx context.Context, destination string, msg disclosure.Message) error {
	if err := t.waiter.Wait(ctx, destination); err != nil {
		return fmt.Errorf("%w: throttle %s: %w", disclosure.ErrDispatch, destination, err)
	}
	return t.next.Notify(ctx, destination, msg)
}
