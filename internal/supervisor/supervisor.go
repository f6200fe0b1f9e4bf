// Package supervisor drives scan cycles forever on a fixed interval.
//
// A failed cycle (fetch or dispatch) is followed by a longer cooldown and,
// for session-based fetchers, a fresh session. Independently of failures the
// session is recycled every RecycleAfter completed cycles. Stop requests are
// honoured between cycles and during sleeps, never in the middle of a cycle.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
	"github.com/JakeFAU/kapwatch/internal/metrics"
	"github.com/JakeFAU/kapwatch/internal/scan"
)

// Cycle runs one scan pass.
type Cycle interface {
	Run(ctx context.Context) (scan.Result, error)
}

// Pusher publishes metrics after each cycle.
type Pusher interface {
	Push(ctx context.Context) error
}

// Config controls pacing and recycling.
type Config struct {
	Interval     time.Duration
	Cooldown     time.Duration
	RecycleAfter int
}

// Supervisor owns the cycle counter and the fetch session.
type Supervisor struct {
	cycle   Cycle
	session disclosure.Session
	sleeper disclosure.Sleeper
	pusher  Pusher
	cfg     Config
	logger  *zap.Logger

	mu        sync.Mutex
	state     State
	completed int

	// OnTransition, when set, is called on every state change.
	OnTransition func(from, to State)
}

// SessionOf returns f as a Session when it holds one, or nil.
func SessionOf(f disclosure.Fetcher) disclosure.Session {
	if s, ok := f.(disclosure.Session); ok {
		return s
	}
	return nil
}

// New constructs a Supervisor. session may be nil for stateless fetchers and
// pusher may be nil when metrics are not pushed.
func New(
	cycle Cycle,
	session disclosure.Session,
	sleeper disclosure.Sleeper,
	pusher Pusher,
	cfg Config,
	logger *zap.Logger,
) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		cycle:   cycle,
		session: session,
		sleeper: sleeper,
		pusher:  pusher,
		cfg:     cfg,
		logger:  logger,
		state:   StateIdle,
	}
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Completed returns the number of cycles completed since the session was
// last (re)created.
func (s *Supervisor) Completed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Run loops until ctx is canceled and returns ctx's error.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor starting",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("cooldown", s.cfg.Cooldown),
		zap.Int("recycle_after", s.cfg.RecycleAfter),
		zap.Bool("session", s.session != nil),
	)
	defer s.shutdown()

	if s.session != nil {
		if err := s.session.Open(ctx); err != nil {
			s.logger.Error("open fetch session failed", zap.Error(err))
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("supervisor stopped: %w", err)
		}

		s.transition(StateRunning)
		result, err := s.runCycle(ctx)
		s.pushMetrics(ctx)

		if err != nil {
			if stopErr := s.handleFailure(ctx, result, err); stopErr != nil {
				return stopErr
			}
			continue
		}

		s.mu.Lock()
		s.completed++
		due := s.session != nil && s.cfg.RecycleAfter > 0 && s.completed >= s.cfg.RecycleAfter
		s.mu.Unlock()

		if due {
			s.transition(StateRecyclingSession)
			s.recycle(ctx, "scheduled")
		}

		s.transition(StateSleeping)
		if err := s.sleeper.Sleep(ctx, s.cfg.Interval); err != nil {
			return fmt.Errorf("supervisor stopped: %w", err)
		}
	}
}

// runCycle shields the cycle from cancellation so a stop request never cuts a
// dispatch in half, and converts panics into cycle failures.
func (s *Supervisor) runCycle(ctx context.Context) (result scan.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = scan.Result{Status: scan.StatusPanicked}
			err = fmt.Errorf("cycle panic: %v", r)
			metrics.ObserveCycle(string(result.Status))
		}
	}()
	return s.cycle.Run(context.WithoutCancel(ctx))
}

// handleFailure applies the failure policy: cooldown, then a new session.
func (s *Supervisor) handleFailure(ctx context.Context, result scan.Result, cycleErr error) error {
	s.logger.Error("cycle failed; cooling down",
		zap.String("cycle_id", result.CycleID),
		zap.String("status", string(result.Status)),
		zap.Bool("fetch_error", errors.Is(cycleErr, disclosure.ErrFetch)),
		zap.Bool("dispatch_error", errors.Is(cycleErr, disclosure.ErrDispatch)),
		zap.Duration("cooldown", s.cfg.Cooldown),
		zap.Error(cycleErr),
	)

	s.transition(StateCoolingDown)
	if err := s.sleeper.Sleep(ctx, s.cfg.Cooldown); err != nil {
		return fmt.Errorf("supervisor stopped: %w", err)
	}

	if s.session != nil {
		s.transition(StateRecoveringSession)
		s.recycle(ctx, "failure")
	}
	return nil
}

func (s *Supervisor) recycle(ctx context.Context, reason string) {
	s.logger.Info("recycling fetch session", zap.String("reason", reason), zap.Int("completed", s.Completed()))
	if err := s.session.Close(); err != nil {
		s.logger.Warn("close fetch session failed", zap.Error(err))
	}
	if err := s.session.Open(ctx); err != nil {
		// The next fetch fails and routes back through handleFailure.
		s.logger.Error("reopen fetch session failed", zap.Error(err))
	}
	s.mu.Lock()
	s.completed = 0
	s.mu.Unlock()
	metrics.ObserveRecycle(reason)
}

func (s *Supervisor) pushMetrics(ctx context.Context) {
	if s.pusher == nil {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.pusher.Push(pushCtx); err != nil {
		s.logger.Warn("metrics push failed", zap.Error(err))
	}
}

func (s *Supervisor) shutdown() {
	if s.session != nil {
		if err := s.session.Close(); err != nil {
			s.logger.Warn("close fetch session failed", zap.Error(err))
		}
	}
	s.transition(StateStopped)
	s.logger.Info("supervisor stopped")
}

func (s *Supervisor) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	hook := s.OnTransition
	s.mu.Unlock()

	metrics.SetSupervisorState(int(to))
	if from != to {
		s.logger.Debug("state transition", zap.Stringer("from", from), zap.Stringer("to", to))
	}
	if hook != nil {
		hook(from, to)
	}
}
