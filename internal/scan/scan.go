// Package scan runs one fetch → normalize → filter → order → emit pass.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
	"github.com/JakeFAU/kapwatch/internal/metrics"
)

// Status is the outcome of one cycle.
type Status string

// Cycle outcomes.
const (
	StatusCompleted      Status = "completed"
	StatusFetchFailed    Status = "fetch_failed"
	StatusDispatchFailed Status = "dispatch_failed"
	StatusPanicked       Status = "panic"
)

// Normalizer converts raw records.
type Normalizer interface {
	Normalize(raw disclosure.RawRecord) (disclosure.Record, error)
}

// Matcher is the keyword filter.
type Matcher interface {
	Matches(rec disclosure.Record) bool
}

// Formatter renders a record as a message.
type Formatter interface {
	Format(rec disclosure.Record) disclosure.Message
}

// Archiver stores raw batches for auditing.
type Archiver interface {
	Archive(ctx context.Context, cycleID string, records []disclosure.RawRecord) (string, error)
}

// Deps are the collaborators a Cycle drives. Archiver and IDs are optional.
type Deps struct {
	Fetcher    disclosure.Fetcher
	Normalizer Normalizer
	Matcher    Matcher
	Ledger     disclosure.Ledger
	Formatter  Formatter
	Notifier   disclosure.Notifier
	Archiver   Archiver
	IDs        disclosure.IDGenerator
}

// Config controls a Cycle.
type Config struct {
	Destination     string
	FetchTimeout    time.Duration
	DispatchTimeout time.Duration
}

// Result summarises one cycle.
type Result struct {
	CycleID    string
	Status     Status
	Fetched    int
	Malformed  int
	Matched    int
	Skipped    int
	Dispatched []disclosure.Record
	Duration   time.Duration
}

// Cycle executes scan passes. It is not safe for concurrent use; the ledger
// is the only state shared between passes.
type Cycle struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Cycle.
func New(deps Deps, cfg Config, logger *zap.Logger) *Cycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 25 * time.Second
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 30 * time.Second
	}
	return &Cycle{deps: deps, cfg: cfg, logger: logger}
}

// Run performs one pass. The returned error wraps disclosure.ErrFetch or
// disclosure.ErrDispatch when the pass ended early.
func (c *Cycle) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	result := Result{CycleID: c.cycleID()}
	logger := c.logger.With(zap.String("cycle_id", result.CycleID))

	err := c.run(ctx, logger, &result)
	result.Duration = time.Since(start)
	metrics.ObserveCycle(string(result.Status))
	metrics.SetLedgerSize(c.deps.Ledger.Len())
	return result, err
}

func (c *Cycle) run(ctx context.Context, logger *zap.Logger, result *Result) error {
	raw, err := c.fetch(ctx)
	if err != nil {
		result.Status = StatusFetchFailed
		logger.Warn("fetch failed", zap.Error(err))
		return err
	}
	result.Fetched = len(raw)
	c.archive(ctx, logger, result.CycleID, raw)

	records := c.normalize(logger, raw, result)
	metrics.ObserveRecords(result.Fetched, result.Malformed)

	matches := lo.Filter(records, func(rec disclosure.Record, _ int) bool {
		return c.deps.Matcher.Matches(rec)
	})
	result.Matched = len(matches)

	// The feed is newest-first; emit oldest-first so a burst reads chronologically.
	lo.Reverse(matches)

	for _, rec := range matches {
		if c.deps.Ledger.Seen(rec.Key) {
			result.Skipped++
			continue
		}
		if err := c.dispatch(ctx, rec); err != nil {
			result.Status = StatusDispatchFailed
			metrics.ObserveDispatch("error")
			logger.Error("dispatch failed",
				zap.String("key", rec.Key),
				zap.String("company", rec.Company),
				zap.Error(err),
			)
			return err
		}
		c.deps.Ledger.Mark(rec.Key)
		metrics.ObserveDispatch("ok")
		result.Dispatched = append(result.Dispatched, rec)
		logger.Info("disclosure dispatched",
			zap.String("key", rec.Key),
			zap.String("company", rec.Company),
			zap.String("title", rec.Title),
		)
	}

	result.Status = StatusCompleted
	logger.Debug("cycle completed",
		zap.Int("fetched", result.Fetched),
		zap.Int("malformed", result.Malformed),
		zap.Int("matched", result.Matched),
		zap.Int("skipped", result.Skipped),
		zap.Int("dispatched", len(result.Dispatched)),
	)
	return nil
}

func (c *Cycle) fetch(ctx context.Context) ([]disclosure.RawRecord, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	raw, err := c.deps.Fetcher.Fetch(fetchCtx)
	metrics.ObserveFetchDuration(time.Since(start))
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: timed out after %s: %w", disclosure.ErrFetch, c.cfg.FetchTimeout, err)
		}
		if errors.Is(err, disclosure.ErrFetch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", disclosure.ErrFetch, err)
	}
	return raw, nil
}

func (c *Cycle) archive(ctx context.Context, logger *zap.Logger, cycleID string, raw []disclosure.RawRecord) {
	if c.deps.Archiver == nil {
		return
	}
	uri, err := c.deps.Archiver.Archive(ctx, cycleID, raw)
	if err != nil {
		logger.Warn("archive batch failed", zap.Error(err))
		return
	}
	logger.Debug("batch archived", zap.String("uri", uri))
}

func (c *Cycle) normalize(logger *zap.Logger, raw []disclosure.RawRecord, result *Result) []disclosure.Record {
	records := make([]disclosure.Record, 0, len(raw))
	for i, r := range raw {
		rec, err := c.deps.Normalizer.Normalize(r)
		if err != nil {
			result.Malformed++
			logger.Warn("skipping malformed record", zap.Int("index", i), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records
}

func (c *Cycle) dispatch(ctx context.Context, rec disclosure.Record) error {
	dispatchCtx, cancel := context.WithTimeout(ctx, c.cfg.DispatchTimeout)
	defer cancel()

	msg := c.deps.Formatter.Format(rec)
	if err := c.deps.Notifier.Notify(dispatchCtx, c.cfg.Destination, msg); err != nil {
		if errors.Is(err, disclosure.ErrDispatch) {
			return err
		}
		return fmt.Errorf("%w: %w", disclosure.ErrDispatch, err)
	}
	return nil
}

func (c *Cycle) cycleID() string {
	if c.deps.IDs == nil {
		return ""
	}
	id, err := c.deps.IDs.NewID()
	if err != nil {
		c.logger.Warn("cycle id generation failed", zap.Error(err))
		return ""
	}
	return id
}
