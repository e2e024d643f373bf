package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"staygate/internal/platform/config"
	"staygate/internal/platform/metrics"
	"staygate/internal/submission/models"
)

// Selector finds guest records still awaiting a successful submission.
type Selector interface {
	ListRetryable(ctx context.Context, lookback time.Duration, limit int) ([]*models.Guest, error)
}

// Submitter sends one guest record to the gateway.
type Submitter interface {
	Submit(ctx context.Context, guestID uuid.UUID) (*models.Guest, error)
}

// Lease is an optional cross-replica lock; in a single-replica deployment
// the in-process lock suffices.
type Lease interface {
	TryAcquire(ctx context.Context, token string) (bool, error)
	Release(ctx context.Context) error
}

// Scheduler periodically retries unsent guest submissions: per run it picks
// at most BatchSize records created within Lookback, oldest first, and
// submits them strictly one at a time. A record failure never aborts the
// batch; a selection failure aborts the run.
type Scheduler struct {
	selector  Selector
	submitter Submitter

	interval  time.Duration
	batchSize int
	lookback  time.Duration

	mu      sync.Mutex
	lease   Lease
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithLease adds a cross-replica run lease.
func WithLease(lease Lease) Option {
	return func(s *Scheduler) {
		s.lease = lease
	}
}

// New constructs a scheduler from config bounds.
func New(selector Selector, submitter Submitter, cfg config.SchedulerConfig, opts ...Option) *Scheduler {
	s := &Scheduler{
		selector:  selector,
		submitter: submitter,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		lookback:  cfg.Lookback,
		logger:    slog.Default(),
	}
	if s.interval <= 0 {
		s.interval = 24 * time.Hour
	}
	if s.batchSize <= 0 {
		s.batchSize = 50
	}
	if s.lookback <= 0 {
		s.lookback = 30 * 24 * time.Hour
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "retry scheduler started",
		"interval", s.interval, "batch_size", s.batchSize, "lookback", s.lookback)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "scheduler run failed", "error", err)
			}
		}
	}
}

// RunOnce executes a single batch. Overlapping invocations are skipped, not
// queued.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.mu.TryLock() {
		s.logger.WarnContext(ctx, "scheduler run skipped, previous run still in progress")
		return nil
	}
	defer s.mu.Unlock()

	if s.lease != nil {
		ok, err := s.lease.TryAcquire(ctx, uuid.NewString())
		if err != nil {
			// Advisory: proceed on lease errors, the in-process lock
			// still guards this replica.
			s.logger.WarnContext(ctx, "run lease unavailable", "error", err)
		} else if !ok {
			s.logger.InfoContext(ctx, "scheduler run skipped, lease held by another replica")
			return nil
		} else {
			defer func() {
				if err := s.lease.Release(ctx); err != nil {
					s.logger.WarnContext(ctx, "run lease release failed", "error", err)
				}
			}()
		}
	}

	if s.metrics != nil {
		s.metrics.SchedulerRunsTotal.Inc()
	}

	records, err := s.selector.ListRetryable(ctx, s.lookback, s.batchSize)
	if err != nil {
		return fmt.Errorf("select retryable submissions: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SchedulerBatchSize.Observe(float64(len(records)))
	}
	if len(records) == 0 {
		s.logger.DebugContext(ctx, "scheduler run found nothing to retry")
		return nil
	}

	var sent, failed int
	for _, record := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.submitter.Submit(ctx, record.ID); err != nil {
			failed++
			if s.metrics != nil {
				s.metrics.RecordFailuresTotal.Inc()
			}
			s.logger.WarnContext(ctx, "scheduled submission failed",
				"guest_id", record.ID, "host_id", record.HostID, "error", err)
			continue
		}
		sent++
	}

	s.logger.InfoContext(ctx, "scheduler run finished",
		"selected", len(records), "sent", sent, "failed", failed)
	return nil
}
