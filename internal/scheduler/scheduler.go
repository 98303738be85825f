package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paysettle/internal/clock"
	obsmetrics "github.com/smallbiznis/paysettle/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/paysettle/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const jobReconcilePending = "reconcile_pending"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	PaymentSvc paymentdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Config     Config              `optional:"true"`
}

// Scheduler periodically reconciles payments the gateway never called back for.
type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	paymentSvc paymentdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Repo == nil || p.PaymentSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		paymentSvc: p.PaymentSvc,
		obsMetrics: p.ObsMetrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.beginRun(ctx, name, batchSize)

	err := fn(ctx)
	s.obsMetrics.ObserveJobDuration(ctx, name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && !run.failed() {
			run.record(outcomeError)
		}
		s.logRunFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick continues where this one stopped
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, jobReconcilePending, s.cfg.BatchSize, s.cfg.JobTimeout, s.ReconcilePendingJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ReconcilePendingJob resyncs one batch of payments that have been pending
// longer than StaleAfter. A failure on one payment does not stop the batch.
func (s *Scheduler) ReconcilePendingJob(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.cfg.StaleAfter)

	codes, err := s.repo.ListStalePending(ctx, s.db, cutoff, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	var jobErr error
	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := s.paymentSvc.Resync(ctx, code)
		switch {
		case errors.Is(err, paymentdomain.ErrResyncInProgress),
			errors.Is(err, paymentdomain.ErrPaymentNotFound):
			s.recordOutcome(ctx, outcomeSkipped)
			continue
		case err != nil:
			s.recordOutcome(ctx, outcomeError)
			s.logger(ctx).Warn("reconcile pending payment failed",
				zap.Int64("order_code", code),
				zap.Error(err),
			)
			jobErr = errors.Join(jobErr, fmt.Errorf("order %d: %w", code, err))
			continue
		}

		if result.NewStatus == result.PreviousStatus {
			s.recordOutcome(ctx, outcomeUnchanged)
			continue
		}
		s.recordOutcome(ctx, outcomeApplied)
		s.logger(ctx).Info("pending payment reconciled",
			zap.Int64("order_code", code),
			zap.String("previous_status", string(result.PreviousStatus)),
			zap.String("new_status", string(result.NewStatus)),
		)
	}

	return jobErr
}
