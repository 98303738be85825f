package scheduler

import (
	"context"
	"time"

	obslogger "github.com/smallbiznis/paysettle/internal/observability/logger"
	"go.uber.org/zap"
)

// Reconciliation outcomes, also used as the metrics label.
const (
	outcomeApplied   = "applied"
	outcomeUnchanged = "unchanged"
	outcomeSkipped   = "skipped"
	outcomeError     = "error"
)

// sweepRun tallies what one pass over stale payments did to each order code.
type sweepRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time
	outcomes  map[string]int
}

type sweepRunKey struct{}

func (r *sweepRun) record(outcome string) {
	if r == nil {
		return
	}
	r.outcomes[outcome]++
}

func (r *sweepRun) failed() bool {
	return r != nil && r.outcomes[outcomeError] > 0
}

func (r *sweepRun) settled() int {
	if r == nil {
		return 0
	}
	return r.outcomes[outcomeApplied]
}

// beginRun attaches a run to ctx unless an outer job already did. owner is
// true for the caller that must log the finish.
func (s *Scheduler) beginRun(ctx context.Context, job string, batchSize int) (context.Context, *sweepRun, bool) {
	if existing := runFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	run := &sweepRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
		outcomes:  make(map[string]int, 4),
	}
	return context.WithValue(ctx, sweepRunKey{}, run), run, true
}

func runFromContext(ctx context.Context) *sweepRun {
	run, _ := ctx.Value(sweepRunKey{}).(*sweepRun)
	return run
}

// recordOutcome counts outcome on the run and on the reconciliation meter.
func (s *Scheduler) recordOutcome(ctx context.Context, outcome string) {
	runFromContext(ctx).record(outcome)
	s.obsMetrics.RecordReconciliation(ctx, outcome)
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logRunFinish(ctx context.Context, run *sweepRun) {
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", run.batchSize),
		zap.Duration("duration", s.clock.Now().Sub(run.startedAt)),
		zap.Int(outcomeApplied, run.outcomes[outcomeApplied]),
		zap.Int(outcomeUnchanged, run.outcomes[outcomeUnchanged]),
		zap.Int(outcomeSkipped, run.outcomes[outcomeSkipped]),
		zap.Int("errors", run.outcomes[outcomeError]),
	}
	log := s.logger(ctx)
	switch {
	case run.failed():
		log.Warn("reconcile sweep finished with errors", fields...)
	case run.settled() > 0:
		log.Info("reconcile sweep settled payments", fields...)
	default:
		log.Debug("reconcile sweep finished", fields...)
	}
}
