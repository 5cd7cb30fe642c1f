package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/kitchenledger/kitchenledger/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// OverdueFlagger moves unpaid invoices due before asOf to overdue.
type OverdueFlagger interface {
	FlagOverdue(ctx context.Context, asOf time.Time) (int, error)
}

// OverdueSweepJob persists the overdue predicate into invoice payment status.
type OverdueSweepJob struct {
	Invoices OverdueFlagger
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewOverdueSweepJob wires dependencies for the sweep handler.
func NewOverdueSweepJob(invoices OverdueFlagger, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueSweepJob {
	return &OverdueSweepJob{
		Invoices: invoices,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes overdue sweep tasks.
func (j *OverdueSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Invoices == nil {
		return errors.New("overdue sweep: handler not configured")
	}
	var payload OverdueSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("overdue sweep: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	asOf := j.clock()
	if payload.AsOf != "" {
		parsed, err := time.Parse(dateLayout, payload.AsOf)
		if err != nil {
			return fmt.Errorf("overdue sweep: invalid as_of: %v: %w", err, asynq.SkipRetry)
		}
		asOf = parsed
	}

	tracker := j.metrics().Track(TaskInvoicesOverdueSweep)
	logger := j.logger().With(slog.String("as_of", asOf.Format(dateLayout)))

	flagged, err := j.Invoices.FlagOverdue(ctx, asOf)
	if err != nil {
		logger.Error("overdue sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddFlagged("overdue", int64(flagged))
	logger.Info("overdue sweep completed", slog.Int("flagged", flagged))
	return tracker.End(nil)
}

func (j *OverdueSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *OverdueSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
