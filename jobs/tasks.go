package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvoicesOverdueSweep flags unpaid invoices past their due date.
	TaskInvoicesOverdueSweep = "invoices:overdue_sweep"
	// TaskIdempotencyCleanup prunes expired Idempotency-Key records.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

const dateLayout = "2006-01-02"

// OverdueSweepPayload selects the reference day. An empty AsOf means today
// in UTC at the time the task runs.
type OverdueSweepPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// NewOverdueSweepTask constructs an overdue sweep task.
func NewOverdueSweepTask(asOf string) (*asynq.Task, error) {
	if asOf != "" {
		if _, err := time.Parse(dateLayout, asOf); err != nil {
			return nil, fmt.Errorf("overdue sweep: invalid as_of %q: %w", asOf, err)
		}
	}
	data, err := json.Marshal(OverdueSweepPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoicesOverdueSweep, data, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload carries the retention window in seconds.
type IdempotencyCleanupPayload struct {
	RetentionSeconds int64 `json:"retention_seconds"`
}

// NewIdempotencyCleanupTask constructs a cleanup task for keys older than
// retention.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("idempotency cleanup: retention must be positive")
	}
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionSeconds: int64(retention / time.Second)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault)), nil
}
