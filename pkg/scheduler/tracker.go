package scheduler

import (
	"context"

	"github.com/stackgate/admind/pkg/errdefs"
	"github.com/stackgate/admind/pkg/observability"
)

// Tracker records job run outcomes. Logs are keyed by run id so a
// retried status report updates the same row, and statistics are
// incremented atomically in SQL.
type Tracker struct {
	store  *Store
	logger *observability.Logger
}

// NewTracker creates an execution tracker.
func NewTracker(store *Store, logger *observability.Logger) *Tracker {
	return &Tracker{store: store, logger: logger}
}

// LogTaskExecution upserts the run record for (job, run). Later calls
// for the same run id win on status and merge data keys over what was
// stored earlier.
func (t *Tracker) LogTaskExecution(ctx context.Context, jobID, runID, status string, data map[string]interface{}) (*ExecutionLog, error) {
	if runID == "" {
		return nil, errdefs.Validation("run id is required")
	}
	if !validRunStatus(status) {
		return nil, errdefs.Validation("invalid execution status %q", status)
	}

	exists, err := t.store.JobExists(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errdefs.NotFound("job %s not found", jobID)
	}

	log := &ExecutionLog{
		JobID:  jobID,
		RunID:  runID,
		Status: status,
		Data:   data,
	}
	if err := t.store.UpsertExecutionLog(ctx, log); err != nil {
		return nil, err
	}
	return log, nil
}

// UpdateTaskStatistics bumps the job's run counters and records the
// final status as the last-run marker. Only succeeded counts as a
// success; timeout and failed both land in the failure counter.
func (t *Tracker) UpdateTaskStatistics(ctx context.Context, jobID, status string) error {
	if !validRunStatus(status) {
		return errdefs.Validation("invalid execution status %q", status)
	}
	return t.store.IncrementStats(ctx, jobID, status == RunStatusSucceeded, status)
}

// ListExecutions returns a job's run history, newest first. The job
// must belong to the caller's domain; an empty domain skips the check.
func (t *Tracker) ListExecutions(ctx context.Context, domain, jobID string, limit int) ([]*ExecutionLog, error) {
	job, err := t.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if domain != "" && job.Domain != domain {
		return nil, errdefs.NotFound("job %s not found", jobID)
	}
	return t.store.ListExecutionLogs(ctx, jobID, limit)
}
