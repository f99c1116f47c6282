package scheduler

import (
	"fmt"
	"time"
)

// Job statuses. Disabled and paused jobs are both deregistered from the
// runner; paused marks an operator-initiated temporary stop.
const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
	StatusPaused   = "paused"
)

// Execution statuses. A run that exhausts its attempts with the final
// attempt cut off by the job's timeout is recorded as timeout, not as
// a plain failure.
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
	RunStatusTimedOut  = "timeout"
)

// Job is a persisted scheduled job definition. The database row is the
// source of truth; the runner's registration is derived state that
// Reconcile can rebuild at any time. (domain, name) is unique.
type Job struct {
	ID             string                 `json:"id"`
	Domain         string                 `json:"domain"`
	Name           string                 `json:"name"`
	HandlerName    string                 `json:"handler_name"`
	CronExpression string                 `json:"cron_expression"`
	Timezone       string                 `json:"timezone,omitempty"`
	Status         string                 `json:"status"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	RetryAttempts  int                    `json:"retry_attempts"`
	RetryDelay     time.Duration          `json:"retry_delay"`
	Timeout        time.Duration          `json:"timeout"`
	Priority       int                    `json:"priority"`

	TotalRuns     int64      `json:"total_runs"`
	SuccessRuns   int64      `json:"success_runs"`
	FailedRuns    int64      `json:"failed_runs"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key is the stable registration name of a job in the runner.
// Registering the same key twice replaces the earlier entry.
func (j *Job) Key() string {
	return j.Domain + "/" + j.Name
}

// ExecutionLog is one record per physical run of a job, keyed by run id.
// Re-logging an existing run updates the row in place.
type ExecutionLog struct {
	ID        string                 `json:"id"`
	JobID     string                 `json:"job_id"`
	RunID     string                 `json:"run_id"`
	Status    string                 `json:"status"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// CreateJobRequest is the payload for creating a scheduled job.
type CreateJobRequest struct {
	Name           string                 `json:"name"`
	HandlerName    string                 `json:"handler_name"`
	CronExpression string                 `json:"cron_expression"`
	Timezone       string                 `json:"timezone,omitempty"`
	Status         string                 `json:"status,omitempty"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	RetryAttempts  int                    `json:"retry_attempts,omitempty"`
	RetryDelay     time.Duration          `json:"retry_delay,omitempty"`
	Timeout        time.Duration          `json:"timeout,omitempty"`
	Priority       int                    `json:"priority,omitempty"`
}

// UpdateJobRequest carries mutable job fields. Nil means unchanged.
type UpdateJobRequest struct {
	HandlerName    *string                 `json:"handler_name,omitempty"`
	CronExpression *string                 `json:"cron_expression,omitempty"`
	Timezone       *string                 `json:"timezone,omitempty"`
	Status         *string                 `json:"status,omitempty"`
	Payload        *map[string]interface{} `json:"payload,omitempty"`
	RetryAttempts  *int                    `json:"retry_attempts,omitempty"`
	RetryDelay     *time.Duration          `json:"retry_delay,omitempty"`
	Timeout        *time.Duration          `json:"timeout,omitempty"`
	Priority       *int                    `json:"priority,omitempty"`
}

// Registration is the runner-facing view of a job: the stable key, the
// schedule, and the execution metadata the executor honors. Attempts is
// retries plus the initial run; backoff between attempts is exponential
// starting at Delay.
type Registration struct {
	Key      string
	Spec     string
	Timezone string
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
	Priority int
}

func validStatus(status string) bool {
	switch status {
	case StatusEnabled, StatusDisabled, StatusPaused:
		return true
	}
	return false
}

func validRunStatus(status string) bool {
	switch status {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded, RunStatusFailed, RunStatusTimedOut:
		return true
	}
	return false
}

// SplitKey reverses Job.Key.
func SplitKey(key string) (domain, name string, err error) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("malformed job key %q", key)
}
