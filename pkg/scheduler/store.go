package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stackgate/admind/pkg/errdefs"
)

// Store persists job definitions, execution logs, and run statistics.
type Store struct {
	db *sql.DB
}

// NewStore creates a scheduler store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, domain, name, handler_name, cron_expression, timezone, status, payload,
	retry_attempts, retry_delay_ms, timeout_ms, priority,
	total_runs, success_runs, failed_runs, last_run_at, last_run_status,
	created_at, updated_at`

func scanJob(scanner interface{ Scan(...interface{}) error }) (*Job, error) {
	var job Job
	var payloadJSON string
	var retryDelayMS, timeoutMS int64
	var lastRunAt sql.NullTime
	var lastRunStatus sql.NullString

	err := scanner.Scan(
		&job.ID,
		&job.Domain,
		&job.Name,
		&job.HandlerName,
		&job.CronExpression,
		&job.Timezone,
		&job.Status,
		&payloadJSON,
		&job.RetryAttempts,
		&retryDelayMS,
		&timeoutMS,
		&job.Priority,
		&job.TotalRuns,
		&job.SuccessRuns,
		&job.FailedRuns,
		&lastRunAt,
		&lastRunStatus,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if payloadJSON != "" {
		if err := json.Unmarshal([]byte(payloadJSON), &job.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
		}
	}
	job.RetryDelay = time.Duration(retryDelayMS) * time.Millisecond
	job.Timeout = time.Duration(timeoutMS) * time.Millisecond
	if lastRunAt.Valid {
		t := lastRunAt.Time
		job.LastRunAt = &t
	}
	if lastRunStatus.Valid {
		job.LastRunStatus = lastRunStatus.String
	}
	return &job, nil
}

// Create inserts a job definition.
func (s *Store) Create(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = StatusEnabled
	}

	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	query := `
		INSERT INTO scheduled_jobs (id, domain, name, handler_name, cron_expression, timezone, status, payload,
			retry_attempts, retry_delay_ms, timeout_ms, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.Domain,
		job.Name,
		job.HandlerName,
		job.CronExpression,
		job.Timezone,
		job.Status,
		string(payloadJSON),
		job.RetryAttempts,
		job.RetryDelay.Milliseconds(),
		job.Timeout.Milliseconds(),
		job.Priority,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

// Get retrieves a job by id.
func (s *Store) Get(ctx context.Context, jobID string) (*Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM scheduled_jobs WHERE id = $1`, jobColumns)

	job, err := scanJob(s.db.QueryRowContext(ctx, query, jobID))
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFound("job %s not found", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// GetByName retrieves a job by (domain, name).
func (s *Store) GetByName(ctx context.Context, domain, name string) (*Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM scheduled_jobs WHERE domain = $1 AND name = $2`, jobColumns)

	job, err := scanJob(s.db.QueryRowContext(ctx, query, domain, name))
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFound("job %s not found in domain %s", name, domain)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job by name: %w", err)
	}
	return job, nil
}

// List returns a domain's jobs ordered by name.
func (s *Store) List(ctx context.Context, domain string) ([]*Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM scheduled_jobs WHERE domain = $1 ORDER BY name`, jobColumns)
	return s.queryJobs(ctx, query, domain)
}

// ListEnabled returns every enabled job across all domains; the
// reconciler's desired state.
func (s *Store) ListEnabled(ctx context.Context) ([]*Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM scheduled_jobs WHERE status = $1 ORDER BY domain, name`, jobColumns)
	return s.queryJobs(ctx, query, StatusEnabled)
}

// Update applies non-nil fields inside one transaction and returns the
// stored result.
func (s *Store) Update(ctx context.Context, jobID string, req UpdateJobRequest) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`SELECT %s FROM scheduled_jobs WHERE id = $1`, jobColumns)
	job, err := scanJob(tx.QueryRowContext(ctx, query, jobID))
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFound("job %s not found", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if req.HandlerName != nil {
		job.HandlerName = *req.HandlerName
	}
	if req.CronExpression != nil {
		job.CronExpression = *req.CronExpression
	}
	if req.Timezone != nil {
		job.Timezone = *req.Timezone
	}
	if req.Status != nil {
		job.Status = *req.Status
	}
	if req.Payload != nil {
		job.Payload = *req.Payload
	}
	if req.RetryAttempts != nil {
		job.RetryAttempts = *req.RetryAttempts
	}
	if req.RetryDelay != nil {
		job.RetryDelay = *req.RetryDelay
	}
	if req.Timeout != nil {
		job.Timeout = *req.Timeout
	}
	if req.Priority != nil {
		job.Priority = *req.Priority
	}

	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET handler_name = $1, cron_expression = $2, timezone = $3, status = $4, payload = $5,
		    retry_attempts = $6, retry_delay_ms = $7, timeout_ms = $8, priority = $9, updated_at = $10
		WHERE id = $11
	`,
		job.HandlerName,
		job.CronExpression,
		job.Timezone,
		job.Status,
		string(payloadJSON),
		job.RetryAttempts,
		job.RetryDelay.Milliseconds(),
		job.Timeout.Milliseconds(),
		job.Priority,
		now,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job update: %w", err)
	}

	job.UpdatedAt = now
	return job, nil
}

// UpdateStatus flips a job's status.
func (s *Store) UpdateStatus(ctx context.Context, jobID, status string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update: %w", err)
	}
	if affected == 0 {
		return errdefs.NotFound("job %s not found", jobID)
	}
	return nil
}

// Delete removes a job and its execution logs.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_execution_logs WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to delete execution logs: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return errdefs.NotFound("job %s not found", jobID)
	}

	return tx.Commit()
}

// JobExists reports whether a job row exists.
func (s *Store) JobExists(ctx context.Context, jobID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM scheduled_jobs WHERE id = $1)`, jobID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check job existence: %w", err)
	}
	return exists, nil
}

// IncrementStats bumps run counters in a single atomic update so
// concurrent run completions never lose counts to read-modify-write
// races.
func (s *Store) IncrementStats(ctx context.Context, jobID string, success bool, lastStatus string) error {
	successInc, failedInc := 0, 1
	if success {
		successInc, failedInc = 1, 0
	}

	query := `
		UPDATE scheduled_jobs
		SET total_runs = total_runs + 1,
		    success_runs = success_runs + $1,
		    failed_runs = failed_runs + $2,
		    last_run_at = $3,
		    last_run_status = $4,
		    updated_at = $3
		WHERE id = $5
	`

	result, err := s.db.ExecContext(ctx, query, successInc, failedInc, time.Now().UTC(), lastStatus, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job statistics: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check statistics update: %w", err)
	}
	if affected == 0 {
		return errdefs.NotFound("job %s not found", jobID)
	}
	return nil
}

// UpsertExecutionLog writes a run record keyed by run id. A later write
// for the same run wins on status and merges its data over the stored
// map, key by key.
func (s *Store) UpsertExecutionLog(ctx context.Context, log *ExecutionLog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingID string
	var existingData string
	err = tx.QueryRowContext(ctx,
		`SELECT id, data FROM job_execution_logs WHERE run_id = $1`, log.RunID,
	).Scan(&existingID, &existingData)

	now := time.Now().UTC()
	switch {
	case err == sql.ErrNoRows:
		if log.ID == "" {
			log.ID = uuid.New().String()
		}
		dataJSON, err := json.Marshal(log.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal execution data: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO job_execution_logs (id, job_id, run_id, status, data, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, log.ID, log.JobID, log.RunID, log.Status, string(dataJSON), now, now)
		if err != nil {
			return fmt.Errorf("failed to insert execution log: %w", err)
		}
		log.CreatedAt = now

	case err != nil:
		return fmt.Errorf("failed to look up execution log: %w", err)

	default:
		merged := make(map[string]interface{})
		if existingData != "" {
			if err := json.Unmarshal([]byte(existingData), &merged); err != nil {
				return fmt.Errorf("failed to unmarshal stored execution data: %w", err)
			}
		}
		for k, v := range log.Data {
			merged[k] = v
		}
		dataJSON, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("failed to marshal execution data: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE job_execution_logs SET status = $1, data = $2, updated_at = $3 WHERE id = $4
		`, log.Status, string(dataJSON), now, existingID)
		if err != nil {
			return fmt.Errorf("failed to update execution log: %w", err)
		}
		log.ID = existingID
		log.Data = merged
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit execution log: %w", err)
	}
	log.UpdatedAt = now
	return nil
}

// ListExecutionLogs returns a job's runs, newest first.
func (s *Store) ListExecutionLogs(ctx context.Context, jobID string, limit int) ([]*ExecutionLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, job_id, run_id, status, data, created_at, updated_at
		FROM job_execution_logs
		WHERE job_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution logs: %w", err)
	}
	defer rows.Close()

	var logs []*ExecutionLog
	for rows.Next() {
		var log ExecutionLog
		var dataJSON string
		if err := rows.Scan(&log.ID, &log.JobID, &log.RunID, &log.Status, &dataJSON, &log.CreatedAt, &log.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}
		if dataJSON != "" {
			if err := json.Unmarshal([]byte(dataJSON), &log.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal execution data: %w", err)
			}
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...interface{}) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
