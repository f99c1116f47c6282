package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stackgate/admind/pkg/errdefs"
	"github.com/stackgate/admind/pkg/observability"
)

const defaultRetryDelay = 30 * time.Second

// errRunTimedOut marks an attempt cut off by the job's timeout so the
// run can be classified apart from an ordinary handler failure.
var errRunTimedOut = errors.New("run timed out")

// Service manages scheduled job definitions and keeps the runner in
// step with them. The database row is always authoritative; a runner
// registration that fails or drifts is repaired by Reconcile rather
// than failing the row mutation.
type Service struct {
	store     *Store
	runner    Runner
	registry  *HandlerRegistry
	tracker   *Tracker
	logger    *observability.Logger
	metrics   *observability.Metrics
	defaultTZ string
}

// NewService creates a scheduler service.
func NewService(store *Store, runner Runner, registry *HandlerRegistry, tracker *Tracker, logger *observability.Logger, metrics *observability.Metrics, defaultTZ string) *Service {
	return &Service{
		store:     store,
		runner:    runner,
		registry:  registry,
		tracker:   tracker,
		logger:    logger,
		metrics:   metrics,
		defaultTZ: defaultTZ,
	}
}

// CreateJob validates and inserts a job, then registers it with the
// runner when enabled. Registration failure does not fail the create;
// the row exists and Reconcile will retry.
func (s *Service) CreateJob(ctx context.Context, domain string, req CreateJobRequest) (*Job, error) {
	if req.Name == "" {
		return nil, errdefs.Validation("job name is required")
	}
	if !s.registry.Has(req.HandlerName) {
		return nil, errdefs.Validation("unknown handler %q", req.HandlerName)
	}
	if err := ValidateCron(req.CronExpression, req.Timezone); err != nil {
		return nil, err
	}
	if req.Status != "" && !validStatus(req.Status) {
		return nil, errdefs.Validation("invalid job status %q", req.Status)
	}
	if req.RetryAttempts < 0 {
		return nil, errdefs.Validation("retry attempts must not be negative")
	}

	if _, err := s.store.GetByName(ctx, domain, req.Name); err == nil {
		return nil, errdefs.Conflict("job %s already exists in domain %s", req.Name, domain)
	} else if !errdefs.IsNotFound(err) {
		return nil, err
	}

	job := &Job{
		Domain:         domain,
		Name:           req.Name,
		HandlerName:    req.HandlerName,
		CronExpression: req.CronExpression,
		Timezone:       req.Timezone,
		Status:         req.Status,
		Payload:        req.Payload,
		RetryAttempts:  req.RetryAttempts,
		RetryDelay:     req.RetryDelay,
		Timeout:        req.Timeout,
		Priority:       req.Priority,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}

	if job.Status == StatusEnabled {
		if err := s.register(job); err != nil {
			s.logSchedulerFailure(job, "register", err)
		}
	}
	return job, nil
}

// GetJob returns a job by id. The job must belong to the caller's
// domain; an empty domain skips the check.
func (s *Service) GetJob(ctx context.Context, domain, jobID string) (*Job, error) {
	return s.requireJob(ctx, domain, jobID)
}

// ListJobs returns a domain's jobs.
func (s *Service) ListJobs(ctx context.Context, domain string) ([]*Job, error) {
	return s.store.List(ctx, domain)
}

// UpdateJob validates and applies changes, then unconditionally
// restarts the registration: the old entry is dropped and a fresh one
// is installed if the job ends up enabled.
func (s *Service) UpdateJob(ctx context.Context, domain, jobID string, req UpdateJobRequest) (*Job, error) {
	if req.HandlerName != nil && !s.registry.Has(*req.HandlerName) {
		return nil, errdefs.Validation("unknown handler %q", *req.HandlerName)
	}
	if req.Status != nil && !validStatus(*req.Status) {
		return nil, errdefs.Validation("invalid job status %q", *req.Status)
	}
	current, err := s.requireJob(ctx, domain, jobID)
	if err != nil {
		return nil, err
	}
	if req.CronExpression != nil || req.Timezone != nil {
		expr, tz := current.CronExpression, ""
		if req.CronExpression != nil && *req.CronExpression != "" {
			expr = *req.CronExpression
		}
		if req.Timezone != nil {
			tz = *req.Timezone
		}
		if err := ValidateCron(expr, tz); err != nil {
			return nil, err
		}
	}

	job, err := s.store.Update(ctx, jobID, req)
	if err != nil {
		return nil, err
	}

	s.runner.Deregister(job.Key())
	if job.Status == StatusEnabled {
		if err := s.register(job); err != nil {
			s.logSchedulerFailure(job, "register", err)
		}
	}
	return job, nil
}

// DeleteJob stops the registration best-effort and removes the row.
func (s *Service) DeleteJob(ctx context.Context, domain, jobID string) error {
	job, err := s.requireJob(ctx, domain, jobID)
	if err != nil {
		return err
	}

	s.runner.Deregister(job.Key())
	return s.store.Delete(ctx, jobID)
}

// ToggleJob moves a job to the given status. Disabled and paused jobs
// are both deregistered. The row update is the operation; a runner
// start/stop failure is logged and swallowed because Reconcile repairs
// drift from the row.
func (s *Service) ToggleJob(ctx context.Context, domain, jobID, status string) (*Job, error) {
	if !validStatus(status) {
		return nil, errdefs.Validation("invalid job status %q", status)
	}
	if _, err := s.requireJob(ctx, domain, jobID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateStatus(ctx, jobID, status); err != nil {
		return nil, err
	}

	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status == StatusEnabled {
		if err := s.register(job); err != nil {
			s.logSchedulerFailure(job, "register", err)
		}
	} else {
		s.runner.Deregister(job.Key())
	}
	return job, nil
}

// ExecuteNow runs a job immediately, outside its schedule, and returns
// the run id of the spawned execution.
func (s *Service) ExecuteNow(ctx context.Context, domain, jobID string) (string, error) {
	if _, err := s.requireJob(ctx, domain, jobID); err != nil {
		return "", err
	}

	runID := uuid.New().String()
	go s.executeJob(jobID, runID)
	return runID, nil
}

// GetRepeatableJobs returns the keys currently registered in the runner.
func (s *Service) GetRepeatableJobs() []string {
	return s.runner.Keys()
}

// ClearAllRepeatableJobs deregisters every runner entry and reports how
// many were removed. Rows are untouched; Reconcile restores enabled jobs.
func (s *Service) ClearAllRepeatableJobs() int {
	keys := s.runner.Keys()
	for _, key := range keys {
		s.runner.Deregister(key)
	}
	return len(keys)
}

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	Registered   int `json:"registered"`
	Deregistered int `json:"deregistered"`
}

// Reconcile diffs the enabled rows against the runner's registrations
// and repairs the difference in both directions. Run at startup and on
// demand.
func (s *Service) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	desired, err := s.store.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load enabled jobs: %w", err)
	}

	desiredByKey := make(map[string]*Job, len(desired))
	for _, job := range desired {
		desiredByKey[job.Key()] = job
	}

	registered := make(map[string]bool)
	for _, key := range s.runner.Keys() {
		registered[key] = true
	}

	var result ReconcileResult
	for key, job := range desiredByKey {
		if registered[key] {
			continue
		}
		if err := s.register(job); err != nil {
			s.logSchedulerFailure(job, "register", err)
			continue
		}
		result.Registered++
		s.observeDesync("register")
	}
	for key := range registered {
		if _, want := desiredByKey[key]; want {
			continue
		}
		s.runner.Deregister(key)
		result.Deregistered++
		s.observeDesync("deregister")
	}

	if s.logger != nil && (result.Registered > 0 || result.Deregistered > 0) {
		s.logger.WithFields(map[string]interface{}{
			"registered":   result.Registered,
			"deregistered": result.Deregistered,
		}).Info("scheduler reconciled")
	}
	return &result, nil
}

// requireJob loads a job and rejects ids owned by another tenant. A
// cross-domain job reads as missing so ids cannot be probed across
// tenants; an empty domain skips the check for internal callers.
func (s *Service) requireJob(ctx context.Context, domain, jobID string) (*Job, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if domain != "" && job.Domain != domain {
		return nil, errdefs.NotFound("job %s not found", jobID)
	}
	return job, nil
}

// register installs the job in the runner under its stable key.
func (s *Service) register(job *Job) error {
	timezone := job.Timezone
	if timezone == "" {
		timezone = s.defaultTZ
	}
	delay := job.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	reg := Registration{
		Key:      job.Key(),
		Spec:     job.CronExpression,
		Timezone: timezone,
		Attempts: job.RetryAttempts + 1,
		Delay:    delay,
		Timeout:  job.Timeout,
		Priority: job.Priority,
	}

	jobID := job.ID
	return s.runner.Register(reg, func() {
		s.executeJob(jobID, uuid.New().String())
	})
}

// executeJob is the body of every run: re-read the row, run the handler
// with retries and timeout, and record outcome and statistics.
func (s *Service) executeJob(jobID, runID string) {
	ctx := context.Background()

	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).WithField("job_id", jobID).Error("job vanished before execution")
		}
		return
	}

	if _, err := s.tracker.LogTaskExecution(ctx, job.ID, runID, RunStatusRunning, map[string]interface{}{
		"handler": job.HandlerName,
	}); err != nil && s.logger != nil {
		s.logger.WithError(err).WithField("job", job.Key()).Warn("failed to record run start")
	}

	start := time.Now()
	attempts, runErr := s.runWithRetries(job)
	duration := time.Since(start)

	status := RunStatusSucceeded
	data := map[string]interface{}{
		"duration_ms": duration.Milliseconds(),
		"attempts":    attempts,
	}
	if runErr != nil {
		status = RunStatusFailed
		if errors.Is(runErr, errRunTimedOut) {
			status = RunStatusTimedOut
		}
		data["error"] = runErr.Error()
	}

	if _, err := s.tracker.LogTaskExecution(ctx, job.ID, runID, status, data); err != nil && s.logger != nil {
		s.logger.WithError(err).WithField("job", job.Key()).Warn("failed to record run outcome")
	}
	if err := s.tracker.UpdateTaskStatistics(ctx, job.ID, status); err != nil && s.logger != nil {
		s.logger.WithError(err).WithField("job", job.Key()).Warn("failed to update run statistics")
	}

	if s.metrics != nil {
		s.metrics.JobExecutionsTotal.WithLabelValues(job.Key(), status).Inc()
		s.metrics.JobExecutionDuration.WithLabelValues(job.Key()).Observe(duration.Seconds())
	}
	if s.logger != nil {
		logger := s.logger.WithFields(map[string]interface{}{
			"job":         job.Key(),
			"run_id":      runID,
			"attempts":    attempts,
			"duration_ms": duration.Milliseconds(),
		})
		if runErr != nil {
			logger.WithError(runErr).Error("job execution failed")
		} else {
			logger.Info("job execution succeeded")
		}
	}
}

// runWithRetries makes up to retryAttempts+1 attempts with exponential
// backoff between them, returning the attempts used and the final error.
func (s *Service) runWithRetries(job *Job) (int, error) {
	handler, ok := s.registry.Get(job.HandlerName)
	if !ok {
		return 0, fmt.Errorf("handler %q is not registered", job.HandlerName)
	}

	attempts := job.RetryAttempts + 1
	delay := job.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = s.runOnce(job, handler)
		if err == nil {
			return attempt, nil
		}
		if attempt < attempts {
			time.Sleep(delay * time.Duration(1<<(attempt-1)))
		}
	}
	return attempts, err
}

func (s *Service) runOnce(job *Job, handler HandlerFunc) error {
	ctx := context.Background()
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- handler(ctx, job.Payload)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("job %s timed out after %s: %w", job.Key(), job.Timeout, errRunTimedOut)
	}
}

func (s *Service) logSchedulerFailure(job *Job, operation string, err error) {
	if s.logger != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"job":       job.Key(),
			"operation": operation,
		}).Error("scheduler operation failed; row is authoritative, reconcile will retry")
	}
	s.observeDesync(operation)
}

func (s *Service) observeDesync(operation string) {
	if s.metrics != nil {
		s.metrics.SchedulerDesyncsTotal.WithLabelValues(operation).Inc()
	}
}
