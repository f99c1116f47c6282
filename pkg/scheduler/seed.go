package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stackgate/admind/pkg/errdefs"
)

// Duration is a time.Duration that unmarshals from YAML scalars like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// SeedJob is one declared job in the seed file. Declared jobs are
// upserted by (domain, name) and then reconciled, so the file can be
// re-applied at any time.
type SeedJob struct {
	Domain         string                 `yaml:"domain"`
	Name           string                 `yaml:"name"`
	Handler        string                 `yaml:"handler"`
	CronExpression string                 `yaml:"cron"`
	Timezone       string                 `yaml:"timezone,omitempty"`
	Status         string                 `yaml:"status,omitempty"`
	Payload        map[string]interface{} `yaml:"payload,omitempty"`
	RetryAttempts  int                    `yaml:"retry_attempts,omitempty"`
	RetryDelay     Duration               `yaml:"retry_delay,omitempty"`
	Timeout        Duration               `yaml:"timeout,omitempty"`
	Priority       int                    `yaml:"priority,omitempty"`
}

// SeedFile is the top-level seed document.
type SeedFile struct {
	Jobs []SeedJob `yaml:"jobs"`
}

// LoadSeedFile parses a seed document from disk.
func LoadSeedFile(path string) (*SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	for i, job := range seed.Jobs {
		if job.Domain == "" || job.Name == "" {
			return nil, fmt.Errorf("seed job %d is missing domain or name", i)
		}
		if job.Handler == "" {
			return nil, fmt.Errorf("seed job %s/%s has no handler", job.Domain, job.Name)
		}
		if err := ValidateCron(job.CronExpression, job.Timezone); err != nil {
			return nil, fmt.Errorf("seed job %s/%s: %w", job.Domain, job.Name, err)
		}
		if job.Status != "" && !validStatus(job.Status) {
			return nil, fmt.Errorf("seed job %s/%s has invalid status %q", job.Domain, job.Name, job.Status)
		}
	}
	return &seed, nil
}

// ApplySeed upserts the declared jobs and reconciles the runner. Jobs
// absent from the file are left alone; the seed declares, it does not
// own the table.
func (s *Service) ApplySeed(ctx context.Context, seed *SeedFile) (*ReconcileResult, error) {
	for _, decl := range seed.Jobs {
		if !s.registry.Has(decl.Handler) {
			return nil, errdefs.Validation("seed job %s/%s references unknown handler %q", decl.Domain, decl.Name, decl.Handler)
		}

		existing, err := s.store.GetByName(ctx, decl.Domain, decl.Name)
		if errdefs.IsNotFound(err) {
			job := &Job{
				Domain:         decl.Domain,
				Name:           decl.Name,
				HandlerName:    decl.Handler,
				CronExpression: decl.CronExpression,
				Timezone:       decl.Timezone,
				Status:         decl.Status,
				Payload:        decl.Payload,
				RetryAttempts:  decl.RetryAttempts,
				RetryDelay:     time.Duration(decl.RetryDelay),
				Timeout:        time.Duration(decl.Timeout),
				Priority:       decl.Priority,
			}
			if err := s.store.Create(ctx, job); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		status := decl.Status
		if status == "" {
			status = StatusEnabled
		}
		payload := decl.Payload
		retryDelay := time.Duration(decl.RetryDelay)
		timeout := time.Duration(decl.Timeout)
		if _, err := s.store.Update(ctx, existing.ID, UpdateJobRequest{
			HandlerName:    &decl.Handler,
			CronExpression: &decl.CronExpression,
			Timezone:       &decl.Timezone,
			Status:         &status,
			Payload:        &payload,
			RetryAttempts:  &decl.RetryAttempts,
			RetryDelay:     &retryDelay,
			Timeout:        &timeout,
			Priority:       &decl.Priority,
		}); err != nil {
			return nil, err
		}
	}

	return s.Reconcile(ctx)
}

// ApplySeedFile loads and applies a seed file in one step.
func (s *Service) ApplySeedFile(ctx context.Context, path string) (*ReconcileResult, error) {
	seed, err := LoadSeedFile(path)
	if err != nil {
		return nil, err
	}
	return s.ApplySeed(ctx, seed)
}
