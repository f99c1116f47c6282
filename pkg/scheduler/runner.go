package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/stackgate/admind/pkg/observability"
)

// Runner schedules registered job functions. Registration is keyed by
// the job's stable key; registering an existing key replaces the old
// entry rather than duplicating it.
type Runner interface {
	Register(reg Registration, run func()) error
	Deregister(key string) bool
	Keys() []string
	Start()
	Stop() context.Context
}

// CronRunner is the production Runner over robfig/cron.
type CronRunner struct {
	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
	metrics *observability.Metrics
}

var _ Runner = (*CronRunner)(nil)

// NewCronRunner creates a runner whose job panics are recovered and
// logged instead of killing the process.
func NewCronRunner(logger *observability.Logger, metrics *observability.Metrics) *CronRunner {
	cronLog := &cronLogger{logger: logger}
	return &CronRunner{
		cron: cron.New(
			cron.WithChain(cron.Recover(cronLog)),
		),
		entries: make(map[string]cron.EntryID),
		metrics: metrics,
	}
}

// Register schedules a run function under the registration's key,
// replacing any existing entry for the same key.
func (r *CronRunner) Register(reg Registration, run func()) error {
	spec := reg.Spec
	if reg.Timezone != "" {
		spec = "CRON_TZ=" + reg.Timezone + " " + reg.Spec
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, exists := r.entries[reg.Key]; exists {
		r.cron.Remove(old)
		delete(r.entries, reg.Key)
	}

	id, err := r.cron.AddFunc(spec, run)
	if err != nil {
		r.updateGauge()
		return fmt.Errorf("failed to schedule job %s: %w", reg.Key, err)
	}
	r.entries[reg.Key] = id
	r.updateGauge()
	return nil
}

// Deregister removes a key's entry; the result reports whether one existed.
func (r *CronRunner) Deregister(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, exists := r.entries[key]
	if !exists {
		return false
	}
	r.cron.Remove(id)
	delete(r.entries, key)
	r.updateGauge()
	return true
}

// Keys returns the registered job keys, sorted.
func (r *CronRunner) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Start begins running scheduled entries.
func (r *CronRunner) Start() {
	r.cron.Start()
}

// Stop halts scheduling; the returned context is done once in-flight
// runs complete.
func (r *CronRunner) Stop() context.Context {
	return r.cron.Stop()
}

func (r *CronRunner) updateGauge() {
	if r.metrics != nil {
		r.metrics.RegisteredJobs.Set(float64(len(r.entries)))
	}
}

// cronLogger adapts the structured logger to cron's logging interface.
type cronLogger struct {
	logger *observability.Logger
}

func (c *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if c.logger == nil {
		return
	}
	c.logger.WithField("cron", keysAndValues).Debug(msg)
}

func (c *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	if c.logger == nil {
		return
	}
	c.logger.WithError(err).WithField("cron", keysAndValues).Error(msg)
}
