package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackgate/admind/pkg/errdefs"
)

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSeedFile(t *testing.T) {
	path := writeSeedFile(t, `
jobs:
  - domain: acme
    name: cleanup
    handler: cache.cleanup
    cron: "0 3 * * *"
    timezone: Europe/Berlin
    retry_attempts: 2
    retry_delay: 30s
    timeout: 5m
    payload:
      batch: 100
`)

	seed, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, seed.Jobs, 1)

	job := seed.Jobs[0]
	assert.Equal(t, "acme", job.Domain)
	assert.Equal(t, "cache.cleanup", job.Handler)
	assert.Equal(t, Duration(30*time.Second), job.RetryDelay)
	assert.Equal(t, Duration(5*time.Minute), job.Timeout)
	assert.Equal(t, 100, job.Payload["batch"])
}

func TestLoadSeedFileRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing name", "jobs:\n  - domain: acme\n    handler: h\n    cron: '* * * * *'\n"},
		{"missing handler", "jobs:\n  - domain: acme\n    name: j\n    cron: '* * * * *'\n"},
		{"bad cron", "jobs:\n  - domain: acme\n    name: j\n    handler: h\n    cron: 'nope'\n"},
		{"bad status", "jobs:\n  - domain: acme\n    name: j\n    handler: h\n    cron: '* * * * *'\n    status: sideways\n"},
		{"bad duration", "jobs:\n  - domain: acme\n    name: j\n    handler: h\n    cron: '* * * * *'\n    timeout: fast\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadSeedFile(writeSeedFile(t, tc.content))
			require.Error(t, err)
		})
	}
}

func TestLoadSeedFileMissing(t *testing.T) {
	_, err := LoadSeedFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestApplySeedCreatesAndRegisters(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	seed := &SeedFile{Jobs: []SeedJob{
		{Domain: "acme", Name: "cleanup", Handler: "noop", CronExpression: "0 3 * * *", RetryAttempts: 1},
		{Domain: "globex", Name: "report", Handler: "noop", CronExpression: "0 6 * * 1", Status: StatusDisabled},
	}}

	result, err := f.service.ApplySeed(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Registered)
	assert.Equal(t, []string{"acme/cleanup"}, f.runner.Keys())

	job, err := f.store.GetByName(ctx, "acme", "cleanup")
	require.NoError(t, err)
	assert.Equal(t, 1, job.RetryAttempts)

	disabled, err := f.store.GetByName(ctx, "globex", "report")
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, disabled.Status)
}

func TestApplySeedUpdatesExisting(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateJob(ctx, "acme", CreateJobRequest{
		Name:           "cleanup",
		HandlerName:    "noop",
		CronExpression: "0 3 * * *",
	})
	require.NoError(t, err)

	seed := &SeedFile{Jobs: []SeedJob{
		{Domain: "acme", Name: "cleanup", Handler: "noop", CronExpression: "0 4 * * *", RetryDelay: Duration(10 * time.Second)},
	}}
	_, err = f.service.ApplySeed(ctx, seed)
	require.NoError(t, err)

	job, err := f.store.GetByName(ctx, "acme", "cleanup")
	require.NoError(t, err)
	assert.Equal(t, "0 4 * * *", job.CronExpression)
	assert.Equal(t, 10*time.Second, job.RetryDelay)

	// Re-applying is idempotent.
	_, err = f.service.ApplySeed(ctx, seed)
	require.NoError(t, err)
	jobs, err := f.store.List(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestApplySeedRejectsUnknownHandler(t *testing.T) {
	f := newServiceFixture(t)

	seed := &SeedFile{Jobs: []SeedJob{
		{Domain: "acme", Name: "cleanup", Handler: "ghost", CronExpression: "* * * * *"},
	}}
	_, err := f.service.ApplySeed(context.Background(), seed)
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
}

func TestApplySeedLeavesUndeclaredJobsAlone(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateJob(ctx, "acme", CreateJobRequest{
		Name:           "existing",
		HandlerName:    "noop",
		CronExpression: "* * * * *",
	})
	require.NoError(t, err)

	seed := &SeedFile{Jobs: []SeedJob{
		{Domain: "acme", Name: "seeded", Handler: "noop", CronExpression: "0 3 * * *"},
	}}
	_, err = f.service.ApplySeed(ctx, seed)
	require.NoError(t, err)

	assert.Equal(t, []string{"acme/existing", "acme/seeded"}, f.runner.Keys())
}

func TestWatchSeedFileStopsOnCancel(t *testing.T) {
	f := newServiceFixture(t)
	path := writeSeedFile(t, "jobs: []\n")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.service.WatchSeedFile(ctx, path, nil)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
