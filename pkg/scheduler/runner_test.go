package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronRunnerRegisterReplacesExisting(t *testing.T) {
	runner := NewCronRunner(nil, nil)

	reg := Registration{Key: "acme/cleanup", Spec: "0 3 * * *"}
	require.NoError(t, runner.Register(reg, func() {}))
	require.NoError(t, runner.Register(reg, func() {}))

	// Same key twice yields one entry, not two.
	assert.Equal(t, []string{"acme/cleanup"}, runner.Keys())
}

func TestCronRunnerRejectsBadSpec(t *testing.T) {
	runner := NewCronRunner(nil, nil)

	err := runner.Register(Registration{Key: "acme/broken", Spec: "not a cron"}, func() {})
	require.Error(t, err)
	assert.Empty(t, runner.Keys())
}

func TestCronRunnerTimezonePrefix(t *testing.T) {
	runner := NewCronRunner(nil, nil)

	reg := Registration{Key: "acme/cleanup", Spec: "0 3 * * *", Timezone: "America/New_York"}
	require.NoError(t, runner.Register(reg, func() {}))

	err := runner.Register(Registration{Key: "acme/bad-tz", Spec: "0 3 * * *", Timezone: "Mars/Olympus"}, func() {})
	require.Error(t, err)
}

func TestCronRunnerDeregister(t *testing.T) {
	runner := NewCronRunner(nil, nil)

	require.NoError(t, runner.Register(Registration{Key: "acme/a", Spec: "* * * * *"}, func() {}))
	require.NoError(t, runner.Register(Registration{Key: "acme/b", Spec: "* * * * *"}, func() {}))

	assert.True(t, runner.Deregister("acme/a"))
	assert.False(t, runner.Deregister("acme/a"))
	assert.Equal(t, []string{"acme/b"}, runner.Keys())
}

func TestCronRunnerFiresRegisteredFunc(t *testing.T) {
	runner := NewCronRunner(nil, nil)

	fired := make(chan struct{}, 1)
	require.NoError(t, runner.Register(Registration{Key: "acme/tick", Spec: "@every 10ms"}, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}))

	runner.Start()
	defer func() { <-runner.Stop().Done() }()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled func never fired")
	}
}
