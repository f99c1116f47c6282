package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackgate/admind/pkg/errdefs"
)

func noopHandler(ctx context.Context, payload map[string]interface{}) error {
	return nil
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	registry := NewHandlerRegistry()

	require.NoError(t, registry.Register("cache.cleanup", noopHandler))
	require.NoError(t, registry.Register("audit.flush", noopHandler))

	assert.True(t, registry.Has("cache.cleanup"))
	assert.False(t, registry.Has("missing"))

	fn, ok := registry.Get("audit.flush")
	require.True(t, ok)
	assert.NotNil(t, fn)

	assert.Equal(t, []string{"audit.flush", "cache.cleanup"}, registry.Names())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := NewHandlerRegistry()
	require.NoError(t, registry.Register("cache.cleanup", noopHandler))

	err := registry.Register("cache.cleanup", noopHandler)
	require.Error(t, err)
	assert.True(t, errdefs.IsConflict(err))
}

func TestRegistryRejectsInvalid(t *testing.T) {
	registry := NewHandlerRegistry()

	assert.True(t, errdefs.IsValidation(registry.Register("", noopHandler)))
	assert.True(t, errdefs.IsValidation(registry.Register("cache.cleanup", nil)))
}

func TestValidateCron(t *testing.T) {
	assert.NoError(t, ValidateCron("0 3 * * *", ""))
	assert.NoError(t, ValidateCron("*/5 * * * *", "America/New_York"))
	assert.NoError(t, ValidateCron("@hourly", ""))

	assert.True(t, errdefs.IsValidation(ValidateCron("not a cron", "")))
	assert.True(t, errdefs.IsValidation(ValidateCron("0 3 * * *", "Mars/Olympus")))
	assert.True(t, errdefs.IsValidation(ValidateCron("", "")))
}
