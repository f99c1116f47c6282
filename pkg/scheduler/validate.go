package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stackgate/admind/pkg/errdefs"
)

// ValidateCron checks a five-field cron expression (and @-descriptors)
// plus its timezone before anything touches the database or the runner.
func ValidateCron(expression, timezone string) error {
	if expression == "" {
		return errdefs.Validation("cron expression is required")
	}
	if _, err := cron.ParseStandard(expression); err != nil {
		return errdefs.Validation("invalid cron expression %q: %v", expression, err)
	}
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return errdefs.Validation("invalid timezone %q: %v", timezone, err)
		}
	}
	return nil
}
