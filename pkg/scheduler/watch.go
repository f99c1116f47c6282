package scheduler

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stackgate/admind/pkg/observability"
)

const watchDebounce = 500 * time.Millisecond

// WatchSeedFile re-applies the seed file whenever it changes on disk,
// until the context ends. Editors write files with rename-replace, so
// the parent directory is watched and events are filtered by name.
// Bursts of events are debounced into one apply.
func (s *Service) WatchSeedFile(ctx context.Context, path string, logger *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	target := filepath.Clean(path)
	var timer *time.Timer
	var timerC <-chan time.Time

	apply := func() {
		result, err := s.ApplySeedFile(ctx, target)
		if err != nil {
			if logger != nil {
				logger.WithError(err).WithField("path", target).Error("failed to re-apply seed file")
			}
			return
		}
		if logger != nil {
			logger.WithFields(map[string]interface{}{
				"path":         target,
				"registered":   result.Registered,
				"deregistered": result.Deregistered,
			}).Info("seed file re-applied")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}

		case <-timerC:
			timerC = nil
			timer = nil
			apply()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if logger != nil {
				logger.WithError(err).Warn("seed file watcher error")
			}
		}
	}
}
