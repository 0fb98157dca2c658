package voicetrigger

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/harunnryd/voicetrigger/pkg/errorsx"
)

// reloadSettle coalesces the burst of events editors emit for one save.
const reloadSettle = 250 * time.Millisecond

// Watch calls fn after the config file changes, until ctx is done. The
// parent directory is watched so atomic rename-on-save is seen.
func (l *Loader) Watch(ctx context.Context, logger *slog.Logger, fn func()) error {
	if logger == nil {
		logger = slog.Default()
	}
	target, err := filepath.Abs(l.path)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonConfiguration)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonDependencyUnavailable, "config watcher")
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return errorsx.Wrapf(err, errorsx.ReasonConfiguration, "watch %s", filepath.Dir(target))
	}

	go func() {
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Warn("config_watcher_close_failed", slog.String("error", err.Error()))
			}
		}()
		var (
			mu    sync.Mutex
			timer *time.Timer
		)
		defer func() {
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				logger.Debug("config_changed", slog.String("file", ev.Name), slog.String("op", ev.Op.String()))
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadSettle, func() {
					if ctx.Err() == nil {
						fn()
					}
				})
				mu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config_watcher_error", slog.String("error", err.Error()))
			}
		}
	}()
	return nil
}
