package catalog

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads path into c whenever it changes, until ctx is done. The parent directory is
// watched so that editors replacing the file by rename are seen. A reload that fails
// validation is logged and the previous set stays active.
func (c *Catalog) Watch(ctx context.Context, path string, logger *zap.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer w.Close()
		timer := time.NewTimer(reloadDebounce)
		timer.Stop()
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				timer.Reset(reloadDebounce)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("story mapping watcher error", zap.Error(err))
			case <-timer.C:
				if err := c.LoadFile(abs); err != nil {
					logger.Error("story mapping reload failed; keeping previous mappings", zap.String("path", abs), zap.Error(err))
					continue
				}
				logger.Info("story mappings reloaded", zap.String("path", abs), zap.Int("count", len(c.All())))
			}
		}
	}()
	return nil
}
