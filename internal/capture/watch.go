package capture

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch follows the capture directory until ctx is cancelled and drops index
// entries whose files are removed or renamed by something other than the index.
func (x *Index) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := x.blobs.Root()
	if err := w.Add(root); err != nil {
		return err
	}
	x.logger.Info("capture watcher: started", slog.String("dir", root))

	for {
		select {
		case <-ctx.Done():
			x.logger.Info("capture watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// No-op for files the index deleted itself.
			if x.Forget(filepath.Clean(ev.Name)) {
				x.logger.Debug("capture watcher: file gone", slog.String("path", ev.Name))
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			x.logger.Error("capture watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
