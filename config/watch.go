package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce batches the burst of events an editor produces on save.
const reloadDebounce = 500 * time.Millisecond

// WatchInventory reloads the inventory at path whenever the file changes
// and passes each successfully parsed version to apply. A file that fails
// to parse is logged and the previous inventory stays in effect.
//
// The parent directory is watched rather than the file so that editors
// which save by rename are followed. WatchInventory blocks until ctx is
// done.
func WatchInventory(ctx context.Context, path string, apply func(*Inventory)) error {
	if path == "" {
		return fmt.Errorf("config: no inventory path to watch")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: inventory path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(abs), err)
	}
	slog.Info("watching inventory", "path", abs)

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
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
				return nil
			}
			slog.Warn("inventory watcher error", "error", err)

		case <-timer.C:
			inv, err := LoadInventory(abs)
			if err != nil {
				slog.Warn("inventory reload failed, keeping previous", "path", abs, "error", err)
				continue
			}
			slog.Info("inventory reloaded",
				"path", abs,
				"providers", len(inv.Diagnostics.Providers),
				"charts", len(inv.Charts),
				"sites", len(inv.Sites),
			)
			apply(inv)
		}
	}
}
