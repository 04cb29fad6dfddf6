package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDuration collapses the burst of events editors emit on save.
const debounceDuration = 500 * time.Millisecond

// WatchSettings watches dir for edits to the appsettings files.
// The returned channel emits the base name of a changed file once its burst
// of events has settled. Loaded Settings are never reloaded; callers decide
// what to do with the notification. The channel is closed when ctx ends.
func WatchSettings(ctx context.Context, dir string) <-chan string {
	changedCh := make(chan string, 1) // Buffer 1 so we don't block sender

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create fsnotify watcher", "error", err)
		close(changedCh)
		return changedCh
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir
	}
	// Watch the directory rather than the files: they may not exist yet and
	// atomic saves replace the inode.
	if err := watcher.Add(absDir); err != nil {
		slog.Warn("Could not watch settings directory", "dir", absDir, "error", err)
		watcher.Close()
		close(changedCh)
		return changedCh
	}
	slog.Debug("Watching settings directory", "dir", absDir)

	go func() {
		defer watcher.Close()
		defer close(changedCh)

		// fire is never closed: pending timers may still run after the loop exits.
		fire := make(chan string, len(SettingsFiles))
		timers := make(map[string]*time.Timer)
		defer func() {
			for _, t := range timers {
				t.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case name := <-fire:
				slog.Info("Settings change detected", "file", name)
				// Non-blocking send
				select {
				case changedCh <- name:
				default:
				}
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name := filepath.Base(event.Name)
				if !slices.Contains(SettingsFiles, name) {
					continue
				}
				// Writes and recreations (Vim/nano atomic saves) only
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if t, ok := timers[name]; ok {
					t.Stop()
				}
				timers[name] = time.AfterFunc(debounceDuration, func() {
					select {
					case fire <- name:
					default:
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Watcher encountered an error", "error", err)
			}
		}
	}()

	return changedCh
}
