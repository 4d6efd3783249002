package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/metcalfc/picbook/internal/logger"
)

// DefaultWatchDebounce is how long the watcher waits for the tree to go quiet
// before rescanning.
const DefaultWatchDebounce = 500 * time.Millisecond

// Watch rescans dir whenever books are added, changed or removed, and hands
// each new Library to onChange. It blocks until ctx is done.
func Watch(ctx context.Context, dir string, debounce time.Duration, log *logger.Logger, onChange func(*Library)) error {
	if log == nil {
		log = logger.Nop()
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch library dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("watch library dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() && !skipEntry(e.Name()) {
			addWatch(watcher, filepath.Join(dir, e.Name()), log)
		}
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if skipEntry(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&fsnotify.Create != 0 && filepath.Dir(event.Name) == filepath.Clean(dir) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					addWatch(watcher, event.Name, log)
				}
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("library watcher error", "error", err)
		case <-timer.C:
			lib, err := Scan(dir, log)
			if err != nil {
				log.Warn("library rescan failed", "error", err)
				continue
			}
			onChange(lib)
		}
	}
}

func addWatch(w *fsnotify.Watcher, path string, log *logger.Logger) {
	if err := w.Add(path); err != nil {
		log.Debug("cannot watch book dir", "path", path, "error", err)
	}
}

func skipEntry(name string) bool {
	return strings.HasPrefix(name, ".") || name == "images"
}
