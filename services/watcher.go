package services

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"service-nanny/internal/logger"
	"service-nanny/internal/manifest"

	"github.com/fsnotify/fsnotify"
)

/**
 * Manifest directory watcher
 * @description
 * - Watches the services root and each immediate subdirectory
 * - Bursts of relevant events are collapsed into one callback after the debounce period
 */
type Watcher struct {
	root     string
	debounce time.Duration
	onChange func(ctx context.Context)
}

func NewWatcher(root string, debounce time.Duration, onChange func(ctx context.Context)) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{root: root, debounce: debounce, onChange: onChange}
}

// Run blocks until ctx ends or the underlying watcher fails to start.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.root); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			w.add(fw, filepath.Join(w.root, e.Name()))
		}
	}
	logger.Infof("Watching %s for manifest changes", w.root)

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == filepath.Clean(w.root) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.add(fw, ev.Name)
				}
			}
			logger.Debugf("Watcher: %s", ev)
			fire = time.After(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("Watcher error: %v", err)
		case <-fire:
			fire = nil
			w.onChange(ctx)
		}
	}
}

func (w *Watcher) add(fw *fsnotify.Watcher, dir string) {
	if err := fw.Add(dir); err != nil {
		logger.Warnf("Watcher: cannot watch %s: %v", dir, err)
	}
}

// relevant keeps directory changes under root and manifest or compose file changes.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return false
	}
	if filepath.Dir(ev.Name) == filepath.Clean(w.root) {
		return true
	}
	base := filepath.Base(ev.Name)
	for _, name := range manifest.ManifestFiles {
		if base == name {
			return true
		}
	}
	for _, name := range manifest.ComposeFiles {
		if base == name {
			return true
		}
	}
	return false
}
