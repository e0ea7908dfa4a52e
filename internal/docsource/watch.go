package docsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/coffersTech/nanodiscover/internal/model"
)

// Watch reloads the source whenever a matching file is written, created,
// removed or renamed, and passes the fresh document set to onChange.
// Bursts of events within the debounce window cause one reload. Watch
// blocks until ctx is cancelled.
func (s *Source) Watch(ctx context.Context, onChange func([]model.Document)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	added := 0
	for _, dir := range watchDirs(s.patterns) {
		if err := watcher.Add(dir); err != nil {
			s.log.Warn("cannot watch directory", "dir", dir, "error", err)
			continue
		}
		added++
	}
	if added == 0 {
		return fmt.Errorf("watch: no directory could be watched for %v", s.patterns)
	}

	var reload <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !s.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				s.watchNewDir(watcher, event.Name)
			}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			reload = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("fsnotify error", "error", err)

		case <-reload:
			reload = nil
			docs, err := s.Load()
			if err != nil {
				s.log.Error("reload failed", "error", err)
				continue
			}
			onChange(docs)
		}
	}
}

func (s *Source) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	if matchesAny(event.Name, s.patterns) {
		return true
	}
	// A new directory may hold files matched by a ** pattern.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

func (s *Source) watchNewDir(watcher *fsnotify.Watcher, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := watcher.Add(filepath.Clean(path)); err != nil {
		s.log.Warn("cannot watch directory", "dir", path, "error", err)
	}
}
