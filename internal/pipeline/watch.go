package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"extendaudit/internal/artifact"
	"extendaudit/internal/crawler"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last change before a rescan.
const DefaultDebounce = 300 * time.Millisecond

// Watch runs the scan once, then again after every burst of artifact changes
// under Root, until ctx is done. Each outcome is handed to onReport.
func (s *Scan) Watch(ctx context.Context, debounce time.Duration, onReport func(*Report, error)) error {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	dir := s.Root
	if info, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	} else if !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	c := crawler.NewCrawler()
	if err := addWatchRecursive(watcher, c, dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	onReport(s.Run(ctx))

	var rescan <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addWatchRecursive(watcher, c, ev.Name); err != nil {
						s.Logger.Warn("failed to watch new directory", zap.String("path", ev.Name), zap.Error(err))
					}
					continue
				}
			}
			if _, ok := artifact.Classify(ev.Name); !ok {
				continue
			}
			s.Logger.Debug("artifact changed", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			rescan = time.After(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.Logger.Warn("watch error", zap.Error(err))
		case <-rescan:
			rescan = nil
			fmt.Fprintln(s.Progress, "🔄 Change detected, rescanning...")
			onReport(s.Run(ctx))
		}
	}
}

func addWatchRecursive(w *fsnotify.Watcher, c *crawler.Crawler, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && c.Ignored(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
