package docindex

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for changes to settle.
const DefaultDebounce = 500 * time.Millisecond

// Watch re-runs Index whenever an indexable file under the root is created,
// written, removed or renamed. Bursts of events within debounce collapse
// into one run. Each run's result is passed to onIndex (which may be nil).
// Watch blocks until ctx is done and returns ctx.Err().
func (ix *Indexer) Watch(ctx context.Context, debounce time.Duration, onIndex func(Stats, error)) error {
	if err := ix.configured(); err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	root, err := filepath.Abs(ix.cfg.Root)
	if err != nil {
		return fmt.Errorf("docindex: resolve root: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("docindex: start watcher: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()

	// Recursively add all directories under the root.
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
	if err != nil {
		return fmt.Errorf("docindex: watch %s: %w", root, err)
	}
	ix.log.InfoContext(ctx, "docindex.watch.start", slog.String("root", root))

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				// Maintain watches on newly created directories.
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if !skipDir(filepath.Base(ev.Name)) {
						_ = w.Add(ev.Name)
					}
					continue
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !Extensions[strings.ToLower(filepath.Ext(ev.Name))] {
				continue
			}
			timer.Reset(debounce)
		case <-timer.C:
			stats, err := ix.Index(ctx)
			if onIndex != nil {
				onIndex(stats, err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			ix.log.WarnContext(ctx, "docindex.watch.err", slog.String("err", err.Error()))
		}
	}
}
