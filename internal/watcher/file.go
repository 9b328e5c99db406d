package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches individual files. It uses fsnotify on the files'
// parent directories and falls back to stat polling when fsnotify cannot be
// initialised.
type FileWatcher struct {
	opts Options
	fsw  *fsnotify.Watcher

	mu    sync.Mutex
	files map[string]fileSnapshot
	dirs  map[string]bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

type fileSnapshot struct {
	exists  bool
	modTime time.Time
	size    int64
}

func snapshot(path string) fileSnapshot {
	info, err := os.Stat(path)
	if err != nil {
		return fileSnapshot{}
	}
	return fileSnapshot{exists: true, modTime: info.ModTime(), size: info.Size()}
}

// New creates a FileWatcher.
func New(opts Options) *FileWatcher {
	opts = opts.WithDefaults()
	w := &FileWatcher{
		opts:   opts,
		files:  make(map[string]fileSnapshot),
		dirs:   make(map[string]bool),
		stopCh: make(chan struct{}),
	}
	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			slog.Warn("fsnotify_unavailable_falling_back_to_polling", slog.String("error", err.Error()))
		} else {
			w.fsw = fsw
		}
	}
	return w
}

// Polling reports whether the watcher runs in polling mode.
func (w *FileWatcher) Polling() bool {
	return w.fsw == nil
}

// Add starts watching path. The file need not exist yet, but its directory must.
func (w *FileWatcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	dir := filepath.Dir(abs)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("watch %s: parent directory %s not accessible", path, dir)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[abs] = snapshot(abs)
	if w.fsw != nil && !w.dirs[dir] {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch directory %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	return nil
}

func (w *FileWatcher) watched(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.files[path]
	return ok
}

// Run delivers debounced change batches to onChange until ctx ends or Stop
// is called. onChange runs on a timer goroutine, never concurrently with
// itself for the same burst.
func (w *FileWatcher) Run(ctx context.Context, onChange func([]Event)) error {
	debouncer := NewDebouncer(w.opts.DebounceWindow, onChange)
	defer debouncer.Stop()

	if w.fsw == nil {
		return w.poll(ctx, debouncer)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event, debouncer)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file_watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (w *FileWatcher) handle(event fsnotify.Event, debouncer *Debouncer) {
	path := filepath.Clean(event.Name)
	if !w.watched(path) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		return
	}
	debouncer.Add(Event{Path: path, Operation: op, Timestamp: time.Now()})
}

func (w *FileWatcher) poll(ctx context.Context, debouncer *Debouncer) error {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			for _, e := range w.detectChanges() {
				debouncer.Add(e)
			}
		}
	}
}

// detectChanges compares each file with its last snapshot.
func (w *FileWatcher) detectChanges() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	var events []Event
	for path, before := range w.files {
		after := snapshot(path)
		switch {
		case !before.exists && after.exists:
			events = append(events, Event{Path: path, Operation: OpCreate, Timestamp: now})
		case before.exists && !after.exists:
			events = append(events, Event{Path: path, Operation: OpDelete, Timestamp: now})
		case after.exists && (!after.modTime.Equal(before.modTime) || after.size != before.size):
			events = append(events, Event{Path: path, Operation: OpModify, Timestamp: now})
		}
		w.files[path] = after
	}
	return events
}

// Stop stops the watcher and releases resources. Safe to call multiple times.
func (w *FileWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.fsw != nil {
			err = w.fsw.Close()
		}
	})
	return err
}
