// Package watch turns changes in a rule directory into source add, update
// and remove notifications.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/rules"
)

// DefaultSettle is how long the watcher waits for a burst of file events
// to end before reporting.
const DefaultSettle = 100 * time.Millisecond

// ErrNotDirectory is returned when the watched path is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// Listener receives source changes.
type Listener interface {
	SourceAdded(pkg string)
	SourceUpdated(pkg string)
	SourceRemoved(pkg string)
}

// Watcher reports rule documents appearing, changing and disappearing in a
// directory. File events are collected until the directory has been quiet
// for the settle period; the document state on disk then decides what is
// reported, so editors that write through temporary files are handled.
type Watcher struct {
	dir      string
	listener Listener
	logger   *log.Logger
	settle   time.Duration

	fsw   *fsnotify.Watcher
	known map[string]bool
}

// New creates a watcher for dir. Documents already present are considered
// known and are not reported as added.
func New(dir string, listener Listener, settle time.Duration, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	if settle <= 0 {
		settle = DefaultSettle
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool)
	for _, e := range entries {
		if !e.IsDir() && rules.IsDocument(e.Name()) {
			known[rules.SourceFromPath(e.Name())] = true
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:      dir,
		listener: listener,
		logger:   logger.WithPrefix("watch"),
		settle:   settle,
		fsw:      fsw,
		known:    known,
	}, nil
}

// Run reports changes until ctx is cancelled. The underlying watcher is
// closed when Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	w.logger.Info("Watching rule directory", "dir", w.dir)

	dirty := make(map[string]struct{})
	timer := time.NewTimer(w.settle)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !rules.IsDocument(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			w.logger.Debug("File event", "file", ev.Name, "op", ev.Op)
			dirty[rules.SourceFromPath(ev.Name)] = struct{}{}
			timer.Reset(w.settle)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", "dir", w.dir, "err", err)

		case <-timer.C:
			w.flush(dirty)
			clear(dirty)
		}
	}
}

// flush compares each dirty source against the disk and notifies the
// listener, in source order.
func (w *Watcher) flush(dirty map[string]struct{}) {
	sources := make([]string, 0, len(dirty))
	for src := range dirty {
		sources = append(sources, src)
	}
	slices.Sort(sources)

	for _, src := range sources {
		_, exists := rules.DocumentPath(w.dir, src)
		switch {
		case exists && w.known[src]:
			w.logger.Debug("Source updated", "package", src)
			w.listener.SourceUpdated(src)
		case exists:
			w.known[src] = true
			w.logger.Debug("Source added", "package", src)
			w.listener.SourceAdded(src)
		case w.known[src]:
			delete(w.known, src)
			w.logger.Debug("Source removed", "package", src)
			w.listener.SourceRemoved(src)
		}
	}
}
