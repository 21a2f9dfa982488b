package shaders

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

// Watcher reports edits of shader sources in a directory.
type Watcher struct {
	watcher *fsnotify.Watcher
	changes chan string
	done    chan struct{}
}

// Watch starts watching l.Dir, creating it when missing.
func (l *Library) Watch() (*Watcher, error) {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating shader directory: %w", err)
	}
	return NewWatcher(l.Dir)
}

// NewWatcher watches dir for changes of *.wgsl files.
func NewWatcher(dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	w := &Watcher{
		watcher: fw,
		changes: make(chan string, 8),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			name, ok := strings.CutSuffix(filepath.Base(event.Name), ".wgsl")
			if !ok {
				continue
			}
			select {
			case w.changes <- name:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			gpu.Logger().Warn("shader watcher", "err", err)
		}
	}
}

// Changes delivers the names of edited shaders. Bursts may be coalesced.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// Close stops watching.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
