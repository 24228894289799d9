package config

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/anima-editor/engine/core"
)

// Watcher reloads a configuration file whenever it is written. Editors often
// replace the file instead of writing it in place, so the directory is
// watched and events are filtered by name.
type Watcher struct {
	path     string
	fsnotify *fsnotify.Watcher
	onChange func(*Config)

	done     chan struct{}
	stopped  chan struct{}
	isClosed bool
	mu       sync.Mutex
}

// NewWatcher starts watching path. onChange runs on the watcher goroutine
// with every configuration that parses and validates. Invalid files are
// logged and ignored.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatch.Add(filepath.Dir(abs)); err != nil {
		fsWatch.Close()
		return nil, err
	}
	w := &Watcher{
		path:     abs,
		fsnotify: fsWatch,
		onChange: onChange,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.start()
	core.LogDebug("watching configuration %s", abs)
	return w, nil
}

func (w *Watcher) start() {
	defer close(w.stopped)
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != w.path || !(e.Has(fsnotify.Write) || e.Has(fsnotify.Create)) {
				continue
			}
			w.reload()

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("configuration watcher: %s", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		core.LogWarn("configuration %s not reloaded: %s", w.path, err)
		return
	}
	core.LogInfo("configuration %s reloaded", w.path)
	w.onChange(cfg)
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.isClosed {
		w.mu.Unlock()
		return errors.New("configuration watcher already closed")
	}
	w.isClosed = true
	w.mu.Unlock()

	close(w.done)
	<-w.stopped
	return w.fsnotify.Close()
}
