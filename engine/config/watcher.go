package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/framepace/engine/core"
)

// Watcher reloads a config file whenever it changes on disk. Only the newest
// valid config is kept for the consumer; invalid edits are logged and dropped.
type Watcher struct {
	path     string
	fsnotify *fsnotify.Watcher

	updates chan *Config
	errors  chan error

	closeOnce sync.Once
}

// NewWatcher watches the directory holding path, since editors commonly
// replace files by renaming over them.
func NewWatcher(path string) (*Watcher, error) {
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
	return &Watcher{
		path:     abs,
		fsnotify: fsWatch,
		updates:  make(chan *Config, 1),
		errors:   make(chan error, 1),
	}, nil
}

// Updates delivers reloaded configs. Drain it at frame boundaries.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Errors delivers the latest reload failure.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(e.Name) != w.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.reload()
			}

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return nil
			}
			core.LogError("config watcher: %s", err)
			offer(w.errors, err)

		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) reload() {
	// A truncating write shows up as an empty file first.
	if s, err := os.Stat(w.path); err != nil || s.Size() == 0 {
		return
	}
	cfg, err := Load(w.path)
	if err != nil {
		core.LogWarn("Ignoring config change: %s", err)
		offer(w.errors, err)
		return
	}
	core.LogInfo("Config %s reloaded.", w.path)
	offer(w.updates, cfg)
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsnotify.Close()
	})
	return err
}

// offer replaces whatever is pending in ch with v. Only the watcher goroutine sends.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
