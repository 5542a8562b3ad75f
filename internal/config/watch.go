package config

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadSettle is how long to wait after a write event before re-reading the
// file. Editors save with a rename-plus-write burst; reading mid-burst sees
// a half-written file.
const reloadSettle = 250 * time.Millisecond

// Watcher re-reads the config file whenever it changes on disk and hands
// each valid new Config to the callback. Invalid edits are logged and
// skipped; the previous config stays in effect.
type Watcher struct {
	w      *fsnotify.Watcher
	closed chan struct{}
}

// NewWatcher starts watching path. The callback runs on the watcher
// goroutine; keep it quick.
func NewWatcher(path string, onChange func(Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: rename-based saves replace the
	// inode and would silently detach a file watch.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{w: fw, closed: make(chan struct{})}
	go w.loop(path, onChange)
	return w, nil
}

func (w *Watcher) loop(path string, onChange func(Config)) {
	base := filepath.Base(path)
	var settle *time.Timer
	for {
		select {
		case <-w.closed:
			return
		case event, ok := <-w.w.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if settle != nil {
				settle.Stop()
			}
			settle = time.AfterFunc(reloadSettle, func() {
				cfg, err := Load(path)
				if err != nil {
					log.Printf("CONFIG: reload of %s failed, keeping previous: %v", path, err)
					return
				}
				log.Printf("CONFIG: reloaded %s", path)
				onChange(cfg)
			})
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			log.Printf("CONFIG: watcher error: %v", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	select {
	case <-w.closed:
		return nil
	default:
		close(w.closed)
	}
	return w.w.Close()
}
