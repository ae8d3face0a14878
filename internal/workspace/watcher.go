package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ActivityWatcher reports file activity inside a worktree so observers
// can see what a unit is touching while it runs. Best-effort: a watcher
// that cannot be established degrades to silence, never to failure.
type ActivityWatcher struct {
	root    string
	watcher *fsnotify.Watcher
	onTouch func(relPath string)

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// WatchActivity starts watching the worktree rooted at root. onTouch is
// called with repository-relative paths as files are written or created.
// Returns nil (no error) when the platform watcher cannot be created.
func WatchActivity(root string, onTouch func(relPath string)) *ActivityWatcher {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}

	aw := &ActivityWatcher{
		root:    root,
		watcher: w,
		onTouch: onTouch,
		done:    make(chan struct{}),
	}

	// fsnotify watches are not recursive; register existing directories
	// and pick up new ones as they appear.
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			_ = w.Add(path)
		}
		return nil
	})

	go aw.loop()
	return aw
}

func (w *ActivityWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			rel, err := filepath.Rel(w.root, event.Name)
			if err != nil || strings.HasPrefix(rel, ".git") {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.watcher.Add(event.Name)
					continue
				}
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
				if w.onTouch != nil {
					w.onTouch(rel)
				}
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Stop shuts the watcher down. Safe to call on a nil watcher and safe to
// call more than once.
func (w *ActivityWatcher) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	_ = w.watcher.Close()
	<-w.done
}
