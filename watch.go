package texatlas

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to registered image files. Events are debounced:
// a path is sent once it has been quiet for the debounce interval, so a
// burst of writes from an editor produces a single event.
//
// The watcher goroutine only sends paths. Reloading pixels is left to the
// owner of the atlas, on its own goroutine (see Context.PollReload).
type Watcher struct {
	watcher  *fsnotify.Watcher
	Events   chan string
	Errors   chan error
	closeCh  chan struct{}
	done     chan struct{}
	once     sync.Once
	debounce time.Duration

	mu    sync.Mutex
	files map[string]string // absolute path -> path as registered
	dirs  map[string]int
}

// NewWatcher starts a watcher with the given debounce interval. A zero
// interval sends every event immediately.
func NewWatcher(debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:  fw,
		Events:   make(chan string, 16),
		Errors:   make(chan error, 1),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
		debounce: debounce,
		files:    make(map[string]string),
		dirs:     make(map[string]int),
	}
	go w.run()
	return w, nil
}

// Add starts reporting changes to path. The containing directory is watched
// so editors that replace files by rename are handled.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[abs]; ok {
		return nil
	}
	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	w.files[abs] = path
	return nil
}

// Remove stops reporting changes to path.
func (w *Watcher) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[abs]; !ok {
		return nil
	}
	delete(w.files, abs)
	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] == 0 {
		delete(w.dirs, dir)
		return w.watcher.Remove(dir)
	}
	return nil
}

// Close stops the watcher and closes Events and Errors.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) lookup(name string) (string, bool) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return "", false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.files[abs]
	return p, ok
}

func (w *Watcher) run() {
	defer func() {
		close(w.Events)
		close(w.Errors)
		close(w.done)
	}()

	tick := w.debounce / 4
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	pending := make(map[string]time.Time)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			path, ok := w.lookup(event.Name)
			if !ok {
				continue
			}
			if w.debounce <= 0 {
				if !w.send(path) {
					return
				}
				continue
			}
			pending[path] = time.Now()
		case <-ticker.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) < w.debounce {
					continue
				}
				delete(pending, path)
				if !w.send(path) {
					return
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.Errors <- err:
			default:
			}
		case <-w.closeCh:
			return
		}
	}
}

func (w *Watcher) send(path string) bool {
	select {
	case w.Events <- path:
		return true
	case <-w.closeCh:
		return false
	}
}
