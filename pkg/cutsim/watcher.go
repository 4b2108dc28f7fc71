package cutsim

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is the default debounce interval for file watch events.
const DefaultWatchDebounce = 500 * time.Millisecond

// jobWatcher re-runs a job file whenever it is saved.
type jobWatcher struct {
	watcher   *fsnotify.Watcher
	filePath  string
	debounce  time.Duration
	onChange  func() error
	onError   func(error)
	stopCh    chan struct{}
	stoppedCh chan struct{}
	mu        sync.Mutex
	running   bool
	stopped   bool
}

// newJobWatcher creates a watcher for filePath. onChange is called once per
// burst of writes, after debounce has passed without further events.
func newJobWatcher(filePath string, debounce time.Duration, onChange func() error, onError func(error)) (*jobWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	// Editors that save by renaming replace the inode, so watch the directory.
	dir := filepath.Dir(filePath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	return &jobWatcher{
		watcher:   watcher,
		filePath:  filePath,
		debounce:  debounce,
		onChange:  onChange,
		onError:   onError,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}, nil
}

// Start begins watching in a goroutine.
func (jw *jobWatcher) Start() {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	if jw.running || jw.stopped {
		return
	}
	jw.running = true
	go jw.watchLoop()
}

// Stop ends watching and waits for the loop to exit. A watcher that was
// never started just releases its fsnotify handle.
func (jw *jobWatcher) Stop() {
	jw.mu.Lock()
	if jw.stopped {
		jw.mu.Unlock()
		return
	}
	jw.stopped = true
	running := jw.running
	jw.mu.Unlock()

	if !running {
		jw.watcher.Close()
		return
	}
	close(jw.stopCh)
	<-jw.stoppedCh
}

func (jw *jobWatcher) watchLoop() {
	defer close(jw.stoppedCh)
	defer jw.watcher.Close()

	absPath, _ := filepath.Abs(jw.filePath)
	baseName := filepath.Base(jw.filePath)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-jw.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-jw.watcher.Events:
			if !ok {
				return
			}

			eventAbs, _ := filepath.Abs(event.Name)
			if filepath.Base(event.Name) != baseName && eventAbs != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(jw.debounce)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			if jw.onChange != nil {
				if err := jw.onChange(); err != nil && jw.onError != nil {
					jw.onError(err)
				}
			}
			debounceTimer = nil
			debounceCh = nil

		case err, ok := <-jw.watcher.Errors:
			if !ok {
				return
			}
			if jw.onError != nil {
				jw.onError(err)
			}
		}
	}
}
