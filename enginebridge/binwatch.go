package enginebridge

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/prism-engine/editor-host/logger"
)

const rebuildSettle = 500 * time.Millisecond

// BinaryWatcher watches the engine executable on disk and fires once per
// rebuild. The watch is on the containing directory because build tools
// replace the binary rather than writing it in place; events are debounced
// until writes settle.
type BinaryWatcher struct {
	watcher  *fsnotify.Watcher
	base     string
	onChange func()

	done      chan struct{}
	closeOnce sync.Once
}

// WatchBinary starts watching path's directory for changes to path itself.
// onChange is called from the watcher goroutine after each settled change.
func WatchBinary(path string, onChange func()) (*BinaryWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &BinaryWatcher{
		watcher:  watcher,
		base:     filepath.Base(path),
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *BinaryWatcher) loop() {
	var settle *time.Timer
	var settleC <-chan time.Time
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if settle == nil {
				settle = time.NewTimer(rebuildSettle)
				settleC = settle.C
			} else {
				if !settle.Stop() {
					select {
					case <-settle.C:
					default:
					}
				}
				settle.Reset(rebuildSettle)
			}
		case <-settleC:
			settle = nil
			settleC = nil
			w.fire()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("binary watcher error", "error", err)
		case <-w.done:
			if settle != nil {
				settle.Stop()
			}
			return
		}
	}
}

func (w *BinaryWatcher) fire() {
	defer func() { _ = recover() }()
	w.onChange()
}

// Close stops the watcher. Safe to call more than once.
func (w *BinaryWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
