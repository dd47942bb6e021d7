package macrocatalog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/prism-engine/editor-host/logger"
)

const reloadSettle = 500 * time.Millisecond

// AutoReloader reloads the registry when macro files change on disk. Watches
// sit on the catalog directories; events are debounced until writes settle,
// then gated on the file-set fingerprint so editor noise (temp files, atomic
// save dances) does not trigger redundant reloads.
type AutoReloader struct {
	watcher  *fsnotify.Watcher
	registry *Registry
	paths    []string
	roots    []string
	onReload func(error)

	fingerprint string

	done      chan struct{}
	closeOnce sync.Once
}

// StartAutoReload begins watching paths for macro file changes. onReload, if
// set, is called from the watcher goroutine after each reload with the
// registry's load result.
func StartAutoReload(registry *Registry, paths, allowedRoots []string, onReload func(error)) (*AutoReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watched := 0
	for _, dir := range watchableDirs(paths) {
		if err := watcher.Add(dir); err != nil {
			logger.Warn("macro catalog watch failed", "path", dir, "error", err)
			continue
		}
		watched++
	}
	if watched == 0 {
		watcher.Close()
		return nil, os.ErrNotExist
	}

	fingerprint, _ := SnapshotFingerprint(paths, allowedRoots)
	a := &AutoReloader{
		watcher:     watcher,
		registry:    registry,
		paths:       append([]string(nil), paths...),
		roots:       append([]string(nil), allowedRoots...),
		onReload:    onReload,
		fingerprint: fingerprint,
		done:        make(chan struct{}),
	}
	go a.loop()
	return a, nil
}

func (a *AutoReloader) loop() {
	var settle *time.Timer
	var settleC <-chan time.Time
	for {
		select {
		case event, ok := <-a.watcher.Events:
			if !ok {
				return
			}
			if !isMacroFileName(filepath.Base(event.Name)) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if settle == nil {
				settle = time.NewTimer(reloadSettle)
				settleC = settle.C
			} else {
				if !settle.Stop() {
					select {
					case <-settle.C:
					default:
					}
				}
				settle.Reset(reloadSettle)
			}
		case <-settleC:
			settle = nil
			settleC = nil
			a.reload()
		case err, ok := <-a.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("macro catalog watcher error", "error", err)
		case <-a.done:
			if settle != nil {
				settle.Stop()
			}
			return
		}
	}
}

func (a *AutoReloader) reload() {
	fingerprint, _ := SnapshotFingerprint(a.paths, a.roots)
	if fingerprint == a.fingerprint {
		return
	}
	a.fingerprint = fingerprint

	err := a.registry.LoadFromPathsWithAllowedRoots(a.paths, a.roots)
	if err != nil {
		logger.Warn("macro catalog reload", "error", err)
	} else {
		logger.Info("macro catalog reloaded", "macros", a.registry.MacroCount())
	}
	if a.onReload != nil {
		a.onReload(err)
	}
}

// watchableDirs maps catalog paths onto the set of directories to watch.
// A path naming a file watches the containing directory.
func watchableDirs(paths []string) []string {
	dirs := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, raw := range paths {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		path := expandUser(trimmed)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			path = filepath.Dir(path)
		}
		canonical := canonicalPathForBoundary(path)
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}
		dirs = append(dirs, canonical)
	}
	return dirs
}

// Close stops the watcher. Safe to call more than once.
func (a *AutoReloader) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.done)
		err = a.watcher.Close()
	})
	return err
}
