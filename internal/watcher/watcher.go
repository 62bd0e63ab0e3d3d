// Package watcher provides file watching with debouncing for hot-reload.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher monitors groups of files for changes. Changes to any file of a
// group are debounced into one callback invocation.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	debounce  time.Duration

	mu     sync.Mutex
	groups map[string]*group // group name -> group
	files  map[string]string // absolute file path -> group name
	dirs   map[string]int    // watched directory -> file count

	done      chan struct{}
	closeOnce sync.Once
}

type group struct {
	callback func()
	files    []string
	timer    *time.Timer
}

// Config holds watcher configuration.
type Config struct {
	// DebounceInterval is the time to wait before triggering callback after last change.
	// This prevents multiple rapid saves from triggering multiple reloads.
	DebounceInterval time.Duration
}

// DefaultConfig returns default watcher configuration.
//
// Returns:
//   - *Config: default configuration with 500ms debounce
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 500 * time.Millisecond,
	}
}

// New creates a new file watcher.
//
// Parameters:
//   - cfg (*Config): watcher configuration
//
// Returns:
//   - *Watcher: initialized watcher
//   - error: nil on success, initialization error on failure
func New(cfg *Config) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		debounce:  cfg.DebounceInterval,
		groups:    make(map[string]*group),
		files:     make(map[string]string),
		dirs:      make(map[string]int),
		done:      make(chan struct{}),
	}, nil
}

// Watch adds a single file with its own callback.
//
// Parameters:
//   - path (string): file path to watch
//   - callback (func()): function to call on file change
//
// Returns:
//   - error: nil on success, watch error on failure
func (w *Watcher) Watch(path string, callback func()) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return w.WatchGroup(absPath, []string{absPath}, callback)
}

// WatchGroup sets the files of a group. Files no longer listed stop being
// watched, so the group can follow a changing file set across reloads.
//
// Parameters:
//   - name (string): group name
//   - paths ([]string): files of the group
//   - callback (func()): function to call once per burst of changes
//
// Returns:
//   - error: nil on success, watch error on failure
func (w *Watcher) WatchGroup(name string, paths []string, callback func()) error {
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		abs = append(abs, a)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	g, ok := w.groups[name]
	if !ok {
		g = &group{}
		w.groups[name] = g
	}
	g.callback = callback

	for _, f := range g.files {
		w.removeFileLocked(f)
	}
	g.files = g.files[:0]

	for _, f := range abs {
		if owner, taken := w.files[f]; taken {
			log.Warn().Str("file", f).Str("group", owner).Msg("file already watched by another group")
			continue
		}

		// Watch the directory containing the file (handles editor atomic saves)
		dir := filepath.Dir(f)
		if w.dirs[dir] == 0 {
			if err := w.fsWatcher.Add(dir); err != nil {
				return fmt.Errorf("watching %s: %w", dir, err)
			}
		}
		w.dirs[dir]++
		w.files[f] = name
		g.files = append(g.files, f)
	}

	log.Debug().
		Str("group", name).
		Int("files", len(g.files)).
		Msg("watching files for changes")

	return nil
}

func (w *Watcher) removeFileLocked(f string) {
	if _, ok := w.files[f]; !ok {
		return
	}
	delete(w.files, f)

	dir := filepath.Dir(f)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		_ = w.fsWatcher.Remove(dir) // directory may already be gone
	}
}

// Start begins watching for file changes.
// This method blocks until Close() is called.
//
// Returns:
//   - error: nil on normal shutdown, error on watcher failure
func (w *Watcher) Start() error {
	for {
		select {
		case <-w.done:
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}

			// Create and rename cover editors that save by replacing the file
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.changed(event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) changed(path string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	name, ok := w.files[absPath]
	if !ok {
		return
	}
	g := w.groups[name]

	// Debounce: cancel existing timer and set new one
	if g.timer != nil {
		g.timer.Stop()
	}
	callback := g.callback
	g.timer = time.AfterFunc(w.debounce, func() {
		log.Info().
			Str("file", filepath.Base(absPath)).
			Str("group", name).
			Msg("file changed, triggering reload")
		callback()
	})
}

// Close stops the watcher. Safe to call multiple times.
//
// Returns:
//   - error: nil on success, close error on failure
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)

		// Stop all pending timers
		w.mu.Lock()
		for _, g := range w.groups {
			if g.timer != nil {
				g.timer.Stop()
			}
		}
		w.mu.Unlock()

		err = w.fsWatcher.Close()
	})
	return err
}
