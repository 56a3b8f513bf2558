package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// RoleChangeCallback is called with the path of a changed role file
type RoleChangeCallback func(path string, op fsnotify.Op)

// RoleWatcher reports edits to persona and manual files. Running agents
// keep the role text they were constructed with; changes apply on restart.
type RoleWatcher struct {
	watcher            *fsnotify.Watcher
	dir                string
	stabilityThreshold time.Duration
	onChange           RoleChangeCallback
	logger             zerolog.Logger
	done               chan struct{}
	debounceTimers     map[string]*time.Timer
	debounceMu         sync.Mutex
	stopOnce           sync.Once
}

// RoleWatcherConfig holds configuration for the watcher
type RoleWatcherConfig struct {
	Dir                string // the agents directory
	StabilityThreshold time.Duration
	OnChange           RoleChangeCallback
	Logger             zerolog.Logger
}

// NewRoleWatcher creates a new role file watcher
func NewRoleWatcher(cfg RoleWatcherConfig) (*RoleWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if cfg.StabilityThreshold == 0 {
		cfg.StabilityThreshold = 200 * time.Millisecond
	}

	return &RoleWatcher{
		watcher:            watcher,
		dir:                cfg.Dir,
		stabilityThreshold: cfg.StabilityThreshold,
		onChange:           cfg.OnChange,
		logger:             cfg.Logger,
		done:               make(chan struct{}),
		debounceTimers:     make(map[string]*time.Timer),
	}, nil
}

// Start starts watching the agents directory
func (w *RoleWatcher) Start() error {
	if err := w.addDirectoryRecursive(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	go w.eventLoop()

	w.logger.Info().Str("path", w.dir).Msg("Role file watcher started")
	return nil
}

// Stop stops the watcher
func (w *RoleWatcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.debounceMu.Lock()
	for _, timer := range w.debounceTimers {
		timer.Stop()
	}
	clear(w.debounceTimers)
	w.debounceMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *RoleWatcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *RoleWatcher) handleEvent(event fsnotify.Event) {
	if w.shouldIgnore(event.Name) {
		return
	}

	// New agent directories are watched as they appear.
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addDirectoryRecursive(event.Name)
			return
		}
	}

	if !isRoleFile(event.Name) {
		return
	}
	w.debounceEvent(event)
}

// debounceEvent collapses bursts of writes to one callback per file
func (w *RoleWatcher) debounceEvent(event fsnotify.Event) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.debounceTimers[event.Name]; exists {
		timer.Stop()
	}

	eventCopy := event
	w.debounceTimers[event.Name] = time.AfterFunc(w.stabilityThreshold, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, eventCopy.Name)
		w.debounceMu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}

		w.logger.Info().
			Str("path", eventCopy.Name).
			Str("op", eventCopy.Op.String()).
			Msg("Role file changed; takes effect on next restart")
		if w.onChange != nil {
			w.onChange(eventCopy.Name, eventCopy.Op)
		}
	})
}

func (w *RoleWatcher) addDirectoryRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if walkPath != w.dir && w.shouldIgnore(walkPath) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(walkPath); err != nil {
			w.logger.Warn().Err(err).Str("path", walkPath).Msg("Failed to watch path")
		}
		return nil
	})
}

// shouldIgnore skips dotfiles and editor swap files below the watched dir
func (w *RoleWatcher) shouldIgnore(path string) bool {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	base := filepath.Base(path)
	return strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp")
}

func isRoleFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".md")
}
