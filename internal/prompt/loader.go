// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package prompt

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// LOADER
// =============================================================================

// overrideExt is the file extension for user override templates.
const overrideExt = ".md"

// Loader resolves prompt templates, preferring user overrides from a
// directory over the built-ins. Safe for concurrent use.
type Loader struct {
	dir string

	mu        sync.RWMutex
	overrides map[Kind]string

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc

	debounce time.Duration
	pendMu   sync.Mutex
	pending  map[string]time.Time

	// OnReload, if set, is called after an override file change has
	// been folded in. Called from the watcher goroutine.
	OnReload func(Kind)
}

// DefaultDir returns the default override directory,
// ~/.forgechat/prompts.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".forgechat", "prompts")
}

// NewLoader creates a loader reading overrides from dir. An empty dir
// selects the default. The directory not existing is fine, built-ins
// serve everything.
func NewLoader(dir string) *Loader {
	if dir == "" {
		dir = DefaultDir()
	}
	l := &Loader{
		dir:       dir,
		overrides: make(map[Kind]string),
		debounce:  200 * time.Millisecond,
		pending:   make(map[string]time.Time),
	}
	l.loadOverrides()
	return l
}

// Dir returns the override directory.
func (l *Loader) Dir() string {
	return l.dir
}

// Load returns the template text for a kind, override first.
func (l *Loader) Load(k Kind) (string, error) {
	l.mu.RLock()
	text, ok := l.overrides[k]
	l.mu.RUnlock()
	if ok {
		return text, nil
	}
	return Builtin(k)
}

// Render loads the template for a kind and substitutes vars into it.
func (l *Loader) Render(k Kind, vars map[string]string) (string, error) {
	text, err := l.Load(k)
	if err != nil {
		return "", err
	}
	return Substitute(text, vars), nil
}

// IsOverridden reports whether a user override is active for a kind.
func (l *Loader) IsOverridden(k Kind) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.overrides[k]
	return ok
}

// loadOverrides scans the override directory. Unreadable files and
// files that do not name a known kind are skipped.
func (l *Loader) loadOverrides() {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return
	}

	fresh := make(map[Kind]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		k, ok := kindFromFilename(e.Name())
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(l.dir, e.Name()))
		if err != nil {
			continue
		}
		fresh[k] = string(data)
	}

	l.mu.Lock()
	l.overrides = fresh
	l.mu.Unlock()
}

// reloadFile folds a single changed override file in, or drops the
// override when the file is gone.
func (l *Loader) reloadFile(path string) {
	k, ok := kindFromFilename(filepath.Base(path))
	if !ok {
		return
	}

	data, err := os.ReadFile(path)

	l.mu.Lock()
	if err != nil {
		delete(l.overrides, k)
	} else {
		l.overrides[k] = string(data)
	}
	l.mu.Unlock()

	if l.OnReload != nil {
		l.OnReload(k)
	}
}

// kindFromFilename maps "refactor.md" to KindRefactor.
func kindFromFilename(name string) (Kind, bool) {
	if !strings.HasSuffix(name, overrideExt) {
		return "", false
	}
	k := Kind(strings.TrimSuffix(name, overrideExt))
	if !k.Valid() {
		return "", false
	}
	return k, true
}

// =============================================================================
// HOT RELOAD
// =============================================================================

// Watch starts watching the override directory for changes. Changed
// files are reloaded after a short debounce. Returns an error when the
// directory cannot be watched; callers may treat that as non-fatal.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.watcher = watcher
	l.cancel = cancel

	go l.processEvents(ctx)
	go l.processPending(ctx)

	return nil
}

// Close stops watching. Safe to call when Watch was never started.
func (l *Loader) Close() error {
	if l.cancel != nil {
		l.cancel()
	}
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

func (l *Loader) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if _, ok := kindFromFilename(filepath.Base(event.Name)); !ok {
				continue
			}
			l.pendMu.Lock()
			l.pending[event.Name] = time.Now()
			l.pendMu.Unlock()

		case _, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (l *Loader) processPending(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()

			l.pendMu.Lock()
			var toReload []string
			for path, changed := range l.pending {
				if now.Sub(changed) >= l.debounce {
					toReload = append(toReload, path)
					delete(l.pending, path)
				}
			}
			l.pendMu.Unlock()

			for _, path := range toReload {
				l.reloadFile(path)
			}
		}
	}
}
