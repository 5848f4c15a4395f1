package plugin

import (
	"fmt"
	"log/slog"
	"sync"
)

// Tracker owns the cleanup closures one plugin accumulates through API
// use. Closures are released in registration order on unload; every
// closure runs even when earlier ones fail.
type Tracker struct {
	mu       sync.Mutex
	pluginID string
	releases []func() error
	logger   *slog.Logger
}

// NewTracker creates a tracker for one plugin instance.
func NewTracker(pluginID string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{pluginID: pluginID, logger: logger}
}

// Add appends a cleanup closure. Closures are expected to be idempotent;
// the API layer guards each one with a one-shot flag.
func (t *Tracker) Add(release func() error) {
	if release == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releases = append(t.releases, release)
}

// Len returns the number of tracked closures.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.releases)
}

// ReleaseAll runs every closure in registration order. A failing or
// panicking closure is logged with the plugin id and never stops the
// remaining ones.
func (t *Tracker) ReleaseAll() {
	t.mu.Lock()
	releases := t.releases
	t.releases = nil
	t.mu.Unlock()

	for _, release := range releases {
		if err := t.safeRelease(release); err != nil {
			t.logger.Error("plugin cleanup failed", "plugin", t.pluginID, "error", err)
		}
	}
}

func (t *Tracker) safeRelease(release func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return release()
}
