// Package contrib tracks UI contributions made by plugins.
//
// All plugin-visible surfaces that previously would have lived in scattered
// per-feature maps (styles, theme variables, panels, tab types, ribbon
// items, status bar items, settings sections, shell slots, layout presets)
// share one arena keyed by (plugin id, resource id). Unload purges an owner
// with a single total scan, which removes the risk of an incomplete purge.
package contrib

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Kind classifies a contribution.
type Kind string

// Contribution kinds.
const (
	KindStyle        Kind = "style"
	KindThemeVar     Kind = "theme-var"
	KindPanel        Kind = "panel"
	KindTabType      Kind = "tab-type"
	KindRibbonItem   Kind = "ribbon-item"
	KindStatusBar    Kind = "status-bar"
	KindSettings     Kind = "settings-section"
	KindShellSlot    Kind = "shell-slot"
	KindLayoutPreset Kind = "layout-preset"
)

// Handle identifies one contribution in the arena. Removing a missing
// handle is a no-op, which is what makes plugin-held unregister closures
// idempotent.
type Handle struct {
	id string
}

// IsZero returns true for the zero Handle.
func (h Handle) IsZero() bool {
	return h.id == ""
}

// Entry is one contribution record.
type Entry struct {
	Handle     Handle
	PluginID   string
	ResourceID string
	Kind       Kind
	Payload    map[string]any
}

// Arena is the shared registry of plugin UI contributions.
type Arena struct {
	mu      sync.RWMutex
	entries map[string]*Entry // handle id -> entry
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{entries: make(map[string]*Entry)}
}

// Add records a contribution and returns its handle. A second Add with the
// same (pluginID, kind, resourceID) replaces the prior entry, matching the
// re-register-replaces behavior of every UI surface.
func (a *Arena) Add(pluginID, resourceID string, kind Kind, payload map[string]any) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, e := range a.entries {
		if e.PluginID == pluginID && e.Kind == kind && e.ResourceID == resourceID {
			delete(a.entries, id)
			break
		}
	}

	h := Handle{id: uuid.NewString()}
	a.entries[h.id] = &Entry{
		Handle:     h,
		PluginID:   pluginID,
		ResourceID: resourceID,
		Kind:       kind,
		Payload:    payload,
	}
	return h
}

// Remove deletes the contribution for the handle. Removing a handle that is
// absent (already removed, or purged by unload) is a no-op and returns
// false.
func (a *Arena) Remove(h Handle) bool {
	if h.IsZero() {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.entries[h.id]; !ok {
		return false
	}
	delete(a.entries, h.id)
	return true
}

// PurgeOwner removes every contribution owned by the plugin and returns how
// many entries were dropped.
func (a *Arena) PurgeOwner(pluginID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for id, e := range a.entries {
		if e.PluginID == pluginID {
			delete(a.entries, id)
			removed++
		}
	}
	return removed
}

// CountOwner returns the number of contributions owned by the plugin.
func (a *Arena) CountOwner(pluginID string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := 0
	for _, e := range a.entries {
		if e.PluginID == pluginID {
			n++
		}
	}
	return n
}

// ByKind returns all contributions of a kind ordered by plugin id then
// resource id, for host UI rendering.
func (a *Arena) ByKind(kind Kind) []Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []Entry
	for _, e := range a.entries {
		if e.Kind == kind {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PluginID != out[j].PluginID {
			return out[i].PluginID < out[j].PluginID
		}
		return out[i].ResourceID < out[j].ResourceID
	})
	return out
}

// Lookup returns the entry for a (pluginID, kind, resourceID) triple.
func (a *Arena) Lookup(pluginID string, kind Kind, resourceID string) (Entry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, e := range a.entries {
		if e.PluginID == pluginID && e.Kind == kind && e.ResourceID == resourceID {
			return *e, true
		}
	}
	return Entry{}, false
}

// Len returns the total number of contributions.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}
