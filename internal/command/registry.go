package command

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Registry errors.
var (
	// ErrEmptyCommandID is returned when a command is registered without
	// an id.
	ErrEmptyCommandID = errors.New("command id is required")

	// ErrEmptySlashKey is returned when a slash command is registered
	// without a key.
	ErrEmptySlashKey = errors.New("slash command key is required")

	// ErrHotkeyConflict is returned when the normalized hotkey already
	// belongs to a different command.
	ErrHotkeyConflict = errors.New("hotkey already registered")

	// ErrSlashKeyConflict is returned when the slash key belongs to a
	// built-in or to another plugin.
	ErrSlashKeyConflict = errors.New("slash command key already registered")
)

// Command is a plugin-registered command.
type Command struct {
	ID          string
	Title       string
	Description string
	Hotkey      string // original pattern as supplied, may be empty
	Run         func()
}

// Record is the stored form of a registered command.
type Record struct {
	PluginID         string
	Command          Command
	NormalizedHotkey string // empty when no hotkey
}

// Key returns the global registry key for the record.
func (r *Record) Key() string {
	return recordKey(r.PluginID, r.Command.ID)
}

func recordKey(pluginID, id string) string {
	return "plugin-command:" + pluginID + ":" + id
}

// SlashCommand is a string-keyed command invoked from the editor's slash
// menu. Either Prompt (a text expansion sent to the assistant) or Run may
// be set.
type SlashCommand struct {
	Key         string
	Description string
	Prompt      string
	Run         func()
}

// slashRecord tracks ownership of a slash key.
type slashRecord struct {
	pluginID string // empty for built-ins
	builtin  bool
	cmd      SlashCommand
}

// Registry is the shared command table. All mutations are tagged with the
// owning plugin id so unload can purge exactly that id's entries.
type Registry struct {
	mu       sync.RWMutex
	records  map[string]*Record // record key -> record
	order    []string           // registration order of record keys
	hotkeys  map[string]string  // normalized hotkey -> record key
	slash    map[string]*slashRecord
	changed  []func()
	logger   *slog.Logger
}

// NewRegistry creates an empty command registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		records: make(map[string]*Record),
		hotkeys: make(map[string]string),
		slash:   make(map[string]*slashRecord),
		logger:  logger,
	}
}

// OnChanged registers a callback invoked after any successful registration
// or purge, so command palette UI can refresh.
func (r *Registry) OnChanged(fn func()) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.changed = append(r.changed, fn)
	r.mu.Unlock()
}

// notifyChanged runs the change callbacks outside the lock.
func (r *Registry) notifyChanged() {
	r.mu.RLock()
	callbacks := make([]func(), len(r.changed))
	copy(callbacks, r.changed)
	r.mu.RUnlock()

	for _, fn := range callbacks {
		fn()
	}
}

// RegisterCommand stores a command for the plugin. It fails when the id is
// empty, when a supplied hotkey does not normalize, or when the normalized
// hotkey already belongs to a different command. The conflict is always
// attributed to the caller, never the existing holder. Re-registering the
// same (plugin, id) replaces the prior record and releases its hotkey.
func (r *Registry) RegisterCommand(pluginID string, cmd Command) error {
	if cmd.ID == "" {
		return fmt.Errorf("plugin %s: %w", pluginID, ErrEmptyCommandID)
	}

	normalized := ""
	if cmd.Hotkey != "" {
		var err error
		normalized, err = NormalizeHotkey(cmd.Hotkey)
		if err != nil {
			return fmt.Errorf("plugin %s command %s: %w", pluginID, cmd.ID, err)
		}
	}

	key := recordKey(pluginID, cmd.ID)

	r.mu.Lock()
	if normalized != "" {
		if holder, ok := r.hotkeys[normalized]; ok && holder != key {
			existing := r.records[holder]
			r.mu.Unlock()
			return fmt.Errorf("plugin %s command %s: %w: %q is held by %s:%s",
				pluginID, cmd.ID, ErrHotkeyConflict, normalized,
				existing.PluginID, existing.Command.ID)
		}
	}

	if prior, ok := r.records[key]; ok {
		if prior.NormalizedHotkey != "" {
			delete(r.hotkeys, prior.NormalizedHotkey)
		}
	} else {
		r.order = append(r.order, key)
	}

	r.records[key] = &Record{
		PluginID:         pluginID,
		Command:          cmd,
		NormalizedHotkey: normalized,
	}
	if normalized != "" {
		r.hotkeys[normalized] = key
	}
	r.mu.Unlock()

	r.notifyChanged()
	return nil
}

// UnregisterCommand removes one command. Returns true if it existed.
func (r *Registry) UnregisterCommand(pluginID, id string) bool {
	key := recordKey(pluginID, id)

	r.mu.Lock()
	rec, ok := r.records[key]
	if ok {
		if rec.NormalizedHotkey != "" {
			delete(r.hotkeys, rec.NormalizedHotkey)
		}
		delete(r.records, key)
		r.removeFromOrder(key)
	}
	r.mu.Unlock()

	if ok {
		r.notifyChanged()
	}
	return ok
}

// RegisterBuiltinSlash seeds a non-plugin slash command. Built-in keys can
// never be claimed by plugins.
func (r *Registry) RegisterBuiltinSlash(cmd SlashCommand) error {
	if cmd.Key == "" {
		return ErrEmptySlashKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slash[cmd.Key]; ok {
		return fmt.Errorf("%w: %q", ErrSlashKeyConflict, cmd.Key)
	}
	r.slash[cmd.Key] = &slashRecord{builtin: true, cmd: cmd}
	return nil
}

// RegisterSlashCommand stores a slash command for the plugin. A collision
// against a built-in or against another plugin's key is rejected;
// re-registering under a key this plugin already owns replaces the entry.
func (r *Registry) RegisterSlashCommand(pluginID string, cmd SlashCommand) error {
	if cmd.Key == "" {
		return fmt.Errorf("plugin %s: %w", pluginID, ErrEmptySlashKey)
	}

	r.mu.Lock()
	if existing, ok := r.slash[cmd.Key]; ok {
		if existing.builtin {
			r.mu.Unlock()
			return fmt.Errorf("plugin %s: %w: %q is built in", pluginID, ErrSlashKeyConflict, cmd.Key)
		}
		if existing.pluginID != pluginID {
			r.mu.Unlock()
			return fmt.Errorf("plugin %s: %w: %q is held by plugin %s",
				pluginID, ErrSlashKeyConflict, cmd.Key, existing.pluginID)
		}
	}
	r.slash[cmd.Key] = &slashRecord{pluginID: pluginID, cmd: cmd}
	r.mu.Unlock()

	r.notifyChanged()
	return nil
}

// UnregisterSlashCommand removes a plugin-owned slash key. Built-ins and
// other plugins' keys are untouched.
func (r *Registry) UnregisterSlashCommand(pluginID, key string) bool {
	r.mu.Lock()
	rec, ok := r.slash[key]
	if ok && !rec.builtin && rec.pluginID == pluginID {
		delete(r.slash, key)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		r.notifyChanged()
	}
	return ok
}

// SlashCommandFor returns the slash command registered under key.
func (r *Registry) SlashCommandFor(key string) (SlashCommand, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.slash[key]
	if !ok {
		return SlashCommand{}, false
	}
	return rec.cmd, true
}

// Dispatch resolves a key event to a command. It scans all records with a
// normalized hotkey in registration order and invokes the first structural
// match. A panicking handler is logged, not propagated, and still counts
// as the event being consumed.
func (r *Registry) Dispatch(ev KeyEvent) bool {
	r.mu.RLock()
	var match *Record
	for _, key := range r.order {
		rec := r.records[key]
		if rec == nil || rec.NormalizedHotkey == "" {
			continue
		}
		if HotkeyMatches(rec.NormalizedHotkey, ev) {
			match = rec
			break
		}
	}
	r.mu.RUnlock()

	if match == nil {
		return false
	}
	r.run(match)
	return true
}

// Execute invokes a command by plugin id and command id.
func (r *Registry) Execute(pluginID, id string) error {
	r.mu.RLock()
	rec, ok := r.records[recordKey(pluginID, id)]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("command %s:%s not found", pluginID, id)
	}
	r.run(rec)
	return nil
}

// run invokes a command handler with panic isolation.
func (r *Registry) run(rec *Record) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("plugin command handler panicked",
				"plugin", rec.PluginID,
				"command", rec.Command.ID,
				"panic", fmt.Sprint(p))
		}
	}()
	if rec.Command.Run != nil {
		rec.Command.Run()
	}
}

// PurgeOwner removes every command and slash command owned by the plugin
// and returns how many entries were dropped.
func (r *Registry) PurgeOwner(pluginID string) int {
	r.mu.Lock()
	removed := 0
	for key, rec := range r.records {
		if rec.PluginID == pluginID {
			if rec.NormalizedHotkey != "" {
				delete(r.hotkeys, rec.NormalizedHotkey)
			}
			delete(r.records, key)
			r.removeFromOrder(key)
			removed++
		}
	}
	for key, rec := range r.slash {
		if !rec.builtin && rec.pluginID == pluginID {
			delete(r.slash, key)
			removed++
		}
	}
	r.mu.Unlock()

	if removed > 0 {
		r.notifyChanged()
	}
	return removed
}

// CommandsFor returns the plugin's registered commands in registration
// order.
func (r *Registry) CommandsFor(pluginID string) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Record
	for _, key := range r.order {
		if rec := r.records[key]; rec != nil && rec.PluginID == pluginID {
			out = append(out, *rec)
		}
	}
	return out
}

// CountOwner returns the number of commands plus slash commands the plugin
// owns.
func (r *Registry) CountOwner(pluginID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.records {
		if rec.PluginID == pluginID {
			n++
		}
	}
	for _, rec := range r.slash {
		if !rec.builtin && rec.pluginID == pluginID {
			n++
		}
	}
	return n
}

// removeFromOrder removes a key from the order slice. Must be called with
// mu held.
func (r *Registry) removeFromOrder(key string) {
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
