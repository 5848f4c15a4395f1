// Package command tracks plugin-registered commands, slash commands and
// hotkeys, detecting collisions at registration time and resolving key
// events to commands at dispatch time.
package command

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrEmptyHotkey is returned when a hotkey pattern normalizes to nothing.
var ErrEmptyHotkey = errors.New("hotkey pattern is empty")

// KeyEvent is one keydown observation from the host shell.
type KeyEvent struct {
	Key   string // literal key, e.g. "k", "enter"
	Ctrl  bool
	Alt   bool
	Shift bool
	Meta  bool
}

// modifier tokens in canonical order. "mod" stays abstract in the stored
// pattern and resolves to the platform primary modifier at match time.
var canonicalModifiers = []string{"mod", "ctrl", "meta", "shift", "alt"}

// modifierAliases maps accepted spellings (lowercase) to canonical tokens.
var modifierAliases = map[string]string{
	"mod":       "mod",
	"cmdorctrl": "mod",
	"ctrl":      "ctrl",
	"control":   "ctrl",
	"meta":      "meta",
	"cmd":       "meta",
	"command":   "meta",
	"super":     "meta",
	"win":       "meta",
	"shift":     "shift",
	"alt":       "alt",
	"opt":       "alt",
	"option":    "alt",
}

// NormalizeHotkey converts a pattern like "Mod+Shift+K" into its canonical
// form: deduplicated modifiers in a fixed order followed by the lowercased
// literal key, joined with "+". An empty token stream is an error; so is a
// pattern consisting only of modifiers.
func NormalizeHotkey(pattern string) (string, error) {
	mods := make(map[string]bool)
	key := ""

	for _, raw := range strings.Split(pattern, "+") {
		token := strings.ToLower(strings.TrimSpace(raw))
		if token == "" {
			continue
		}
		if canonical, ok := modifierAliases[token]; ok {
			mods[canonical] = true
			continue
		}
		if key != "" {
			return "", fmt.Errorf("hotkey %q: multiple literal keys (%q, %q)", pattern, key, token)
		}
		key = token
	}

	if key == "" {
		if len(mods) == 0 {
			return "", fmt.Errorf("%w: %q", ErrEmptyHotkey, pattern)
		}
		return "", fmt.Errorf("hotkey %q has no literal key", pattern)
	}

	parts := make([]string, 0, len(mods)+1)
	for _, m := range canonicalModifiers {
		if mods[m] {
			parts = append(parts, m)
		}
	}
	parts = append(parts, key)
	return strings.Join(parts, "+"), nil
}

// applePlatform reports whether the primary modifier is the meta key.
// Overridable in tests.
var applePlatform = func() bool {
	return runtime.GOOS == "darwin"
}

// HotkeyMatches reports whether a normalized pattern structurally matches a
// key event. "mod" resolves here, not at normalization time, so the stored
// pattern stays platform-neutral.
func HotkeyMatches(normalized string, ev KeyEvent) bool {
	var wantCtrl, wantMeta, wantShift, wantAlt bool
	key := ""

	for _, token := range strings.Split(normalized, "+") {
		switch token {
		case "mod":
			if applePlatform() {
				wantMeta = true
			} else {
				wantCtrl = true
			}
		case "ctrl":
			wantCtrl = true
		case "meta":
			wantMeta = true
		case "shift":
			wantShift = true
		case "alt":
			wantAlt = true
		default:
			key = token
		}
	}

	return key != "" &&
		strings.ToLower(ev.Key) == key &&
		ev.Ctrl == wantCtrl &&
		ev.Meta == wantMeta &&
		ev.Shift == wantShift &&
		ev.Alt == wantAlt
}
