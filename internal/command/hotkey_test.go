package command

import (
	"errors"
	"testing"
)

func TestNormalizeHotkey(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"Mod+Shift+K", "mod+shift+k"},
		{"Shift+Mod+K", "mod+shift+k"},
		{"mod+mod+k", "mod+k"},
		{"Cmd+P", "meta+p"},
		{"Ctrl+Alt+Delete", "ctrl+alt+delete"},
		{"Option+X", "alt+x"},
		{"k", "k"},
		{" Mod + K ", "mod+k"},
		{"CmdOrCtrl+S", "mod+s"},
	}

	for _, tt := range tests {
		got, err := NormalizeHotkey(tt.pattern)
		if err != nil {
			t.Errorf("NormalizeHotkey(%q) error: %v", tt.pattern, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeHotkey(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}

func TestNormalizeHotkeyErrors(t *testing.T) {
	cases := []string{"", "+", "++", "Mod+Shift", "Mod+K+J"}
	for _, pattern := range cases {
		if _, err := NormalizeHotkey(pattern); err == nil {
			t.Errorf("NormalizeHotkey(%q) should fail", pattern)
		}
	}

	if _, err := NormalizeHotkey(""); !errors.Is(err, ErrEmptyHotkey) {
		t.Errorf("empty pattern error = %v, want ErrEmptyHotkey", err)
	}
}

func withPlatform(t *testing.T, apple bool) {
	t.Helper()
	prev := applePlatform
	applePlatform = func() bool { return apple }
	t.Cleanup(func() { applePlatform = prev })
}

func TestHotkeyMatchesModResolution(t *testing.T) {
	normalized, err := NormalizeHotkey("Mod+Shift+K")
	if err != nil {
		t.Fatalf("NormalizeHotkey: %v", err)
	}

	withPlatform(t, false)
	if !HotkeyMatches(normalized, KeyEvent{Key: "K", Ctrl: true, Shift: true}) {
		t.Error("ctrl+shift+k should match on non-apple platform")
	}
	if HotkeyMatches(normalized, KeyEvent{Key: "K", Meta: true, Shift: true}) {
		t.Error("meta+shift+k should not match on non-apple platform")
	}

	withPlatform(t, true)
	if !HotkeyMatches(normalized, KeyEvent{Key: "k", Meta: true, Shift: true}) {
		t.Error("meta+shift+k should match on apple platform")
	}
	if HotkeyMatches(normalized, KeyEvent{Key: "k", Ctrl: true, Shift: true}) {
		t.Error("ctrl+shift+k should not match on apple platform")
	}
}

func TestHotkeyMatchesIsStructural(t *testing.T) {
	withPlatform(t, false)

	normalized, _ := NormalizeHotkey("Mod+K")

	// Extra modifiers break the match.
	if HotkeyMatches(normalized, KeyEvent{Key: "k", Ctrl: true, Alt: true}) {
		t.Error("extra alt modifier must not match")
	}
	// Missing modifiers break the match.
	if HotkeyMatches(normalized, KeyEvent{Key: "k"}) {
		t.Error("missing ctrl must not match")
	}
	// Wrong key breaks the match.
	if HotkeyMatches(normalized, KeyEvent{Key: "j", Ctrl: true}) {
		t.Error("wrong key must not match")
	}
}
