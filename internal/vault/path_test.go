package vault

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestResolveRelativeInsideRoot(t *testing.T) {
	root := t.TempDir()

	got, err := Resolve(root, "notes/daily.md")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join(root, "notes", "daily.md")
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestResolveRootItself(t *testing.T) {
	root := t.TempDir()

	got, err := Resolve(root, ".")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != filepath.Clean(root) {
		t.Errorf("Resolve = %q, want root %q", got, root)
	}
}

func TestResolveRejectsEscapes(t *testing.T) {
	root := t.TempDir()

	escapes := []string{
		"../../etc/passwd",
		"..",
		"notes/../../outside",
		filepath.Join(root, "..", "sibling"),
		"/etc/passwd",
	}

	for _, p := range escapes {
		if _, err := Resolve(root, p); !errors.Is(err, ErrPathEscapes) {
			t.Errorf("Resolve(%q) error = %v, want ErrPathEscapes", p, err)
		}
	}
}

func TestResolveDoesNotMatchSiblingPrefix(t *testing.T) {
	root := t.TempDir()
	sibling := root + "-archive"

	if _, err := Resolve(root, sibling); !errors.Is(err, ErrPathEscapes) {
		t.Errorf("sibling dir sharing the root prefix must be rejected, got %v", err)
	}
}

func TestResolveAbsoluteInsideRoot(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "sub", "file.md")

	got, err := Resolve(root, inside)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != inside {
		t.Errorf("Resolve = %q, want %q", got, inside)
	}
}

func TestResolveEmptyRoot(t *testing.T) {
	if _, err := Resolve("", "x"); err == nil {
		t.Error("empty workspace root should error")
	}
}
