// Package vault provides workspace file access for the plugin runtime.
//
// Resolve is the single sandboxing boundary for plugin filesystem access:
// capabilities gate which operations are callable, Resolve gates where they
// may act.
package vault

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscapes is returned when a plugin-supplied path resolves outside
// the workspace root.
var ErrPathEscapes = errors.New("path escapes workspace root")

// Resolve resolves a plugin-supplied path against the workspace root and
// returns the absolute path. The path may be vault-relative or absolute;
// either way the result must equal or fall strictly under the normalized
// root, otherwise an error is returned. There is no silent clamping.
func Resolve(workspaceRoot, p string) (string, error) {
	if workspaceRoot == "" {
		return "", errors.New("workspace root is empty")
	}

	root, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	root = filepath.Clean(root)

	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", p, err)
	}
	abs = filepath.Clean(abs)

	if !isWithin(abs, root) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapes, p)
	}
	return abs, nil
}

// isWithin checks if target is within or equal to base using filepath.Rel.
// This properly handles edge cases like "/ws/notes" not matching
// "/ws/notes-archive".
func isWithin(target, base string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
