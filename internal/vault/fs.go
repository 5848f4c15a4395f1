package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FS is the vault I/O collaborator. All path arguments are absolute paths
// already validated by Resolve; implementations do not re-check sandbox
// boundaries.
type FS interface {
	ReadFile(ctx context.Context, path string) (string, error)
	SaveFile(ctx context.Context, path, content string) error
	DeleteFile(ctx context.Context, path string) error
	RenameFile(ctx context.Context, oldPath, newPath string) error
	MoveFile(ctx context.Context, oldPath, newPath string) error
	ListDirectory(ctx context.Context, path string) ([]DirEntry, error)
}

// DirEntry describes one entry of a vault directory listing.
type DirEntry struct {
	Name  string
	IsDir bool
}

// DirFS implements FS on top of the local filesystem.
type DirFS struct{}

// NewDirFS creates a filesystem-backed vault.
func NewDirFS() *DirFS {
	return &DirFS{}
}

// ReadFile returns the content of the file at path.
func (f *DirFS) ReadFile(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// SaveFile writes content to path, creating parent directories as needed.
func (f *DirFS) SaveFile(_ context.Context, path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// DeleteFile removes the file at path.
func (f *DirFS) DeleteFile(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// RenameFile renames oldPath to newPath within the same directory tree.
func (f *DirFS) RenameFile(_ context.Context, oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("rename %s: %w", oldPath, err)
	}
	return nil
}

// MoveFile moves oldPath to newPath, creating the target directory.
func (f *DirFS) MoveFile(_ context.Context, oldPath, newPath string) error {
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return fmt.Errorf("move %s: %w", oldPath, err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("move %s: %w", oldPath, err)
	}
	return nil
}

// ListDirectory returns the entries of the directory at path.
func (f *DirFS) ListDirectory(_ context.Context, path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return out, nil
}
