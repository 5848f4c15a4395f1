// Package storage provides the plugin-scoped persistent key-value store.
//
// Each plugin owns one JSON document at
// <workspace>/.lumina/plugin-data/<id>.json. Values survive plugin reloads
// and host restarts; unload only releases in-memory state.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// dataDirName is the workspace-relative directory holding plugin documents.
const dataDirName = ".lumina/plugin-data"

// Store manages the per-plugin documents of one workspace.
type Store struct {
	mu   sync.Mutex
	root string            // workspace root
	docs map[string]string // plugin id -> JSON document
}

// NewStore creates a store rooted at the workspace.
func NewStore(workspaceRoot string) *Store {
	return &Store{
		root: workspaceRoot,
		docs: make(map[string]string),
	}
}

// docPath returns the on-disk path of a plugin's document.
func (s *Store) docPath(pluginID string) string {
	return filepath.Join(s.root, filepath.FromSlash(dataDirName), pluginID+".json")
}

// load returns the cached document for the plugin, reading it from disk on
// first access. Must be called with mu held.
func (s *Store) load(pluginID string) string {
	if doc, ok := s.docs[pluginID]; ok {
		return doc
	}
	doc := "{}"
	if data, err := os.ReadFile(s.docPath(pluginID)); err == nil && gjson.ValidBytes(data) {
		doc = string(data)
	}
	s.docs[pluginID] = doc
	return doc
}

// persist writes the document to disk. Must be called with mu held.
func (s *Store) persist(pluginID, doc string) error {
	path := s.docPath(pluginID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("storage %s: %w", pluginID, err)
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("storage %s: %w", pluginID, err)
	}
	s.docs[pluginID] = doc
	return nil
}

// Get returns the value for key, or nil when absent. JSON scalars come
// back as Go scalars; objects and arrays come back as generic maps and
// slices.
func (s *Store) Get(pluginID, key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := gjson.Get(s.load(pluginID), keyPath(key))
	if !res.Exists() {
		return nil
	}
	return res.Value()
}

// Set stores a value under key and persists the document.
func (s *Store) Set(pluginID, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := sjson.Set(s.load(pluginID), keyPath(key), value)
	if err != nil {
		return fmt.Errorf("storage %s key %q: %w", pluginID, key, err)
	}
	return s.persist(pluginID, doc)
}

// Delete removes key and persists the document. Deleting an absent key is
// a no-op.
func (s *Store) Delete(pluginID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := sjson.Delete(s.load(pluginID), keyPath(key))
	if err != nil {
		return fmt.Errorf("storage %s key %q: %w", pluginID, key, err)
	}
	return s.persist(pluginID, doc)
}

// Keys returns the top-level keys of the plugin's document.
func (s *Store) Keys(pluginID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	gjson.Parse(s.load(pluginID)).ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	return keys
}

// Evict drops the in-memory document for a plugin. The on-disk document is
// untouched, so data survives reloads.
func (s *Store) Evict(pluginID string) {
	s.mu.Lock()
	delete(s.docs, pluginID)
	s.mu.Unlock()
}

// keyPath escapes a user-supplied key so dots and wildcards address a
// literal top-level key rather than a nested path.
func keyPath(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '\\', '|', '#', '@':
			out = append(out, '\\')
		}
		out = append(out, key[i])
	}
	return string(out)
}
