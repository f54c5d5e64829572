package file

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
)

var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigFile is the configuration file name.
const ConfigFile = "config.toml"

// ConfigStore keeps config.toml in memory as dotted keys and writes it
// back as nested tables on every change.
type ConfigStore struct {
	mu     sync.RWMutex
	path   string
	values map[string]any
}

// NewConfigStore opens configDir/config.toml, defaulting configDir to
// ~/.handbook-rag. A missing file is an empty config.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating config directory: %w", err)
		}
		configDir = filepath.Join(home, ".handbook-rag")
	}
	return NewConfigStoreAt(filepath.Join(configDir, ConfigFile))
}

// NewConfigStoreAt opens the config file at an explicit path.
func NewConfigStoreAt(path string) (*ConfigStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}
	s := &ConfigStore{path: path, values: map[string]any{}}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ConfigStore) Path() string {
	return s.path
}

func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *ConfigStore) Set(key string, value any) error {
	return s.SetMany(map[string]any{key: value})
}

// SetMany applies every value and writes the file once. If the write
// fails nothing changes, in memory or on disk.
func (s *ConfigStore) SetMany(values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.values)
	maps.Copy(next, values)

	data, err := toml.Marshal(nestMap(next))
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := writeAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	s.values = next
	return nil
}

// Keys lists the stored keys, sorted.
func (s *ConfigStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.values))
}

// Load replaces the in-memory values with the file's contents. A deleted
// file empties the store.
func (s *ConfigStore) Load() error {
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		data = nil
	case err != nil:
		return fmt.Errorf("reading %s: %w", s.path, err)
	}

	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("parsing %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.values = flattenMap(tree, "")
	s.mu.Unlock()
	return nil
}

// writeAtomic writes through a temp file in the same directory and
// renames it over path, so readers never see a partial file.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Chmod(perm)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// nestMap turns dotted keys into TOML tables. A key whose prefix is
// already a plain value, or whose leaf is already a table, stays flat.
func nestMap(flat map[string]any) map[string]any {
	root := map[string]any{}
	for _, key := range slices.Sorted(maps.Keys(flat)) {
		if table, leaf, ok := tableFor(root, key); ok {
			table[leaf] = flat[key]
		} else {
			root[key] = flat[key]
		}
	}
	return root
}

// tableFor walks (creating as needed) the tables of key's prefix. ok is
// false when the path is blocked or the leaf is taken.
func tableFor(root map[string]any, key string) (table map[string]any, leaf string, ok bool) {
	parts := strings.Split(key, ".")
	table = root
	for _, part := range parts[:len(parts)-1] {
		switch child := table[part].(type) {
		case nil:
			next := map[string]any{}
			table[part] = next
			table = next
		case map[string]any:
			table = child
		default:
			return nil, "", false
		}
	}
	leaf = parts[len(parts)-1]
	if _, taken := table[leaf]; taken {
		return nil, "", false
	}
	return table, leaf, true
}

// flattenMap is the inverse of nestMap: {"a": {"b": 1}} becomes {"a.b": 1}.
func flattenMap(tree map[string]any, prefix string) map[string]any {
	flat := map[string]any{}
	for key, value := range tree {
		if prefix != "" {
			key = prefix + "." + key
		}
		if sub, ok := value.(map[string]any); ok {
			maps.Copy(flat, flattenMap(sub, key))
			continue
		}
		flat[key] = value
	}
	return flat
}
