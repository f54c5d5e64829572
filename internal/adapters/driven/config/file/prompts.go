package file

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

var _ driven.PromptStore = (*PromptStore)(nil)

//go:embed defaults
var defaultFiles embed.FS

// required lists the placeholders each template must keep.
var required = map[string][]string{
	driven.PromptAnswer:    {"{{context}}", "{{question}}"},
	driven.PromptNoContext: {"{{question}}"},
}

// PromptStore serves the prompt templates from a user-editable directory,
// seeded with the built-in defaults on first use. A file is reread when
// its modification time or size changes, so a long-running MCP server
// picks up edits without a restart.
type PromptStore struct {
	dir string

	initOnce sync.Once
	initErr  error

	mu    sync.Mutex
	cache map[string]cachedPrompt
}

type cachedPrompt struct {
	text    string
	modTime time.Time
	size    int64
}

// NewPromptStore creates a store over dir, or ~/.handbook-rag/prompts when
// dir is empty. Nothing is written until the first Load.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".handbook-rag", "prompts")
	}
	return &PromptStore{dir: dir, cache: make(map[string]cachedPrompt)}, nil
}

// DefaultPrompt returns the built-in template for name.
func DefaultPrompt(name string) (string, bool) {
	data, err := defaultFiles.ReadFile("defaults/" + name + ".txt")
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// Dir returns the prompt directory.
func (s *PromptStore) Dir() string {
	return s.dir
}

// Load returns the template for name. A missing, unreadable or invalid
// user file falls back to the built-in default.
func (s *PromptStore) Load(name string) (string, error) {
	fallback, known := DefaultPrompt(name)
	if !known {
		return "", fmt.Errorf("unknown prompt %q", name)
	}

	s.initOnce.Do(s.seed)
	if s.initErr != nil {
		return fallback, nil
	}

	path := filepath.Join(s.dir, name+".txt")
	info, err := os.Stat(path)
	if err != nil {
		return fallback, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cache[name]; ok && c.modTime.Equal(info.ModTime()) && c.size == info.Size() {
		return c.text, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Reading prompt %s: %v, using the default", path, err)
		return fallback, nil
	}
	text := strings.TrimSpace(string(data))
	if missing := missingPlaceholders(name, text); len(missing) > 0 {
		logger.Warn("Prompt %s lacks %s, using the default", path, strings.Join(missing, " and "))
		text = fallback
	}
	s.cache[name] = cachedPrompt{text: text, modTime: info.ModTime(), size: info.Size()}
	return text, nil
}

// Reload forgets every cached template.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cachedPrompt)
}

func missingPlaceholders(name, text string) []string {
	var missing []string
	for _, p := range required[name] {
		if !strings.Contains(text, p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// seed copies the defaults into the directory. Existing files are user
// edits and are left alone.
func (s *PromptStore) seed() {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		logger.Debug("Prompt directory unavailable, using built-in prompts: %v", err)
		return
	}

	s.initErr = fs.WalkDir(defaultFiles, "defaults", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		target := filepath.Join(s.dir, d.Name())
		if _, err := os.Stat(target); !errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		data, err := defaultFiles.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0600)
	})
}
