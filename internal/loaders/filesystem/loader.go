// Package filesystem loads handbook documents from a directory tree and
// watches the tree for changes.
package filesystem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/loaders/jsonl"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

// Ensure Loader implements the interface.
var _ driven.Loader = (*Loader)(nil)

// DefaultMaxFileSize is the largest file read by default.
const DefaultMaxFileSize = 32 << 20

// ErrClosed is returned by a closed loader.
var ErrClosed = errors.New("filesystem loader closed")

// Custom MIME types for extensions the mime package does not know or
// maps inconsistently across platforms.
var extensionTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".text":     "text/plain",
	".htm":      "text/html",
	".html":     "text/html",
	".xhtml":    "application/xhtml+xml",
	".pdf":      "application/pdf",
	".csv":      "text/csv",
	".rst":      "text/x-rst",
	".jsonl":    jsonl.MIMEType,
	".ndjson":   jsonl.MIMEType,
}

// Option configures a Loader.
type Option func(*Loader)

// WithFilter only loads files whose MIME type satisfies accept.
// Export files are always expanded.
func WithFilter(accept func(mimeType string) bool) Option {
	return func(l *Loader) {
		l.accept = accept
	}
}

// WithMaxFileSize skips files larger than size bytes.
func WithMaxFileSize(size int64) Option {
	return func(l *Loader) {
		l.maxFileSize = size
	}
}

// Loader reads files below a root directory. Document IDs are the slash
// separated paths relative to the root, so they stay stable when the
// tree is moved.
type Loader struct {
	accept      func(string) bool
	maxFileSize int64

	mu       sync.Mutex
	closed   bool
	watchers []*fsnotify.Watcher
}

// New creates a filesystem loader.
func New(opts ...Option) *Loader {
	l := &Loader{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load calls fn for every document below root. root may also be a single
// file, whose ID is then its base name. Hidden files and directories are
// skipped.
func (l *Loader) Load(ctx context.Context, root string, fn func(raw *domain.RawDocument) error) error {
	if err := l.checkOpen(); err != nil {
		return err
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return l.loadFile(ctx, filepath.Dir(root), root, fn)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path != root && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		return l.loadFile(ctx, root, path, fn)
	})
}

// LoadFile reads the document or export at path, naming it relative to root.
func (l *Loader) LoadFile(ctx context.Context, root, path string, fn func(raw *domain.RawDocument) error) error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	return l.loadFile(ctx, root, path, fn)
}

func (l *Loader) loadFile(ctx context.Context, root, path string, fn func(raw *domain.RawDocument) error) error {
	raw, err := l.readFile(root, path)
	if err != nil || raw == nil {
		return err
	}

	if raw.MIMEType == jsonl.MIMEType {
		return jsonl.Decode(ctx, bytes.NewReader(raw.Content), path, fn)
	}
	return fn(raw)
}

// readFile returns nil without error for files the loader skips.
func (l *Loader) readFile(root, path string) (*domain.RawDocument, error) {
	mimeType := detectMIMEType(path)
	if mimeType != jsonl.MIMEType && l.accept != nil && !l.accept(mimeType) {
		logger.Debug("skipping %s: unsupported type %s", path, mimeType)
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, nil
	}
	if l.maxFileSize > 0 && info.Size() > l.maxFileSize {
		logger.Warn("skipping %s: %d bytes exceeds limit of %d", path, info.Size(), l.maxFileSize)
		return nil, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return &domain.RawDocument{
		ID:         documentID(root, path),
		URI:        abs,
		MIMEType:   mimeType,
		Content:    content,
		ModifiedAt: info.ModTime().UTC(),
	}, nil
}

// Close stops all watchers. Later calls fail with ErrClosed.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	for _, w := range l.watchers {
		errs = append(errs, w.Close())
	}
	l.watchers = nil
	return errors.Join(errs...)
}

func (l *Loader) checkOpen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return nil
}

// documentID is the slash separated path of path relative to root.
func documentID(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// detectMIMEType maps a file extension to a MIME type without parameters.
func detectMIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "text/plain"
	}
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
	}
	return "application/octet-stream"
}

// isHidden reports whether a file or directory name is hidden.
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
