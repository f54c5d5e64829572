package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

// Watch reports changes below root until ctx is cancelled or the loader
// is closed. Created and updated documents carry their content; deleted
// documents carry only ID, URI and MIME type. Directories created after
// the watch started are watched as well.
func (l *Loader) Watch(ctx context.Context, root string) (<-chan domain.RawDocumentChange, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path error: %s is not a directory", root)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := addTree(watcher, root); err != nil {
		watcher.Close()
		return nil, err
	}
	l.watchers = append(l.watchers, watcher)

	changes := make(chan domain.RawDocumentChange)
	go l.watchLoop(ctx, root, watcher, changes)

	return changes, nil
}

func (l *Loader) watchLoop(ctx context.Context, root string, watcher *fsnotify.Watcher, changes chan<- domain.RawDocumentChange) {
	defer close(changes)
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !isHidden(info.Name()) {
					if err := addTree(watcher, event.Name); err != nil {
						logger.Warn("watch %s: %v", event.Name, err)
					}
					continue
				}
			}

			change := l.handleFsEvent(root, event)
			if change == nil {
				continue
			}
			select {
			case changes <- *change:
			case <-ctx.Done():
				return
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watch %s: %v", root, err)
		}
	}
}

// handleFsEvent converts a filesystem event into a document change.
// Returns nil for events that do not affect a visible document.
func (l *Loader) handleFsEvent(root string, event fsnotify.Event) *domain.RawDocumentChange {
	if hiddenBelow(root, event.Name) {
		return nil
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return &domain.RawDocumentChange{
			Type: domain.ChangeDeleted,
			Document: domain.RawDocument{
				ID:       documentID(root, event.Name),
				URI:      event.Name,
				MIMEType: detectMIMEType(event.Name),
			},
		}

	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		raw, err := l.readFile(root, event.Name)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("watch: %v", err)
			}
			return nil
		}
		if raw == nil {
			return nil
		}
		changeType := domain.ChangeUpdated
		if event.Has(fsnotify.Create) {
			changeType = domain.ChangeCreated
		}
		return &domain.RawDocumentChange{Type: changeType, Document: *raw}
	}

	return nil
}

// addTree watches dir and every visible directory below it.
func addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// hiddenBelow reports whether any element of path below root is hidden.
func hiddenBelow(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if isHidden(part) {
			return true
		}
	}
	return false
}
