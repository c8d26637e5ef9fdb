package permission

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Store holds the active menu table. When backed by a file it can watch the
// file and swap in each valid revision; an invalid revision is logged and
// the last good table stays active.
type Store struct {
	mu     sync.RWMutex
	table  *Table
	path   string
	logger *slog.Logger

	// reloaded is signalled after every reload attempt; tests wait on it.
	reloaded chan error
}

// NewStore returns a store serving the embedded table, overridden by the
// file at path when path is non-empty.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{table: Default(), path: path, logger: logger}
	if path != "" {
		if err := s.Reload(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Table returns the active table.
func (s *Store) Table() *Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// Reload re-reads the backing file. On error the active table is unchanged.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read menus file: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}
	s.mu.Lock()
	s.table = t
	s.mu.Unlock()
	return nil
}

// Watch reloads the table whenever the backing file changes, until ctx is
// cancelled. The parent directory is watched so editors that replace the
// file on save are handled. Bursts of events are coalesced.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	s.logger.Info("watching menus file", "path", s.path)

	const debounce = 200 * time.Millisecond
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	name := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("menus watcher", "err", err)
		case <-timer.C:
			err := s.Reload()
			if err != nil {
				s.logger.Error("menus reload rejected, keeping previous table", "err", err)
			} else {
				s.logger.Info("menus reloaded", "path", s.path)
			}
			if s.reloaded != nil {
				select {
				case s.reloaded <- err:
				default:
				}
			}
		}
	}
}
