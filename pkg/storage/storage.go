// Package storage gives access to the removable storage that holds animation
// files and the odometry log.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

var (
	// ErrNotMounted is returned when the storage root is missing.
	ErrNotMounted = errors.New("storage: not mounted")

	// ErrBadPath is returned for paths that leave the storage root.
	ErrBadPath = errors.New("storage: path outside root")
)

// Store is a directory tree rooted at the removable media mount point.
type Store struct {
	root    string
	logger  *slog.Logger
	present atomic.Bool
}

// New returns a store rooted at root. It does not touch the filesystem.
func New(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger.With("component", "storage")}
}

// Root returns the mount point.
func (s *Store) Root() string {
	return s.root
}

// Mount checks that the root exists and is a directory.
func (s *Store) Mount() error {
	info, err := os.Stat(s.root)
	if err != nil {
		s.present.Store(false)
		return fmt.Errorf("%w: %v", ErrNotMounted, err)
	}
	if !info.IsDir() {
		s.present.Store(false)
		return fmt.Errorf("%w: %s is not a directory", ErrNotMounted, s.root)
	}
	s.present.Store(true)
	return nil
}

// Present reports the last known mount state.
func (s *Store) Present() bool {
	return s.present.Load()
}

func (s *Store) resolve(name string) (string, error) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "/")
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q", ErrBadPath, name)
	}
	return filepath.Join(s.root, filepath.FromSlash(name)), nil
}

// Open opens a file for streaming reads.
func (s *Store) Open(name string) (io.ReadCloser, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", name, err)
	}
	return f, nil
}

// ReadFile reads a whole file.
func (s *Store) ReadFile(name string) ([]byte, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

// WriteFile replaces a file atomically.
func (s *Store) WriteFile(name string, data []byte) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	return nil
}

// Watch follows the mount point's parent directory and logs when the media
// is removed or inserted. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("storage: watch: %w", err)
	}
	defer w.Close()

	parent := filepath.Dir(filepath.Clean(s.root))
	if err := w.Add(parent); err != nil {
		return fmt.Errorf("storage: watch %s: %w", parent, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watch error", "error", err)
		}
	}
}

func (s *Store) handleEvent(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != filepath.Clean(s.root) {
		return
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		s.present.Store(false)
		s.logger.Warn("storage removed", "root", s.root)
	case ev.Has(fsnotify.Create):
		if err := s.Mount(); err != nil {
			s.logger.Warn("storage inserted but unusable", "error", err)
			return
		}
		s.logger.Info("storage inserted", "root", s.root)
	}
}
