package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestMount(t *testing.T) {
	dir := t.TempDir()
	if err := New(dir, nil).Mount(); err != nil {
		t.Errorf("Mount(existing) = %v", err)
	}

	missing := New(filepath.Join(dir, "nope"), nil)
	if err := missing.Mount(); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Mount(missing) = %v, want ErrNotMounted", err)
	}
	if missing.Present() {
		t.Error("Present() should be false")
	}

	file := filepath.Join(dir, "file")
	os.WriteFile(file, nil, 0o644)
	if err := New(file, nil).Mount(); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Mount(file) = %v, want ErrNotMounted", err)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "clips"), 0o755)
	os.WriteFile(filepath.Join(dir, "clips", "wave.txt"), []byte("0/1500/0/0\n"), 0o644)

	s := New(dir, nil)
	for _, name := range []string{"clips/wave.txt", "/clips/wave.txt"} {
		rc, err := s.Open(name)
		if err != nil {
			t.Fatalf("Open(%q) = %v", name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != "0/1500/0/0\n" {
			t.Errorf("Open(%q) read %q", name, data)
		}
	}

	if _, err := s.Open("clips/missing.txt"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open(missing) = %v, want ErrNotExist", err)
	}
	if _, err := s.Open("../etc/passwd"); !errors.Is(err, ErrBadPath) {
		t.Errorf("Open(escape) = %v, want ErrBadPath", err)
	}
}

func TestWriteReadFile(t *testing.T) {
	s := New(t.TempDir(), nil)
	if err := s.WriteFile("distance.txt", []byte("12.34")); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteFile("distance.txt", []byte("56.78")); err != nil {
		t.Fatal(err)
	}
	data, err := s.ReadFile("distance.txt")
	if err != nil || string(data) != "56.78" {
		t.Errorf("ReadFile = %q, %v", data, err)
	}
}

func TestHandleEvent(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "media")
	os.Mkdir(root, 0o755)
	s := New(root, nil)
	s.Mount()

	s.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "other"), Op: fsnotify.Remove})
	if !s.Present() {
		t.Fatal("unrelated event changed state")
	}
	s.handleEvent(fsnotify.Event{Name: root, Op: fsnotify.Remove})
	if s.Present() {
		t.Fatal("Remove should clear Present")
	}
	s.handleEvent(fsnotify.Event{Name: root, Op: fsnotify.Create})
	if !s.Present() {
		t.Fatal("Create should restore Present")
	}
}

func TestWatch_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "media"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
