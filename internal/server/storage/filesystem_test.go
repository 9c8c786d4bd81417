package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileSystemStore_Stage(t *testing.T) {
	t.Run("stages file to disk", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		staged, err := store.Stage("memo.wav", bytes.NewReader([]byte("test content")))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if staged.Size != 12 {
			t.Errorf("expected 12 bytes written, got %d", staged.Size)
		}
		if filepath.Dir(staged.Path) != dir {
			t.Errorf("expected staged file under %s, got %s", dir, staged.Path)
		}
		if !strings.HasSuffix(staged.ID, ".wav") {
			t.Errorf("expected .wav extension to be kept, got %s", staged.ID)
		}

		content, err := os.ReadFile(staged.Path)
		if err != nil {
			t.Fatalf("failed to read staged file: %v", err)
		}
		if string(content) != "test content" {
			t.Errorf("expected 'test content', got %q", content)
		}
	})

	t.Run("same name stages to distinct files", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())

		a, err := store.Stage("a.wav", strings.NewReader("one"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b, err := store.Stage("a.wav", strings.NewReader("two"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.ID == b.ID {
			t.Error("expected distinct staged ids")
		}
	})

	t.Run("path components in the name are ignored", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)

		staged, err := store.Stage("../../etc/passwd", strings.NewReader("x"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if filepath.Dir(staged.Path) != dir {
			t.Errorf("staged outside the staging dir: %s", staged.Path)
		}
	})
}

func TestFileSystemStore_Release(t *testing.T) {
	t.Run("removes staged file", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())

		staged, err := store.Stage("a.mp3", strings.NewReader("data"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := store.Release(staged.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(staged.Path); !os.IsNotExist(err) {
			t.Error("expected staged file to be deleted")
		}
	})

	t.Run("no error for missing file", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())

		if err := store.Release("nonexistent.wav"); err != nil {
			t.Errorf("expected no error for missing file, got: %v", err)
		}
	})
}

func TestFileSystemStore_EnsureDir(t *testing.T) {
	t.Run("creates directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "staging")
		store := NewFileSystemStore(dir)

		if err := store.EnsureDir(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("directory not created: %v", err)
		}
		if !info.IsDir() {
			t.Error("expected a directory")
		}
	})
}

func TestCleanupService_Sweep(t *testing.T) {
	dir := t.TempDir()
	store := NewFileSystemStore(dir)

	old, err := store.Stage("old.wav", strings.NewReader("old"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old.Path, past, past); err != nil {
		t.Fatalf("failed to age file: %v", err)
	}
	fresh, err := store.Stage("fresh.wav", strings.NewReader("fresh"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cs := NewCleanupService(store, time.Hour, time.Hour)
	if n := cs.Sweep(); n != 1 {
		t.Errorf("expected 1 file cleaned, got %d", n)
	}

	if _, err := os.Stat(old.Path); !os.IsNotExist(err) {
		t.Error("expected stale file to be removed")
	}
	if _, err := os.Stat(fresh.Path); err != nil {
		t.Error("expected fresh file to be kept")
	}
}

func TestCleanupService_RunStopsOnCancel(t *testing.T) {
	store := NewFileSystemStore(t.TempDir())
	cs := NewCleanupService(store, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- cs.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup service did not stop")
	}
}

func TestStagedExt(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"wav", "memo.wav", ".wav"},
		{"upper case", "MEMO.MP3", ".mp3"},
		{"windows path", "C:\\Users\\test\\clip.m4a", ".m4a"},
		{"no extension", "memo", ""},
		{"weird characters", "memo.w$v", ""},
		{"too long", "memo.waveform", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stagedExt(tt.input); got != tt.expected {
				t.Errorf("stagedExt(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
