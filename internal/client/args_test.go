package client

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Test helpers

func setupTestFiles(t *testing.T, dir string, files map[string]string) []string {
	t.Helper()
	var paths []string

	for filename, content := range files {
		filePath := filepath.Join(dir, filename)
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			t.Fatalf("failed to create dir for %s: %v", filename, err)
		}
		if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to create test file %s: %v", filename, err)
		}
		paths = append(paths, filePath)
	}

	return paths
}

func assertValidationError(t *testing.T, err error, expectedArg string, causeContains string) {
	t.Helper()
	validationErr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T (%v)", err, err)
	}
	if expectedArg != "" && validationErr.Arg != expectedArg {
		t.Errorf("expected Arg to be %q, got %q", expectedArg, validationErr.Arg)
	}
	if causeContains != "" && !strings.Contains(validationErr.Cause, causeContains) {
		t.Errorf("expected Cause to contain %q, got %q", causeContains, validationErr.Cause)
	}
}

// Tests

func TestParseArgs(t *testing.T) {
	t.Run("empty args returns error", func(t *testing.T) {
		result, err := ParseArgs([]string{}, 0)

		if err == nil {
			t.Fatal("expected error for empty args")
		}
		if result != nil {
			t.Error("expected nil result for empty args")
		}
		assertValidationError(t, err, "<files>", "no files provided")
	})

	t.Run("single audio file", func(t *testing.T) {
		paths := setupTestFiles(t, t.TempDir(), map[string]string{
			"memo.wav": "RIFFdata",
		})

		result, err := ParseArgs(paths, 1024)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(result) != 1 {
			t.Fatalf("expected 1 result, got %d", len(result))
		}
		if result[0].Path != paths[0] || result[0].Name != "memo.wav" || result[0].Size != 8 {
			t.Errorf("unexpected file %+v", result[0])
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ParseArgs([]string{"/does/not/exist.wav"}, 0)
		assertValidationError(t, err, "/does/not/exist.wav", "not found")
	})

	t.Run("unsupported extension", func(t *testing.T) {
		paths := setupTestFiles(t, t.TempDir(), map[string]string{"notes.txt": "hello"})

		_, err := ParseArgs(paths, 0)
		assertValidationError(t, err, paths[0], "unsupported audio format")
	})

	t.Run("empty file", func(t *testing.T) {
		paths := setupTestFiles(t, t.TempDir(), map[string]string{"silence.mp3": ""})

		_, err := ParseArgs(paths, 0)
		assertValidationError(t, err, paths[0], "empty")
	})

	t.Run("oversized file rejected before transfer", func(t *testing.T) {
		paths := setupTestFiles(t, t.TempDir(), map[string]string{
			"long.m4a": strings.Repeat("x", 2048),
		})

		_, err := ParseArgs(paths, 1024)
		assertValidationError(t, err, paths[0], "limit is 1024")
	})

	t.Run("file exactly at the limit is accepted", func(t *testing.T) {
		paths := setupTestFiles(t, t.TempDir(), map[string]string{
			"edge.ogg": strings.Repeat("x", 1024),
		})

		result, err := ParseArgs(paths, 1024)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(result) != 1 {
			t.Fatalf("expected 1 result, got %d", len(result))
		}
	})

	t.Run("directory expands to sorted audio files", func(t *testing.T) {
		dir := t.TempDir()
		setupTestFiles(t, dir, map[string]string{
			"b.wav":         "b",
			"a.mp3":         "a",
			"readme.md":     "skip me",
			"nested/c.flac": "c",
			".hidden/d.wav": "hidden",
			".secret.wav":   "hidden",
		})

		result, err := ParseArgs([]string{dir}, 1024)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var names []string
		for _, f := range result {
			names = append(names, f.Name)
		}
		if got := strings.Join(names, ","); got != "a.mp3,b.wav,c.flac" {
			t.Errorf("expected a.mp3,b.wav,c.flac, got %s", got)
		}
	})

	t.Run("directory without audio", func(t *testing.T) {
		dir := t.TempDir()
		setupTestFiles(t, dir, map[string]string{"notes.txt": "x"})

		_, err := ParseArgs([]string{dir}, 0)
		assertValidationError(t, err, dir, "no audio files")
	})

	t.Run("oversized file inside directory fails", func(t *testing.T) {
		dir := t.TempDir()
		paths := setupTestFiles(t, dir, map[string]string{"big.wav": strings.Repeat("x", 10)})

		_, err := ParseArgs([]string{dir}, 5)
		assertValidationError(t, err, paths[0], "limit is 5")
	})

	t.Run("duplicates are uploaded once", func(t *testing.T) {
		dir := t.TempDir()
		paths := setupTestFiles(t, dir, map[string]string{"memo.wav": "x"})

		result, err := ParseArgs([]string{paths[0], dir, paths[0]}, 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(result) != 1 {
			t.Errorf("expected 1 result, got %d", len(result))
		}
	})
}

func TestIsAudio(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"memo.wav", true},
		{"MEMO.MP3", true},
		{"clip.webm", true},
		{"archive.zip", false},
		{"noext", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAudio(tt.name); got != tt.want {
				t.Errorf("IsAudio(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Arg: "x.wav", Cause: "file is empty"}
	if err.Error() != `invalid argument "x.wav": file is empty` {
		t.Errorf("unexpected message %q", err.Error())
	}
}
