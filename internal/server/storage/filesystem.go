package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StagedFile is an uploaded file held on disk while it is transcribed.
type StagedFile struct {
	ID   string
	Path string
	Size int64
}

// Store defines the interface for transient upload staging.
type Store interface {
	Stage(fileName string, data io.Reader) (*StagedFile, error)
	Release(id string) error
	Stale(olderThan time.Duration) ([]string, error)
	EnsureDir() error
}

// FileSystemStore stages uploads on the local filesystem.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem staging area.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureDir creates the staging directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0o755); err != nil {
		return fmt.Errorf("failed to create staging directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Stage writes data to a new file. The staged name is random but keeps the
// original extension so format-sniffing transcribers still work.
func (fs *FileSystemStore) Stage(fileName string, data io.Reader) (*StagedFile, error) {
	id := uuid.NewString() + stagedExt(fileName)
	filePath := fs.filePath(id)

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create staged file %s: %w", filePath, err)
	}

	n, err := io.Copy(file, data)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write staged file: %w", err)
	}

	return &StagedFile{ID: id, Path: filePath, Size: n}, nil
}

// Release removes a staged file. Releasing a missing file is not an error.
func (fs *FileSystemStore) Release(id string) error {
	filePath := fs.filePath(id)
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release staged file %s: %w", filePath, err)
	}
	return nil
}

// Stale lists staged files last modified more than olderThan ago.
func (fs *FileSystemStore) Stale(olderThan time.Duration) ([]string, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list staging directory: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

func (fs *FileSystemStore) filePath(id string) string {
	return filepath.Join(fs.basePath, filepath.Base(id))
}

// stagedExt returns a short, safe extension taken from the client file name.
func stagedExt(fileName string) string {
	fileName = strings.ReplaceAll(fileName, "\\", "/")
	ext := strings.ToLower(filepath.Ext(filepath.Base(fileName)))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
