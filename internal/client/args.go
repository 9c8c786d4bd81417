package client

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultMaxFileSize matches the server's default MAX_FILE_SIZE.
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// audioExtensions are the formats the transcription backends accept.
var audioExtensions = map[string]bool{
	".flac": true,
	".m4a":  true,
	".mp3":  true,
	".mp4":  true,
	".mpeg": true,
	".mpga": true,
	".ogg":  true,
	".wav":  true,
	".webm": true,
}

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// AudioFile is a local recording that passed client-side checks.
type AudioFile struct {
	Path string
	Name string
	Size int64
}

// IsAudio reports whether name carries a supported audio extension.
func IsAudio(name string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

// ParseArgs resolves args into audio files, expanding directories to the
// audio files they contain. Files larger than maxSize are rejected here so
// they are never sent.
func ParseArgs(args []string, maxSize int64) ([]AudioFile, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no files provided"}
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	var out []AudioFile
	seen := make(map[string]bool)

	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}

		if info.IsDir() {
			files, err := collectDir(p, maxSize)
			if err != nil {
				return nil, err
			}
			if len(files) == 0 {
				return nil, &ValidationError{Arg: raw, Cause: "directory contains no audio files"}
			}
			for _, f := range files {
				if !seen[f.Path] {
					seen[f.Path] = true
					out = append(out, f)
				}
			}
			continue
		}

		f, err := checkFile(raw, p, info, maxSize)
		if err != nil {
			return nil, err
		}
		if !seen[f.Path] {
			seen[f.Path] = true
			out = append(out, f)
		}
	}

	return out, nil
}

func checkFile(raw, path string, info fs.FileInfo, maxSize int64) (AudioFile, error) {
	if !info.Mode().IsRegular() {
		return AudioFile{}, &ValidationError{Arg: raw, Cause: "not a regular file"}
	}
	if !IsAudio(info.Name()) {
		return AudioFile{}, &ValidationError{Arg: raw, Cause: "unsupported audio format"}
	}
	if info.Size() == 0 {
		return AudioFile{}, &ValidationError{Arg: raw, Cause: "file is empty"}
	}
	if info.Size() > maxSize {
		return AudioFile{}, &ValidationError{
			Arg:   raw,
			Cause: fmt.Sprintf("file is %d bytes, limit is %d", info.Size(), maxSize),
		}
	}
	return AudioFile{Path: path, Name: info.Name(), Size: info.Size()}, nil
}

// collectDir walks root and returns its audio files in lexical order.
// Non-audio files and hidden entries are skipped; an oversized audio file
// fails the whole directory.
func collectDir(root string, maxSize int64) ([]AudioFile, error) {
	var files []AudioFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsAudio(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		f, err := checkFile(path, path, info, maxSize)
		if err != nil {
			return err
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			return nil, err
		}
		return nil, &ValidationError{Arg: root, Cause: "failed to read directory"}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
