// Package fsutil reads query files and writes transcripts for the CLI.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// MaxReadBytes bounds ReadFileScoped.
const MaxReadBytes = 1 << 20

// ReadFileScoped reads a file through a root opened at its directory, so the
// name cannot walk out of that directory.
func ReadFileScoped(path string) ([]byte, error) {
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid file path: %q", path)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	file, err := root.Open(base)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxReadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxReadBytes {
		return nil, fmt.Errorf("%s is larger than %d bytes", path, MaxReadBytes)
	}
	return data, nil
}

// WriteFileAtomic replaces path with data. Readers see either the old or the
// new content. Missing parent directories are created.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return atomicWriteFile(path, data, perm)
}
