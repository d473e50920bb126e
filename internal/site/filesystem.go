package site

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"updater/internal/updater"
)

// FileSystemSource serves file:// URLs, for update sites kept in a local or
// mounted directory:
//
//	<site root>/
//	  db.yaml.gz
//	  jars/foo.jar-20240101120000
type FileSystemSource struct{}

func NewFileSystemSource() *FileSystemSource {
	return &FileSystemSource{}
}

// Get copies the file named by rawURL to w.
func (s *FileSystemSource) Get(_ context.Context, rawURL string, w io.Writer) error {
	path, err := filePath(rawURL)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", updater.ErrNotFound, rawURL)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

// Put atomically writes size bytes from r to the file named by rawURL,
// creating parent directories as needed.
func (s *FileSystemSource) Put(_ context.Context, rawURL string, r io.Reader, size int64) error {
	path, err := filePath(rawURL)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return writeFile(path, r, size)
}

func filePath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("not a file url: %s", rawURL)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("file url with remote host: %s", rawURL)
	}
	return filepath.FromSlash(u.Path), nil
}

// writeFile writes data from r to destPath using atomic write (temp file + rename).
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

var _ updater.SiteSource = (*FileSystemSource)(nil)
