package site

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"updater/internal/updater"
)

// MemorySource is an in-memory SiteSource keyed by URL. It serves the
// memory:// scheme and is useful for testing.
// This implementation is safe for concurrent use.
type MemorySource struct {
	objects map[string][]byte
	mu      sync.RWMutex
}

func NewMemorySource() *MemorySource {
	return &MemorySource{objects: make(map[string][]byte)}
}

// Get writes the object stored at url to w.
func (m *MemorySource) Get(_ context.Context, url string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[url]
	if !ok {
		return fmt.Errorf("%w: %s", updater.ErrNotFound, url)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	return nil
}

// Put stores size bytes from r at url, replacing any existing object.
func (m *MemorySource) Put(_ context.Context, url string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[url] = data
	return nil
}

// URLs returns the stored object URLs. Use in tests.
func (m *MemorySource) URLs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	urls := make([]string, 0, len(m.objects))
	for url := range m.objects {
		urls = append(urls, url)
	}
	return urls
}

var _ updater.SiteSource = (*MemorySource)(nil)
