package testutil

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"updater/internal/updater"
)

type memoryFile struct {
	content   []byte
	timestamp int64
}

// MemoryLocalFiles is an in-memory installation for testing. Written files
// get the timestamp set with SetTimestamp, or 0.
type MemoryLocalFiles struct {
	mu        sync.Mutex
	files     map[string]*memoryFile
	timestamp int64
	failWrite map[string]error
}

// NewMemoryLocalFiles creates an empty installation.
func NewMemoryLocalFiles() *MemoryLocalFiles {
	return &MemoryLocalFiles{
		files:     make(map[string]*memoryFile),
		failWrite: make(map[string]error),
	}
}

// AddFile installs content as filename with the given timestamp.
func (m *MemoryLocalFiles) AddFile(filename string, content []byte, timestamp int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filename] = &memoryFile{content: bytes.Clone(content), timestamp: timestamp}
}

// SetTimestamp sets the timestamp given to files installed by Write.
func (m *MemoryLocalFiles) SetTimestamp(ts int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timestamp = ts
}

// FailWrite makes every Write of filename return err.
func (m *MemoryLocalFiles) FailWrite(filename string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite[filename] = err
}

// Content returns the installed content of filename.
func (m *MemoryLocalFiles) Content(filename string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[filename]
	if !ok {
		return nil, false
	}
	return bytes.Clone(f.content), true
}

func (m *MemoryLocalFiles) Scan(ctx context.Context) ([]updater.LocalFact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	facts := make([]updater.LocalFact, 0, len(m.files))
	for name, f := range m.files {
		facts = append(facts, updater.LocalFact{
			Filename:  name,
			Checksum:  SHA256Hex(f.content),
			Timestamp: f.timestamp,
		})
	}
	sort.Slice(facts, func(i, j int) bool { return facts[i].Filename < facts[j].Filename })
	return facts, nil
}

func (m *MemoryLocalFiles) Open(filename string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[filename]
	if !ok {
		return nil, 0, &updater.NotFoundError{Kind: "file", Name: filename}
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(f.content))), int64(len(f.content)), nil
}

func (m *MemoryLocalFiles) Write(filename string, r io.Reader, checksum string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite[filename]; err != nil {
		return err
	}
	if actual := SHA256Hex(data); actual != checksum {
		return &updater.ChecksumMismatchError{Filename: filename, Expected: checksum, Actual: actual}
	}
	m.files[filename] = &memoryFile{content: data, timestamp: m.timestamp}
	return nil
}

func (m *MemoryLocalFiles) Remove(filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, filename)
	return nil
}

// Compile-time check that MemoryLocalFiles implements updater.LocalFiles
var _ updater.LocalFiles = (*MemoryLocalFiles)(nil)
