package updater

import (
	"context"
	"io"
)

// IndexName is the object name of a site's index, relative to its URL.
const IndexName = "db.yaml.gz"

// SiteSource transfers bytes to and from update sites. Implementations
// return an error matching ErrNotFound for objects that do not exist.
type SiteSource interface {
	// Get streams the object at url into w.
	Get(ctx context.Context, url string, w io.Writer) error

	// Put stores size bytes read from r at url.
	Put(ctx context.Context, url string, r io.Reader, size int64) error
}

// IndexCodec converts site indexes to and from their stored encoding.
type IndexCodec interface {
	Decode(r io.Reader) (*RemoteIndex, error)
	Encode(w io.Writer, index *RemoteIndex) error
}

// LocalFiles is the installation the collection tracks. Filenames are
// slash-separated and relative to the installation root.
type LocalFiles interface {
	// Scan reports every tracked file present in the installation.
	Scan(ctx context.Context) ([]LocalFact, error)

	// Open returns the content of an installed file and its size.
	Open(filename string) (io.ReadCloser, int64, error)

	// Write installs the content read from r as filename, replacing any
	// existing copy only if the content hashes to checksum. A mismatch
	// yields a *ChecksumMismatchError and leaves the installation as is.
	Write(filename string, r io.Reader, checksum string) error

	// Remove deletes an installed file.
	Remove(filename string) error
}

// Store persists collection snapshots and the history of operations.
type Store interface {
	// LoadSnapshot returns the last saved snapshot, or nil if none was saved.
	LoadSnapshot() (*Snapshot, error)

	// SaveSnapshot replaces the saved snapshot.
	SaveSnapshot(s *Snapshot) error

	// CreateOperation records the start of an operation and assigns its ID.
	CreateOperation(op *Operation) error

	// FinishOperation records the outcome of an operation.
	FinishOperation(op *Operation) error

	// ListOperations returns the most recent operations, newest first.
	ListOperations(limit int) ([]*Operation, error)

	Close() error
}
