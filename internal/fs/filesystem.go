package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"updater/internal/updater"
)

// IgnoreFileName is read from the installation root for extra ignore patterns.
const IgnoreFileName = ".updaterignore"

// OSLocalFiles is the installation on the real filesystem. Only files below
// the configured scan directories are tracked.
type OSLocalFiles struct {
	root     string
	scanDirs []string
	ignore   *IgnoreMatcher
	workers  int
}

// NewOSLocalFiles tracks the files under root/<dir> for each of scanDirs.
// Patterns from the root's ignore file are added to ignore.
func NewOSLocalFiles(root string, scanDirs, ignore []string) (*OSLocalFiles, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving installation root: %w", err)
	}
	extra, err := ParseIgnoreFile(filepath.Join(absRoot, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns := append(append([]string(nil), ignore...), extra...)
	return &OSLocalFiles{
		root:     absRoot,
		scanDirs: scanDirs,
		ignore:   NewIgnoreMatcher(patterns),
		workers:  runtime.NumCPU(),
	}, nil
}

// Root returns the absolute installation root.
func (l *OSLocalFiles) Root() string {
	return l.root
}

// Scan walks the scan directories and checksums every regular file. The
// result is sorted by filename.
func (l *OSLocalFiles) Scan(ctx context.Context) ([]updater.LocalFact, error) {
	type found struct {
		filename string
		info     fs.FileInfo
	}
	var files []found

	for _, dir := range l.scanDirs {
		base := filepath.Join(l.root, filepath.FromSlash(dir))
		err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if p == base && errors.Is(err, fs.ErrNotExist) {
					return filepath.SkipDir
				}
				return err
			}
			rel, err := filepath.Rel(l.root, p)
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != base && l.ignore.Match(rel, true) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || l.ignore.Match(rel, false) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return fmt.Errorf("stat %s: %w", p, err)
			}
			files = append(files, found{filename: filepath.ToSlash(rel), info: info})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
	}

	facts := make([]updater.LocalFact, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sum, err := checksumFile(filepath.Join(l.root, filepath.FromSlash(f.filename)))
			if err != nil {
				return err
			}
			facts[i] = updater.LocalFact{
				Filename:  f.filename,
				Checksum:  sum,
				Timestamp: updater.Timestamp(f.info.ModTime()),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(facts, func(i, j int) bool { return facts[i].Filename < facts[j].Filename })
	return facts, nil
}

// Open opens an installed file for reading.
func (l *OSLocalFiles) Open(filename string) (io.ReadCloser, int64, error) {
	p, err := l.path(filename)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, &updater.NotFoundError{Kind: "file", Name: filename}
		}
		return nil, 0, fmt.Errorf("opening %s: %w", filename, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", filename, err)
	}
	return f, info.Size(), nil
}

// Write stages the content in a temp file next to the destination and
// renames it into place once the checksum matches.
func (l *OSLocalFiles) Write(filename string, r io.Reader, checksum string) error {
	p, err := l.path(filename)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), r); err != nil {
		return fmt.Errorf("writing %s: %w", filename, err)
	}
	actual := hex.EncodeToString(h.Sum(nil))
	if actual != checksum {
		return &updater.ChecksumMismatchError{Filename: filename, Expected: checksum, Actual: actual}
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", filename, err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	committed = true
	return nil
}

// Remove deletes an installed file. Removing a missing file is not an error.
func (l *OSLocalFiles) Remove(filename string) error {
	p, err := l.path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", filename, err)
	}
	return nil
}

// path maps a slash-separated filename to a path inside the root, refusing
// names that escape it.
func (l *OSLocalFiles) path(filename string) (string, error) {
	clean := path.Clean(filename)
	if filename == "" || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// Checksum returns the hex SHA-256 of the content read from r.
func Checksum(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func checksumFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", p, err)
	}
	defer f.Close()
	sum, err := Checksum(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", p, err)
	}
	return sum, nil
}

// Compile-time check that OSLocalFiles implements updater.LocalFiles
var _ updater.LocalFiles = (*OSLocalFiles)(nil)
