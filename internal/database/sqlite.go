package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"updater/internal/database/migrations"
	"updater/internal/updater"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements updater.Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteStore opens the store at path, migrating its schema to the
// latest version. path can be a file path or ":memory:".
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrations.CheckDBMigrationStatus(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, path: path, now: time.Now}, nil
}

// OpenConnection opens and configures a SQLite connection. The pool is
// limited to one connection so ":memory:" databases are shared.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// SQLite leaves foreign keys off by default.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// Snapshot operations

// LoadSnapshot reads the saved snapshot, or returns nil if none was saved.
func (s *SQLiteStore) LoadSnapshot() (*updater.Snapshot, error) {
	ctx := context.Background()

	var savedAt time.Time
	err := s.db.QueryRowContext(ctx, "SELECT saved_at FROM snapshot_state WHERE id = 1").Scan(&savedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot state: %w", err)
	}

	snap := &updater.Snapshot{}
	if snap.Sites, err = s.loadSites(ctx); err != nil {
		return nil, err
	}
	positions, files, err := s.loadFiles(ctx)
	if err != nil {
		return nil, err
	}
	byPosition := make(map[int64]*updater.FileSnapshot, len(files))
	for i := range files {
		byPosition[positions[i]] = &files[i]
	}

	if err := s.loadVersions(ctx, byPosition); err != nil {
		return nil, err
	}
	if err := s.loadDependencies(ctx, byPosition); err != nil {
		return nil, err
	}
	if err := s.loadPlatforms(ctx, byPosition); err != nil {
		return nil, err
	}
	snap.Files = files
	return snap, nil
}

func (s *SQLiteStore) loadSites(ctx context.Context) ([]updater.UpdateSite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, url, ssh_host, upload_directory, timestamp
		FROM update_sites ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying update sites: %w", err)
	}
	defer rows.Close()

	var sites []updater.UpdateSite
	for rows.Next() {
		var site updater.UpdateSite
		if err := rows.Scan(&site.Name, &site.URL, &site.SSHHost, &site.UploadDirectory, &site.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning update site: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading update sites: %w", err)
	}
	return sites, nil
}

func (s *SQLiteStore) loadFiles(ctx context.Context) ([]int64, []updater.FileSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, filename, update_site, description, action, metadata_changed,
		       local_checksum, local_ts, current_checksum, current_ts
		FROM files ORDER BY position`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	var positions []int64
	var files []updater.FileSnapshot
	for rows.Next() {
		var (
			position        int64
			f               updater.FileSnapshot
			action          string
			localChecksum   sql.NullString
			localTimestamp  sql.NullInt64
			currentChecksum sql.NullString
			currentTs       sql.NullInt64
		)
		if err := rows.Scan(&position, &f.Filename, &f.UpdateSite, &f.Description, &action, &f.MetadataChanged,
			&localChecksum, &localTimestamp, &currentChecksum, &currentTs); err != nil {
			return nil, nil, fmt.Errorf("scanning file: %w", err)
		}
		if f.Action, err = updater.ParseAction(action); err != nil {
			return nil, nil, fmt.Errorf("file %s: %w", f.Filename, err)
		}
		f.Local = nullVersion(localChecksum, localTimestamp)
		f.Current = nullVersion(currentChecksum, currentTs)
		positions = append(positions, position)
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading files: %w", err)
	}
	return positions, files, nil
}

func (s *SQLiteStore) loadVersions(ctx context.Context, files map[int64]*updater.FileSnapshot) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_position, checksum, timestamp FROM file_versions ORDER BY file_position, seq`)
	if err != nil {
		return fmt.Errorf("querying file versions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var position int64
		var v updater.Version
		if err := rows.Scan(&position, &v.Checksum, &v.Timestamp); err != nil {
			return fmt.Errorf("scanning file version: %w", err)
		}
		if f := files[position]; f != nil {
			f.Previous = append(f.Previous, v)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading file versions: %w", err)
	}
	return nil
}

func (s *SQLiteStore) loadDependencies(ctx context.Context, files map[int64]*updater.FileSnapshot) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_position, filename, timestamp, overrides FROM file_dependencies ORDER BY file_position, seq`)
	if err != nil {
		return fmt.Errorf("querying dependencies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var position int64
		var d updater.Dependency
		if err := rows.Scan(&position, &d.Filename, &d.Timestamp, &d.Overrides); err != nil {
			return fmt.Errorf("scanning dependency: %w", err)
		}
		if f := files[position]; f != nil {
			f.Dependencies = append(f.Dependencies, d)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading dependencies: %w", err)
	}
	return nil
}

func (s *SQLiteStore) loadPlatforms(ctx context.Context, files map[int64]*updater.FileSnapshot) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_position, platform FROM file_platforms ORDER BY file_position, seq`)
	if err != nil {
		return fmt.Errorf("querying platforms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var position int64
		var platform string
		if err := rows.Scan(&position, &platform); err != nil {
			return fmt.Errorf("scanning platform: %w", err)
		}
		if f := files[position]; f != nil {
			f.Platforms = append(f.Platforms, platform)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading platforms: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the stored snapshot in one transaction.
func (s *SQLiteStore) SaveSnapshot(snap *updater.Snapshot) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	// Dependent rows go with their file through ON DELETE CASCADE.
	for _, stmt := range []string{"DELETE FROM files", "DELETE FROM update_sites"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clearing snapshot: %w", err)
		}
	}

	for i, site := range snap.Sites {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO update_sites (position, name, url, ssh_host, upload_directory, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)`,
			i, site.Name, site.URL, site.SSHHost, site.UploadDirectory, site.Timestamp)
		if err != nil {
			return fmt.Errorf("inserting update site %s: %w", site.Name, err)
		}
	}

	for i, f := range snap.Files {
		if err := insertFile(ctx, tx, int64(i), &f); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot_state (id, saved_at) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET saved_at = excluded.saved_at`, s.now())
	if err != nil {
		return fmt.Errorf("recording snapshot state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

func insertFile(ctx context.Context, tx *sql.Tx, position int64, f *updater.FileSnapshot) error {
	localChecksum, localTimestamp := versionColumns(f.Local)
	currentChecksum, currentTimestamp := versionColumns(f.Current)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO files (position, filename, update_site, description, action, metadata_changed,
		                   local_checksum, local_ts, current_checksum, current_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		position, f.Filename, f.UpdateSite, f.Description, f.Action.String(), f.MetadataChanged,
		localChecksum, localTimestamp, currentChecksum, currentTimestamp)
	if err != nil {
		return fmt.Errorf("inserting file %s: %w", f.Filename, err)
	}

	for seq, v := range f.Previous {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO file_versions (file_position, seq, checksum, timestamp) VALUES (?, ?, ?, ?)`,
			position, seq, v.Checksum, v.Timestamp)
		if err != nil {
			return fmt.Errorf("inserting version of %s: %w", f.Filename, err)
		}
	}
	for seq, d := range f.Dependencies {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO file_dependencies (file_position, seq, filename, timestamp, overrides) VALUES (?, ?, ?, ?, ?)`,
			position, seq, d.Filename, d.Timestamp, d.Overrides)
		if err != nil {
			return fmt.Errorf("inserting dependency of %s: %w", f.Filename, err)
		}
	}
	for seq, p := range f.Platforms {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO file_platforms (file_position, seq, platform) VALUES (?, ?, ?)`,
			position, seq, p)
		if err != nil {
			return fmt.Errorf("inserting platform of %s: %w", f.Filename, err)
		}
	}
	return nil
}

func versionColumns(v *updater.Version) (sql.NullString, sql.NullInt64) {
	if v == nil {
		return sql.NullString{}, sql.NullInt64{}
	}
	return sql.NullString{String: v.Checksum, Valid: true}, sql.NullInt64{Int64: v.Timestamp, Valid: true}
}

func nullVersion(checksum sql.NullString, timestamp sql.NullInt64) *updater.Version {
	if !checksum.Valid {
		return nil
	}
	return &updater.Version{Checksum: checksum.String, Timestamp: timestamp.Int64}
}

// Operation tracking

func (s *SQLiteStore) CreateOperation(op *updater.Operation) error {
	res, err := s.db.ExecContext(context.Background(), `
		INSERT INTO operations (operation, parameters, status, started_at) VALUES (?, ?, ?, ?)`,
		op.Operation, op.Parameters, op.Status, op.StartedAt)
	if err != nil {
		return fmt.Errorf("creating operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading operation id: %w", err)
	}
	op.ID = id
	return nil
}

func (s *SQLiteStore) FinishOperation(op *updater.Operation) error {
	if !op.Persisted() {
		return fmt.Errorf("finishing operation %s: not recorded", op.Operation)
	}
	_, err := s.db.ExecContext(context.Background(), `
		UPDATE operations SET status = ?, finished_at = ? WHERE id = ?`,
		op.Status, op.FinishedAt, op.ID)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListOperations(limit int) ([]*updater.Operation, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT id, operation, parameters, status, started_at, finished_at
		FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*updater.Operation
	for rows.Next() {
		op := &updater.Operation{}
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.Status, &op.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if finished.Valid {
			op.FinishedAt = finished.Time
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteStore) Path() string {
	return s.path
}

// BackupTo writes a complete copy of the database to destPath.
func (s *SQLiteStore) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteStore implements updater.Store interface
var _ updater.Store = (*SQLiteStore)(nil)
