package database

import (
	"path/filepath"
	"testing"
	"time"

	"updater/internal/updater"
)

// newTestStore creates a new in-memory store with the schema applied.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func testSnapshot() *updater.Snapshot {
	return &updater.Snapshot{
		Sites: []updater.UpdateSite{
			{Name: "ImageJ", URL: "https://update.imagej.net/", Timestamp: 20240101000000},
			{Name: "Fiji", URL: "https://update.fiji.sc/", UploadDirectory: "/var/www/fiji/", SSHHost: "fiji.sc"},
		},
		Files: []updater.FileSnapshot{
			{
				Filename:    "plugins/Tool.jar",
				UpdateSite:  "Fiji",
				Description: "A tool",
				Platforms:   []string{"linux64", "win64"},
				Local:       &updater.Version{Checksum: "l1", Timestamp: 10},
				Current:     &updater.Version{Checksum: "c2", Timestamp: 20},
				Previous:    []updater.Version{{Checksum: "l1", Timestamp: 10}, {Checksum: "l0", Timestamp: 5}},
				Dependencies: []updater.Dependency{
					{Filename: "jars/lib.jar", Timestamp: 15},
					{Filename: "plugins/Old.jar", Overrides: true},
				},
				Action:          updater.ActionUpdate,
				MetadataChanged: true,
			},
			{
				Filename: "jars/lib.jar",
				Local:    &updater.Version{Checksum: "x", Timestamp: 3},
			},
		},
	}
}

func TestSQLiteStore_LoadSnapshot(t *testing.T) {
	t.Run("returns nil when nothing saved", func(t *testing.T) {
		store := newTestStore(t)

		snap, err := store.LoadSnapshot()
		if err != nil {
			t.Fatalf("LoadSnapshot() error = %v", err)
		}
		if snap != nil {
			t.Errorf("LoadSnapshot() = %+v, want nil", snap)
		}
	})

	t.Run("round trips a saved snapshot", func(t *testing.T) {
		store := newTestStore(t)
		want := testSnapshot()

		if err := store.SaveSnapshot(want); err != nil {
			t.Fatalf("SaveSnapshot() error = %v", err)
		}
		got, err := store.LoadSnapshot()
		if err != nil {
			t.Fatalf("LoadSnapshot() error = %v", err)
		}

		if len(got.Sites) != 2 || got.Sites[0].Name != "ImageJ" || got.Sites[1].Name != "Fiji" {
			t.Fatalf("Sites = %+v, want ImageJ then Fiji", got.Sites)
		}
		if got.Sites[1].UploadDirectory != "/var/www/fiji/" || got.Sites[1].SSHHost != "fiji.sc" {
			t.Errorf("Fiji site = %+v", got.Sites[1])
		}
		if got.Sites[0].Timestamp != 20240101000000 {
			t.Errorf("ImageJ timestamp = %d", got.Sites[0].Timestamp)
		}

		if len(got.Files) != 2 || got.Files[0].Filename != "plugins/Tool.jar" {
			t.Fatalf("Files = %+v, want Tool.jar first", got.Files)
		}
		tool := got.Files[0]
		if tool.Action != updater.ActionUpdate || !tool.MetadataChanged {
			t.Errorf("Action = %v, MetadataChanged = %v", tool.Action, tool.MetadataChanged)
		}
		if tool.Local == nil || *tool.Local != (updater.Version{Checksum: "l1", Timestamp: 10}) {
			t.Errorf("Local = %+v", tool.Local)
		}
		if tool.Current == nil || *tool.Current != (updater.Version{Checksum: "c2", Timestamp: 20}) {
			t.Errorf("Current = %+v", tool.Current)
		}
		if len(tool.Previous) != 2 || tool.Previous[1].Checksum != "l0" {
			t.Errorf("Previous = %+v", tool.Previous)
		}
		if len(tool.Dependencies) != 2 || !tool.Dependencies[1].Overrides || tool.Dependencies[0].Timestamp != 15 {
			t.Errorf("Dependencies = %+v", tool.Dependencies)
		}
		if len(tool.Platforms) != 2 || tool.Platforms[1] != "win64" {
			t.Errorf("Platforms = %v", tool.Platforms)
		}

		lib := got.Files[1]
		if lib.Current != nil || lib.UpdateSite != "" || lib.Action != updater.ActionNone {
			t.Errorf("lib = %+v", lib)
		}
	})

	t.Run("save replaces previous snapshot", func(t *testing.T) {
		store := newTestStore(t)

		if err := store.SaveSnapshot(testSnapshot()); err != nil {
			t.Fatalf("SaveSnapshot() error = %v", err)
		}
		smaller := &updater.Snapshot{
			Sites: []updater.UpdateSite{{Name: "ImageJ", URL: "https://update.imagej.net/"}},
			Files: []updater.FileSnapshot{{Filename: "macros/m.ijm"}},
		}
		if err := store.SaveSnapshot(smaller); err != nil {
			t.Fatalf("second SaveSnapshot() error = %v", err)
		}

		got, err := store.LoadSnapshot()
		if err != nil {
			t.Fatalf("LoadSnapshot() error = %v", err)
		}
		if len(got.Sites) != 1 || len(got.Files) != 1 || got.Files[0].Filename != "macros/m.ijm" {
			t.Errorf("LoadSnapshot() = %+v, want only the second snapshot", got)
		}
		if len(got.Files[0].Previous) != 0 || len(got.Files[0].Dependencies) != 0 {
			t.Errorf("stale child rows leaked: %+v", got.Files[0])
		}
	})

	t.Run("failed save keeps previous snapshot", func(t *testing.T) {
		store := newTestStore(t)

		if err := store.SaveSnapshot(testSnapshot()); err != nil {
			t.Fatalf("SaveSnapshot() error = %v", err)
		}
		dup := &updater.Snapshot{Files: []updater.FileSnapshot{{Filename: "a"}, {Filename: "a"}}}
		if err := store.SaveSnapshot(dup); err == nil {
			t.Fatal("SaveSnapshot() expected error for duplicate filenames")
		}

		got, err := store.LoadSnapshot()
		if err != nil {
			t.Fatalf("LoadSnapshot() error = %v", err)
		}
		if len(got.Files) != 2 {
			t.Errorf("len(Files) = %d, want 2 from the first save", len(got.Files))
		}
	})
}

func TestSQLiteStore_Operations(t *testing.T) {
	t.Run("create and list operations", func(t *testing.T) {
		store := newTestStore(t)
		started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

		op1 := updater.NewOperation("refresh", "", started)
		if err := store.CreateOperation(op1); err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}
		if !op1.Persisted() {
			t.Error("operation ID should be non-zero")
		}
		op2 := updater.NewOperation("apply", "", started.Add(time.Minute))
		if err := store.CreateOperation(op2); err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}

		ops, err := store.ListOperations(10)
		if err != nil {
			t.Fatalf("ListOperations() error = %v", err)
		}
		if len(ops) != 2 {
			t.Fatalf("got %d operations, want 2", len(ops))
		}
		// Newest first
		if ops[0].ID != op2.ID || ops[0].Operation != "apply" {
			t.Errorf("ops[0] = %+v, want apply", ops[0])
		}
		if !ops[1].StartedAt.Equal(started) {
			t.Errorf("StartedAt = %v, want %v", ops[1].StartedAt, started)
		}
		if ops[0].Status != updater.OperationRunning || !ops[0].FinishedAt.IsZero() {
			t.Errorf("unfinished op = %+v", ops[0])
		}
	})

	t.Run("finish operation sets status and time", func(t *testing.T) {
		store := newTestStore(t)
		started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

		op := updater.NewOperation("apply", "--force", started)
		if err := store.CreateOperation(op); err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}
		op.Finish(nil, started.Add(time.Second))
		if err := store.FinishOperation(op); err != nil {
			t.Fatalf("FinishOperation() error = %v", err)
		}

		ops, _ := store.ListOperations(1)
		if ops[0].Status != updater.OperationSuccess {
			t.Errorf("Status = %q, want %q", ops[0].Status, updater.OperationSuccess)
		}
		if ops[0].FinishedAt.IsZero() {
			t.Error("FinishedAt should be set")
		}
		if ops[0].Parameters != "--force" {
			t.Errorf("Parameters = %q", ops[0].Parameters)
		}
	})

	t.Run("finishing an unrecorded operation fails", func(t *testing.T) {
		store := newTestStore(t)
		op := updater.NewOperation("apply", "", time.Now())
		if err := store.FinishOperation(op); err == nil {
			t.Error("FinishOperation() expected error")
		}
	})
}

func TestSQLiteStore_BackupTo(t *testing.T) {
	store := newTestStore(t)
	if err := store.SaveSnapshot(testSnapshot()); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	destPath := filepath.Join(t.TempDir(), "backup.db")
	if err := store.BackupTo(destPath); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	backup, err := NewSQLiteStore(destPath)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer backup.Close()

	snap, err := backup.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if snap == nil || len(snap.Files) != 2 {
		t.Errorf("backup snapshot = %+v, want 2 files", snap)
	}
}
