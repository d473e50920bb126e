package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		InstallID:      "install-abc",
		BaseDir:        "/home/user/.local/share/updater",
		LogDir:         "/home/user/.local/share/updater/log",
		Root:           "/opt/Fiji.app",
		Platform:       "linux64",
		VersionHistory: "latest",
		PrimarySite: SiteConfig{
			Name:            "ImageJ",
			URL:             "https://mirror.example.org/imagej/",
			UploadDirectory: "s3://sites/imagej/",
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/updater/db"},
		Filesystem: FilesystemConfig{
			ScanDirs: []string{"plugins", "jars"},
			Ignore:   []string{"*.log", ".git"},
		},
		HTTP: HTTPConfig{RetryMax: 5, TimeoutSeconds: 30},
		S3:   S3Config{Region: "eu-central-1", Endpoint: "http://localhost:9000"},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.InstallID != original.InstallID {
		t.Errorf("InstallID = %q, want %q", got.InstallID, original.InstallID)
	}
	if got.Root != original.Root {
		t.Errorf("Root = %q, want %q", got.Root, original.Root)
	}
	if got.Platform != "linux64" {
		t.Errorf("Platform = %q, want %q", got.Platform, "linux64")
	}
	if got.VersionHistory != "latest" {
		t.Errorf("VersionHistory = %q, want %q", got.VersionHistory, "latest")
	}
	if got.PrimarySite.URL != original.PrimarySite.URL {
		t.Errorf("PrimarySite.URL = %q, want %q", got.PrimarySite.URL, original.PrimarySite.URL)
	}
	if got.PrimarySite.UploadDirectory != "s3://sites/imagej/" {
		t.Errorf("PrimarySite.UploadDirectory = %q, want %q", got.PrimarySite.UploadDirectory, "s3://sites/imagej/")
	}
	if got.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want %q", got.Database.Type, "sqlite")
	}
	if len(got.Filesystem.ScanDirs) != 2 {
		t.Fatalf("len(Filesystem.ScanDirs) = %d, want 2", len(got.Filesystem.ScanDirs))
	}
	if len(got.Filesystem.Ignore) != 2 {
		t.Fatalf("len(Filesystem.Ignore) = %d, want 2", len(got.Filesystem.Ignore))
	}
	if got.HTTP.RetryMax != 5 {
		t.Errorf("HTTP.RetryMax = %d, want %d", got.HTTP.RetryMax, 5)
	}
	if got.S3.Endpoint != original.S3.Endpoint {
		t.Errorf("S3.Endpoint = %q, want %q", got.S3.Endpoint, original.S3.Endpoint)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("install-1", "/data/updater", "/opt/Fiji.app")

	if cfg.InstallID != "install-1" {
		t.Errorf("InstallID = %q, want %q", cfg.InstallID, "install-1")
	}
	if cfg.LogDir != "/data/updater/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/updater/log")
	}
	if cfg.Root != "/opt/Fiji.app" {
		t.Errorf("Root = %q, want %q", cfg.Root, "/opt/Fiji.app")
	}
	if cfg.Database.DataDir != "/data/updater/db" {
		t.Errorf("Database.DataDir = %q, want %q", cfg.Database.DataDir, "/data/updater/db")
	}
	if cfg.VersionHistory != "full" {
		t.Errorf("VersionHistory = %q, want %q", cfg.VersionHistory, "full")
	}
	if len(cfg.Filesystem.ScanDirs) != len(DefaultScanDirs) {
		t.Errorf("len(ScanDirs) = %d, want %d", len(cfg.Filesystem.ScanDirs), len(DefaultScanDirs))
	}

	cfg.Filesystem.ScanDirs[0] = "changed"
	if DefaultScanDirs[0] != "plugins" {
		t.Error("NewConfig must not share DefaultScanDirs")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "updater.toml")
		cfg := NewConfig("i1", dir, dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "updater.toml")
		cfg := NewConfig("i1", dir, dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "updater.toml")
		cfg := NewConfig("read-test", dir, dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.InstallID != "read-test" {
			t.Errorf("InstallID = %q, want %q", got.InstallID, "read-test")
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/updater.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
