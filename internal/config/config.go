package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultScanDirs are the installation subdirectories tracked by default.
var DefaultScanDirs = []string{"plugins", "jars", "scripts", "macros", "lib", "retro", "misc"}

// Config represents the main configuration for the updater.
type Config struct {
	InstallID      string           `toml:"install_id"`
	BaseDir        string           `toml:"base_dir"`
	LogDir         string           `toml:"log_dir"`
	Root           string           `toml:"root"`             // installation root
	Platform       string           `toml:"platform,omitempty"` // empty: detect
	VersionHistory string           `toml:"version_history"`  // "full" (default) or "latest"
	PrimarySite    SiteConfig       `toml:"primary_site"`
	Database       DatabaseConfig   `toml:"database"`
	Filesystem     FilesystemConfig `toml:"filesystem"`
	HTTP           HTTPConfig       `toml:"http"`
	S3             S3Config         `toml:"s3"`
}

// SiteConfig overrides the update site seeded into a fresh registry.
// Empty fields keep the built-in defaults.
type SiteConfig struct {
	Name            string `toml:"name,omitempty"`
	URL             string `toml:"url,omitempty"`
	SSHHost         string `toml:"ssh_host,omitempty"`
	UploadDirectory string `toml:"upload_directory,omitempty"`
}

// FilesystemConfig holds installation scanning settings.
type FilesystemConfig struct {
	ScanDirs []string `toml:"scan_dirs"`
	Ignore   []string `toml:"ignore"`
}

// DatabaseConfig represents configuration for the collection store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// HTTPConfig tunes downloads from http(s) update sites.
type HTTPConfig struct {
	RetryMax       int `toml:"retry_max"`
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// S3Config configures access to s3:// update sites. Without static keys
// the default AWS credential chain is used.
type S3Config struct {
	Region          string `toml:"region,omitempty"`
	Endpoint        string `toml:"endpoint,omitempty"` // for S3-compatible stores
	AccessKeyID     string `toml:"access_key_id,omitempty"`
	SecretAccessKey string `toml:"secret_access_key,omitempty"`
}

// NewConfig creates a new Config with the provided values and default settings.
func NewConfig(installID, baseDir, root string) *Config {
	return &Config{
		InstallID:      installID,
		BaseDir:        baseDir,
		LogDir:         filepath.Join(baseDir, "log"),
		Root:           root,
		VersionHistory: "full",
		Database:       DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Filesystem: FilesystemConfig{
			ScanDirs: append([]string(nil), DefaultScanDirs...),
			Ignore:   []string{"*.tmp", ".DS_Store"},
		},
		HTTP: HTTPConfig{RetryMax: 3, TimeoutSeconds: 60},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
// It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
