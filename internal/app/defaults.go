package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - UPDATER_CONFIG_PATH: config file location (default: ~/.config/updater.toml)
//   - UPDATER_HOME: base directory for updater data (default: ~/.local/share/updater)
func GetDefaults() (map[string]string, error) {
	configPath, err := envOrHome("UPDATER_CONFIG_PATH", ".config", "updater.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := envOrHome("UPDATER_HOME", ".local", "share", "updater")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"db_dir":      filepath.Join(baseDir, "db"),
	}, nil
}

// envOrHome returns the value of env if set, else the path elems joined
// below the user's home directory.
func envOrHome(env string, elems ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elems...)...), nil
}
