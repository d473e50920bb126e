package database

import (
	"fmt"
	"os"
	"path/filepath"

	"updater/internal/config"
	"updater/internal/updater"
)

// NewStoreFromConfig creates a Store implementation based on the database config type.
func NewStoreFromConfig(cfg config.DatabaseConfig, installID string) (updater.Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if installID == "" {
			return nil, fmt.Errorf("install_id required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return openStore(filepath.Join(cfg.DataDir, installID+".db"))
	case "memory":
		return openStore(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

func openStore(path string) (updater.Store, error) {
	store, err := NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	return store, nil
}
