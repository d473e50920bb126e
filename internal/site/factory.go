package site

import (
	"context"
	"fmt"

	"updater/internal/config"
	"updater/internal/updater"
)

// NewSourceFromConfig creates the SiteSource used by the app: a router over
// file, http(s) and memory sites, plus s3 when it is configured.
func NewSourceFromConfig(ctx context.Context, cfg *config.Config, logger updater.Logger) (updater.SiteSource, error) {
	r := NewRouter()
	r.Handle(NewFileSystemSource(), "file")
	r.Handle(NewHTTPSource(cfg.HTTP, logger), "http", "https")
	r.Handle(NewMemorySource(), "memory")

	if cfg.S3.Region != "" || cfg.S3.Endpoint != "" {
		s3Source, err := NewS3Source(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("creating s3 source: %w", err)
		}
		r.Handle(s3Source, "s3")
	}
	return r, nil
}
