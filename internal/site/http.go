package site

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"updater/internal/config"
	"updater/internal/updater"
)

// HTTPSource downloads from http(s) update sites, retrying transient
// failures. Public sites are read-only; uploads need another scheme.
type HTTPSource struct {
	client *retryablehttp.Client
}

// NewHTTPSource creates an HTTPSource logging retries to logger.
func NewHTTPSource(cfg config.HTTPConfig, logger updater.Logger) *HTTPSource {
	client := retryablehttp.NewClient()
	client.Logger = logger
	if cfg.RetryMax > 0 {
		client.RetryMax = cfg.RetryMax
	}
	if cfg.TimeoutSeconds > 0 {
		client.HTTPClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &HTTPSource{client: client}
}

// Get streams the resource at url to w.
func (s *HTTPSource) Get(ctx context.Context, url string, w io.Writer) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", updater.ErrNotFound, url)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("reading %s: %w", url, err)
	}
	return nil
}

// Put always fails; http sites are uploaded to through their upload directory.
func (s *HTTPSource) Put(_ context.Context, url string, _ io.Reader, _ int64) error {
	return fmt.Errorf("uploading over http is not supported: %s", url)
}

var _ updater.SiteSource = (*HTTPSource)(nil)
