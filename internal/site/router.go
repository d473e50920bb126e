package site

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"updater/internal/updater"
)

// Router dispatches to a SiteSource by URL scheme.
type Router struct {
	sources map[string]updater.SiteSource
}

func NewRouter() *Router {
	return &Router{sources: make(map[string]updater.SiteSource)}
}

// Handle registers source for the given schemes.
func (r *Router) Handle(source updater.SiteSource, schemes ...string) {
	for _, scheme := range schemes {
		r.sources[scheme] = source
	}
}

func (r *Router) Get(ctx context.Context, rawURL string, w io.Writer) error {
	source, err := r.route(rawURL)
	if err != nil {
		return err
	}
	return source.Get(ctx, rawURL, w)
}

func (r *Router) Put(ctx context.Context, rawURL string, body io.Reader, size int64) error {
	source, err := r.route(rawURL)
	if err != nil {
		return err
	}
	return source.Put(ctx, rawURL, body, size)
}

func (r *Router) route(rawURL string) (updater.SiteSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}
	source, ok := r.sources[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported url scheme %q: %s", u.Scheme, rawURL)
	}
	return source, nil
}

var _ updater.SiteSource = (*Router)(nil)
