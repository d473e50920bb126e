package updater

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Service executes plans against update sites and the local installation.
// It owns no state besides its collaborators; the collection stays the
// single source of truth and is only mutated from the calling goroutine.
type Service struct {
	collection *Collection
	source     SiteSource
	codec      IndexCodec
	local      LocalFiles
	logger     Logger
	clock      Clock
}

// NewService creates a Service operating on collection.
func NewService(collection *Collection, source SiteSource, codec IndexCodec, local LocalFiles, logger Logger, clock Clock) *Service {
	return &Service{
		collection: collection,
		source:     source,
		codec:      codec,
		local:      local,
		logger:     logger,
		clock:      clock,
	}
}

func (s *Service) Collection() *Collection { return s.collection }

// Refresh fetches every site's index and scans the installation
// concurrently, then merges the results. It returns the merge diagnostics.
func (s *Service) Refresh(ctx context.Context) ([]string, error) {
	sites := s.collection.Sites().Sites()
	indexes := make([]*RemoteIndex, len(sites))
	var local []LocalFact

	g, gctx := errgroup.WithContext(ctx)
	for i, site := range sites {
		url := site.URL
		g.Go(func() error {
			index, err := s.fetchIndex(gctx, url)
			if err != nil {
				return fmt.Errorf("fetching index of update site %s: %w", site.Name, err)
			}
			indexes[i] = index
			return nil
		})
	}
	g.Go(func() error {
		facts, err := s.local.Scan(gctx)
		if err != nil {
			return fmt.Errorf("scanning installation: %w", err)
		}
		local = facts
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	remote := make(map[string]*RemoteIndex, len(sites))
	for i, site := range sites {
		remote[site.Name] = indexes[i]
	}
	diagnostics, err := s.collection.Merge(local, remote)
	if err != nil {
		return nil, fmt.Errorf("merging: %w", err)
	}
	s.collection.Sort()
	return diagnostics, nil
}

// fetchIndex downloads and decodes an index. A site without an index yet is
// treated as empty.
func (s *Service) fetchIndex(ctx context.Context, baseURL string) (*RemoteIndex, error) {
	var buf bytes.Buffer
	if err := s.source.Get(ctx, baseURL+IndexName, &buf); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("update site has no index", "url", baseURL)
			return &RemoteIndex{}, nil
		}
		return nil, err
	}
	index, err := s.codec.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}
	return index, nil
}
