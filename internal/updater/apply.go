package updater

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
)

// FileFailure describes a file whose action could not be executed.
type FileFailure struct {
	Filename string
	Action   Action
	Err      error
}

func (f FileFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Action, f.Filename, f.Err)
}

// ApplyResult reports what Apply did. Failed files had their action reset.
type ApplyResult struct {
	Uninstalled []string
	Installed   []string
	Uploaded    []string
	Removed     []string
	Published   []string
	Failures    []FileFailure
}

// Failed reports whether any file failed.
func (r *ApplyResult) Failed() bool { return len(r.Failures) > 0 }

func (r *ApplyResult) fail(f *FileRecord, action Action, err error) {
	r.Failures = append(r.Failures, FileFailure{Filename: f.Filename, Action: action, Err: err})
}

// Apply executes the pending actions: uninstalls first, then installs and
// updates with dependencies before their dependents, then uploads and
// removals with one index publish per update site. A failing file has its
// action reset to none and execution continues with the next one. Apply
// returns an error only for problems that prevent planning.
func (s *Service) Apply(ctx context.Context) (*ApplyResult, error) {
	c := s.collection
	result := &ApplyResult{}

	for _, f := range slices.Collect(c.ToUninstall()) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.local.Remove(f.Filename); err != nil {
			s.logger.Error("uninstall failed", "file", f.Filename, "error", err)
			result.fail(f, ActionUninstall, err)
		} else {
			s.logger.Info("uninstalled", "file", f.Filename)
			f.local = nil
			f.seen = true
			result.Uninstalled = append(result.Uninstalled, f.Filename)
		}
		f.action = ActionNone
	}

	order, err := c.InstallOrder()
	if err != nil {
		return result, fmt.Errorf("ordering installs: %w", err)
	}
	for _, f := range order {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		action := f.action
		if err := s.download(ctx, f); err != nil {
			s.logger.Error("download failed", "file", f.Filename, "error", err)
			result.fail(f, action, err)
		} else {
			s.logger.Info("installed", "file", f.Filename, "timestamp", f.current.Timestamp)
			f.seen = true
			result.Installed = append(result.Installed, f.Filename)
		}
		f.action = ActionNone
	}

	if c.HasUploadOrRemove() || c.Has(HasMetadataChanges()) {
		siteNames, err := c.SiteNamesToUpload()
		if err != nil {
			return result, fmt.Errorf("planning uploads: %w", err)
		}
		for _, name := range siteNames {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			s.publish(ctx, c.sites.Get(name), result)
		}
	}

	c.Reconcile()
	s.logger.Info("applied changes",
		"uninstalled", len(result.Uninstalled),
		"installed", len(result.Installed),
		"uploaded", len(result.Uploaded),
		"removed", len(result.Removed),
		"failed", len(result.Failures))
	return result, nil
}

// download installs the current version of f.
func (s *Service) download(ctx context.Context, f *FileRecord) error {
	if f.current == nil {
		return errNoPublishedVersion
	}
	url, err := s.collection.URL(f)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.source.Get(ctx, url, pw))
	}()
	err = s.local.Write(f.Filename, pr, f.current.Checksum)
	pr.Close()
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}

	f.local = cloneVersion(f.current)
	return nil
}

// publish uploads the pending files of site and writes its new index. The
// collection is only changed once the index is stored.
func (s *Service) publish(ctx context.Context, site *UpdateSite, result *ApplyResult) {
	c := s.collection
	files := slices.Collect(c.ForUpdateSite(site.Name))

	var pending []*FileRecord
	for _, f := range files {
		if f.action == ActionUpload || f.action == ActionRemove {
			pending = append(pending, f)
		}
	}
	failAll := func(err error) {
		s.logger.Error("publishing update site failed", "site", site.Name, "error", err)
		for _, f := range pending {
			result.fail(f, f.action, err)
			f.action = ActionNone
		}
	}

	if !site.IsUploadable() {
		failAll(fmt.Errorf("update site %s has no upload directory", site.Name))
		return
	}
	remoteIndex, err := s.fetchIndex(ctx, site.UploadDirectory)
	if err != nil {
		failAll(fmt.Errorf("fetching index: %w", err))
		return
	}
	if !site.IsLastModified(remoteIndex.Timestamp) {
		failAll(fmt.Errorf("%w: %s was modified since the last refresh", ErrSiteChanged, site.Name))
		return
	}

	uploadable := c.IsUploadable()
	next := make(map[*FileRecord]RemoteFact, len(files))
	var uploaded, removed []*FileRecord
	for _, f := range files {
		fact := remoteFact(f)
		switch f.action {
		case ActionUpload:
			if !uploadable(f) {
				result.fail(f, ActionUpload, fmt.Errorf("dependencies are not published"))
				f.action = ActionNone
				break
			}
			if err := s.upload(ctx, site, f); err != nil {
				s.logger.Error("upload failed", "file", f.Filename, "error", err)
				result.fail(f, ActionUpload, err)
				f.action = ActionNone
				break
			}
			if fact.Current != nil && fact.Current.Checksum != f.local.Checksum {
				fact.Previous = append(fact.Previous, *fact.Current)
			}
			fact.Current = cloneVersion(f.local)
			uploaded = append(uploaded, f)
		case ActionRemove:
			if fact.Current != nil {
				fact.Previous = append(fact.Previous, *fact.Current)
				fact.Current = nil
			}
			fact.Dependencies = nil
			removed = append(removed, f)
		}
		if fact.Current == nil && len(fact.Previous) == 0 {
			continue
		}
		next[f] = fact
	}

	index := &RemoteIndex{Timestamp: Timestamp(s.clock.Now())}
	for _, f := range files {
		if fact, ok := next[f]; ok {
			index.Files = append(index.Files, fact)
		}
	}
	if err := s.putIndex(ctx, site, index); err != nil {
		pending = slices.DeleteFunc(pending, func(f *FileRecord) bool { return f.action == ActionNone })
		failAll(fmt.Errorf("writing index: %w", err))
		return
	}

	site.SetLastModified(index.Timestamp)
	for _, f := range files {
		fact, ok := next[f]
		if !ok {
			continue
		}
		f.current = cloneVersion(fact.Current)
		f.previous = fact.Previous
		f.dependencies = fact.Dependencies
		f.MetadataChanged = false
	}
	for _, f := range uploaded {
		f.action = ActionNone
		result.Uploaded = append(result.Uploaded, f.Filename)
	}
	for _, f := range removed {
		f.action = ActionNone
		result.Removed = append(result.Removed, f.Filename)
	}
	result.Published = append(result.Published, site.Name)
	s.logger.Info("published update site", "site", site.Name, "uploaded", len(uploaded), "removed", len(removed), "timestamp", index.Timestamp)
}

func (s *Service) upload(ctx context.Context, site *UpdateSite, f *FileRecord) error {
	if f.local == nil {
		return fmt.Errorf("not installed")
	}
	rc, size, err := s.local.Open(f.Filename)
	if err != nil {
		return fmt.Errorf("opening: %w", err)
	}
	defer rc.Close()
	return s.source.Put(ctx, site.UploadDirectory+versionedName(f.Filename, f.local.Timestamp), rc, size)
}

func (s *Service) putIndex(ctx context.Context, site *UpdateSite, index *RemoteIndex) error {
	var buf bytes.Buffer
	if err := s.codec.Encode(&buf, index); err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	return s.source.Put(ctx, site.UploadDirectory+IndexName, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
}

// remoteFact is the index entry currently describing f.
func remoteFact(f *FileRecord) RemoteFact {
	return RemoteFact{
		Filename:     f.Filename,
		Description:  f.Description,
		Platforms:    slices.Clone(f.Platforms),
		Current:      cloneVersion(f.current),
		Previous:     slices.Clone(f.previous),
		Dependencies: slices.Clone(f.dependencies),
	}
}

var errNoPublishedVersion = errors.New("no published version")
