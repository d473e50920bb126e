package updater

import (
	"fmt"
	"slices"
)

// LocalFact is what a scan of the installation reports for one file.
type LocalFact struct {
	Filename  string
	Checksum  string
	Timestamp int64
}

// RemoteIndex is the logical content of one update site's index.
type RemoteIndex struct {
	Timestamp int64
	Files     []RemoteFact
}

// RemoteFact is one file listed in a site index. Current is nil when the
// site lists the file only to keep its withdrawn versions.
type RemoteFact struct {
	Filename     string
	Description  string
	Platforms    []string
	Current      *Version
	Previous     []Version
	Dependencies []Dependency
}

// Merge folds a fresh local scan and the indexes of the fetched sites into
// the collection, then reconciles every status. Sites missing from remote
// keep the metadata known from earlier merges. The returned diagnostics
// name files shadowed by a higher priority site.
func (c *Collection) Merge(local []LocalFact, remote map[string]*RemoteIndex) ([]string, error) {
	for name := range remote {
		if c.sites.Get(name) == nil {
			return nil, &NotFoundError{Kind: "update site", Name: name}
		}
	}

	rank := make(map[string]int, c.sites.Len())
	for i, name := range c.sites.Names() {
		rank[name] = i
	}

	for _, f := range c.files {
		f.seen = true
		f.local = nil
	}

	var diagnostics []string
	owner := make(map[string]string)
	for _, siteName := range c.sites.Names() {
		index, ok := remote[siteName]
		if !ok {
			continue
		}
		c.sites.Get(siteName).SetLastModified(index.Timestamp)
		for _, fact := range index.Files {
			f := c.index[fact.Filename]
			shadowedBy, taken := owner[fact.Filename]
			if !taken && f != nil && f.UpdateSite != "" && f.UpdateSite != siteName {
				// Owned by a site that was not fetched this time.
				if r, known := rank[f.UpdateSite]; known && r < rank[siteName] {
					if _, fetched := remote[f.UpdateSite]; !fetched {
						shadowedBy, taken = f.UpdateSite, true
					}
				}
			}
			if taken {
				diagnostics = append(diagnostics, fmt.Sprintf("%s from update site %s is shadowed by update site %s", fact.Filename, siteName, shadowedBy))
				continue
			}
			owner[fact.Filename] = siteName
			if f == nil {
				f = newFileRecord(fact.Filename)
				c.add(f)
			}
			f.UpdateSite = siteName
			f.Description = fact.Description
			f.Platforms = slices.Clone(fact.Platforms)
			f.current = cloneVersion(fact.Current)
			f.previous = slices.Clone(fact.Previous)
			f.dependencies = slices.Clone(fact.Dependencies)
			f.MetadataChanged = false
		}
	}

	for _, f := range c.files {
		if f.UpdateSite == "" {
			continue
		}
		if c.sites.Get(f.UpdateSite) == nil {
			c.logger.Info("update site no longer registered", "file", f.Filename, "site", f.UpdateSite)
			f.UpdateSite = ""
			f.current = nil
			f.previous = nil
			f.dependencies = nil
			continue
		}
		if _, fetched := remote[f.UpdateSite]; fetched && owner[f.Filename] != f.UpdateSite {
			c.logger.Debug("file withdrawn from update site", "file", f.Filename, "site", f.UpdateSite)
			withdraw(f)
		}
	}

	for _, fact := range local {
		f := c.index[fact.Filename]
		if f == nil {
			f = newFileRecord(fact.Filename)
			c.add(f)
		}
		f.local = &Version{Checksum: fact.Checksum, Timestamp: fact.Timestamp}
	}

	c.dropUntracked()
	c.Reconcile()

	c.logger.Info("merged update sites", "sites", len(remote), "local", len(local), "files", len(c.files), "shadowed", len(diagnostics))
	return diagnostics, nil
}

// withdraw moves the current version into the history and drops the
// dependencies, which obsolete files must not have.
func withdraw(f *FileRecord) {
	if f.current != nil {
		f.previous = append(f.previous, *f.current)
		f.current = nil
	}
	f.dependencies = nil
}

// dropUntracked forgets records that are neither on disk nor on any site.
func (c *Collection) dropUntracked() {
	n := len(c.files)
	c.files = slices.DeleteFunc(c.files, func(f *FileRecord) bool {
		if f.local == nil && f.UpdateSite == "" {
			delete(c.index, f.Filename)
			return true
		}
		return false
	})
	if len(c.files) != n {
		c.mods++
	}
}

// Reconcile recomputes every status and resets actions the new status no
// longer allows.
func (c *Collection) Reconcile() {
	for _, f := range c.files {
		f.status = c.deriveStatus(f)
	}
	c.resetInvalidActions()
}

func (c *Collection) deriveStatus(f *FileRecord) Status {
	if f.UpdateSite == "" {
		return StatusLocalOnly
	}
	if f.current == nil {
		switch {
		case f.local == nil:
			return StatusObsoleteUninstalled
		case len(f.previous) == 0:
			// Assigned to a site but never published.
			return StatusLocalOnly
		case f.hasPreviousChecksum(f.local.Checksum):
			return StatusObsolete
		}
		return StatusObsoleteModified
	}
	if f.local == nil {
		if f.seen {
			return StatusNotInstalled
		}
		return StatusNewRemote
	}
	if f.local.Checksum == f.current.Checksum {
		return StatusInstalled
	}
	if c.history == HistoryLatest {
		if f.local.Timestamp < f.current.Timestamp {
			return StatusUpdateAvailable
		}
		return StatusModified
	}
	if f.hasPreviousChecksum(f.local.Checksum) {
		return StatusUpdateAvailable
	}
	return StatusModified
}
