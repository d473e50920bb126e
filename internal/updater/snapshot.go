package updater

import (
	"fmt"
	"slices"
)

// Snapshot is the persistable state of a collection: the update sites and
// the facts and selected action of every file, in display order. Statuses
// are not part of it; they are derived again on load.
type Snapshot struct {
	Sites []UpdateSite
	Files []FileSnapshot
}

// FileSnapshot is the persisted form of a FileRecord.
type FileSnapshot struct {
	Filename        string
	UpdateSite      string
	Description     string
	Platforms       []string
	Local           *Version
	Current         *Version
	Previous        []Version
	Dependencies    []Dependency
	Action          Action
	MetadataChanged bool
}

// Snapshot captures the collection's state.
func (c *Collection) Snapshot() *Snapshot {
	s := &Snapshot{
		Sites: make([]UpdateSite, 0, c.sites.Len()),
		Files: make([]FileSnapshot, 0, len(c.files)),
	}
	for _, site := range c.sites.Sites() {
		s.Sites = append(s.Sites, *site)
	}
	for _, f := range c.files {
		s.Files = append(s.Files, FileSnapshot{
			Filename:        f.Filename,
			UpdateSite:      f.UpdateSite,
			Description:     f.Description,
			Platforms:       slices.Clone(f.Platforms),
			Local:           cloneVersion(f.local),
			Current:         cloneVersion(f.current),
			Previous:        slices.Clone(f.previous),
			Dependencies:    slices.Clone(f.dependencies),
			Action:          f.action,
			MetadataChanged: f.MetadataChanged,
		})
	}
	return s
}

// LoadSnapshot rebuilds a collection from s. The registry holds exactly the
// persisted sites; a snapshot without sites yields the default registry.
// Every restored file counts as already seen. A persisted action that the
// derived status does not allow fails the load.
func LoadSnapshot(s *Snapshot, opts ...Option) (*Collection, error) {
	c := NewCollection(opts...)
	if len(s.Sites) > 0 {
		c.sites = newEmptyRegistry()
		for _, site := range s.Sites {
			if c.sites.Get(site.Name) != nil {
				return nil, &DuplicateNameError{Kind: "update site", Name: site.Name}
			}
			c.sites.put(NewUpdateSite(site.Name, site.URL, site.SSHHost, site.UploadDirectory, site.Timestamp))
		}
	}

	for _, fs := range s.Files {
		if c.index[fs.Filename] != nil {
			return nil, &DuplicateNameError{Kind: "file", Name: fs.Filename}
		}
		f := newFileRecord(fs.Filename)
		f.UpdateSite = fs.UpdateSite
		f.Description = fs.Description
		f.Platforms = slices.Clone(fs.Platforms)
		f.local = cloneVersion(fs.Local)
		f.current = cloneVersion(fs.Current)
		f.previous = slices.Clone(fs.Previous)
		f.dependencies = slices.Clone(fs.Dependencies)
		f.MetadataChanged = fs.MetadataChanged
		f.seen = true
		c.add(f)
	}

	c.Reconcile()

	for _, fs := range s.Files {
		if err := c.SetAction(c.index[fs.Filename], fs.Action); err != nil {
			return nil, fmt.Errorf("restoring action: %w", err)
		}
	}
	return c, nil
}
