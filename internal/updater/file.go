package updater

import (
	"slices"
)

// Version identifies one published or installed copy of a file.
type Version struct {
	Checksum  string
	Timestamp int64
}

// Dependency is an edge from a file to another file it requires. Overriding
// dependencies express "replaces" relationships and are not transitive.
type Dependency struct {
	Filename  string
	Timestamp int64
	Overrides bool
}

// FileRecord is one tracked file: identity, origin site, derived status and
// the action selected for it.
type FileRecord struct {
	Filename        string
	UpdateSite      string // empty for local-only files
	Description     string
	Platforms       []string
	MetadataChanged bool

	local        *Version // nil when not present on disk
	current      *Version // nil when withdrawn or never published
	previous     []Version
	dependencies []Dependency

	// seen is true when the record existed before the current merge.
	seen   bool
	status Status
	action Action
}

func newFileRecord(filename string) *FileRecord {
	return &FileRecord{Filename: filename, status: StatusLocalOnly}
}

func (f *FileRecord) Status() Status { return f.status }
func (f *FileRecord) Action() Action { return f.action }

// Local returns the installed version, or nil.
func (f *FileRecord) Local() *Version { return cloneVersion(f.local) }

// Current returns the latest published version, or nil.
func (f *FileRecord) Current() *Version { return cloneVersion(f.current) }

// Previous returns the known older published versions.
func (f *FileRecord) Previous() []Version { return slices.Clone(f.previous) }

// Dependencies returns the declared dependency edges in declaration order.
func (f *FileRecord) Dependencies() []Dependency { return slices.Clone(f.dependencies) }

// Checksum returns the published checksum if any, else the local one.
func (f *FileRecord) Checksum() string {
	if v := f.version(); v != nil {
		return v.Checksum
	}
	return ""
}

// Timestamp returns the published timestamp if any, else the local one.
func (f *FileRecord) Timestamp() int64 {
	if v := f.version(); v != nil {
		return v.Timestamp
	}
	return 0
}

func (f *FileRecord) version() *Version {
	if f.current != nil {
		return f.current
	}
	return f.local
}

// AddDependency declares that f requires filename. Adding a new edge marks
// the record's metadata as changed.
func (f *FileRecord) AddDependency(filename string, timestamp int64, overrides bool) {
	if filename == f.Filename {
		return
	}
	for i, dep := range f.dependencies {
		if dep.Filename == filename {
			if dep.Overrides != overrides || dep.Timestamp != timestamp {
				f.dependencies[i] = Dependency{Filename: filename, Timestamp: timestamp, Overrides: overrides}
				f.MetadataChanged = true
			}
			return
		}
	}
	f.dependencies = append(f.dependencies, Dependency{Filename: filename, Timestamp: timestamp, Overrides: overrides})
	f.MetadataChanged = true
}

// RemoveDependency drops the edge to filename, if any.
func (f *FileRecord) RemoveDependency(filename string) bool {
	n := len(f.dependencies)
	f.dependencies = slices.DeleteFunc(f.dependencies, func(d Dependency) bool { return d.Filename == filename })
	if len(f.dependencies) != n {
		f.MetadataChanged = true
		return true
	}
	return false
}

// HasDependency reports whether f declares an edge to filename.
func (f *FileRecord) HasDependency(filename string) bool {
	return slices.ContainsFunc(f.dependencies, func(d Dependency) bool { return d.Filename == filename })
}

func (f *FileRecord) IsObsolete() bool { return f.status.IsObsolete() }

func (f *FileRecord) IsLocalOnly() bool { return f.UpdateSite == "" }

// IsLocallyModified reports whether the local copy matches no published version.
func (f *FileRecord) IsLocallyModified() bool {
	return f.status == StatusModified || f.status == StatusObsoleteModified
}

// IsUpdateablePlatform reports whether the file applies to platform. Files
// without platform constraints apply everywhere.
func (f *FileRecord) IsUpdateablePlatform(platform string) bool {
	return len(f.Platforms) == 0 || slices.Contains(f.Platforms, platform)
}

// IsUpdateable reports whether a bulk update sweep should touch the file.
// Forced updates also overwrite local modifications.
func (f *FileRecord) IsUpdateable(evenForced bool) bool {
	switch {
	case f.action == ActionUpdate, f.action == ActionInstall:
		return true
	case f.status == StatusUpdateAvailable, f.status == StatusObsolete:
		return true
	case evenForced && f.IsLocallyModified():
		return true
	}
	return false
}

// WillBeUpToDate reports whether the file is, or will be after the plan
// executes, present in its wanted version.
func (f *FileRecord) WillBeUpToDate() bool {
	switch f.action {
	case ActionInstall, ActionUpdate, ActionUpload:
		return true
	case ActionNone:
		return f.status == StatusInstalled || f.status == StatusLocalOnly
	}
	return false
}

// WillNotBeInstalled reports whether the file is, or will be after the plan
// executes, absent locally.
func (f *FileRecord) WillNotBeInstalled() bool {
	switch f.action {
	case ActionUninstall, ActionRemove:
		return true
	case ActionNone:
		switch f.status {
		case StatusNotInstalled, StatusNewRemote, StatusObsoleteUninstalled:
			return true
		}
	}
	return false
}

func (f *FileRecord) hasPreviousChecksum(checksum string) bool {
	return slices.ContainsFunc(f.previous, func(v Version) bool { return v.Checksum == checksum })
}

func (f *FileRecord) String() string { return f.Filename }

func cloneVersion(v *Version) *Version {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
