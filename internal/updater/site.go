package updater

import (
	"fmt"
	"slices"
	"strings"
)

const (
	// DefaultSiteName names the primary public repository seeded into every registry.
	DefaultSiteName = "ImageJ"
	// DefaultSiteURL is the primary public repository.
	DefaultSiteURL = "https://update.imagej.net/"
)

// UpdateSite is a named remote repository of versioned files.
type UpdateSite struct {
	Name            string
	URL             string
	SSHHost         string
	UploadDirectory string
	Timestamp       int64
}

// NewUpdateSite creates an UpdateSite with url and uploadDirectory normalized
// to end with a path separator.
func NewUpdateSite(name, url, sshHost, uploadDirectory string, timestamp int64) *UpdateSite {
	return &UpdateSite{
		Name:            name,
		URL:             withTrailingSlash(url),
		SSHHost:         sshHost,
		UploadDirectory: withTrailingSlash(uploadDirectory),
		Timestamp:       timestamp,
	}
}

func withTrailingSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// IsUploadable reports whether the site has an upload target.
func (s *UpdateSite) IsUploadable() bool {
	return s.UploadDirectory != ""
}

// IsLastModified reports whether ts matches the last known index timestamp.
func (s *UpdateSite) IsLastModified(ts int64) bool {
	return s.Timestamp == ts
}

// SetLastModified records the timestamp of the latest fetched index.
func (s *UpdateSite) SetLastModified(ts int64) {
	s.Timestamp = ts
}

func (s *UpdateSite) Clone() *UpdateSite {
	c := *s
	return &c
}

func (s *UpdateSite) String() string {
	out := s.URL
	if s.SSHHost != "" {
		out += ", " + s.SSHHost
	}
	if s.UploadDirectory != "" {
		out += ", " + s.UploadDirectory
	}
	return out
}

// Registry holds update sites keyed by name, in insertion order.
type Registry struct {
	names []string
	sites map[string]*UpdateSite
}

// NewRegistry returns a registry seeded with the primary public repository.
func NewRegistry() *Registry {
	r := newEmptyRegistry()
	r.Add(DefaultSiteName, DefaultSiteURL, "", "", 0)
	return r
}

func newEmptyRegistry() *Registry {
	return &Registry{sites: make(map[string]*UpdateSite)}
}

// Add inserts a site, or replaces an existing one of the same name in place.
func (r *Registry) Add(name, url, sshHost, uploadDirectory string, timestamp int64) *UpdateSite {
	site := NewUpdateSite(name, url, sshHost, uploadDirectory, timestamp)
	r.put(site)
	return site
}

func (r *Registry) put(site *UpdateSite) {
	if _, ok := r.sites[site.Name]; !ok {
		r.names = append(r.names, site.Name)
	}
	r.sites[site.Name] = site
}

// rename re-keys a site in place, keeping its position.
func (r *Registry) rename(oldName, newName string) error {
	if _, ok := r.sites[newName]; ok {
		return &DuplicateNameError{Kind: "update site", Name: newName}
	}
	site, ok := r.sites[oldName]
	if !ok {
		return &NotFoundError{Kind: "update site", Name: oldName}
	}
	i := slices.Index(r.names, oldName)
	r.names[i] = newName
	delete(r.sites, oldName)
	site.Name = newName
	r.sites[newName] = site
	return nil
}

// Remove deletes a site from the registry.
func (r *Registry) Remove(name string) error {
	if _, ok := r.sites[name]; !ok {
		return &NotFoundError{Kind: "update site", Name: name}
	}
	delete(r.sites, name)
	r.names = slices.DeleteFunc(r.names, func(n string) bool { return n == name })
	return nil
}

// Get returns the named site, or nil.
func (r *Registry) Get(name string) *UpdateSite {
	if name == "" {
		return nil
	}
	return r.sites[name]
}

// Names returns the site names in registry order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Sites returns the sites in registry order.
func (r *Registry) Sites() []*UpdateSite {
	out := make([]*UpdateSite, len(r.names))
	for i, name := range r.names {
		out[i] = r.sites[name]
	}
	return out
}

func (r *Registry) Len() int { return len(r.names) }

// HasUploadableSite reports whether any site has an upload target.
func (r *Registry) HasUploadableSite() bool {
	for _, site := range r.sites {
		if site.IsUploadable() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the registry.
func (r *Registry) Clone() *Registry {
	c := newEmptyRegistry()
	for _, site := range r.Sites() {
		c.put(site.Clone())
	}
	return c
}

func (r *Registry) String() string {
	parts := make([]string, len(r.names))
	for i, name := range r.names {
		parts[i] = fmt.Sprintf("%s: %s", name, r.sites[name])
	}
	return strings.Join(parts, "; ")
}
