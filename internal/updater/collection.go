package updater

import (
	"cmp"
	"fmt"
	"iter"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

// VersionHistory selects how a differing local copy is classified.
type VersionHistory int

const (
	// HistoryFull treats a local copy as outdated only if it matches a
	// previously published version; anything else is a local modification.
	HistoryFull VersionHistory = iota
	// HistoryLatest treats any local copy older than the latest published
	// version as outdated.
	HistoryLatest
)

func (h VersionHistory) String() string {
	if h == HistoryLatest {
		return "latest"
	}
	return "full"
}

// ParseVersionHistory parses "full" (the default when empty) or "latest".
func ParseVersionHistory(s string) (VersionHistory, error) {
	switch s {
	case "", "full":
		return HistoryFull, nil
	case "latest":
		return HistoryLatest, nil
	}
	return HistoryFull, fmt.Errorf("unknown version history mode: %q", s)
}

// Collection owns all tracked files and the update site registry. It is not
// safe for concurrent mutation; the lazy views it hands out must not be
// traversed while the set of files is being changed.
type Collection struct {
	files    []*FileRecord
	index    map[string]*FileRecord
	sites    *Registry
	platform string
	history  VersionHistory
	logger   Logger

	// mods counts structural changes so live views can fail fast.
	mods int
}

// Option configures a Collection.
type Option func(*Collection)

func WithPlatform(platform string) Option {
	return func(c *Collection) {
		if platform != "" {
			c.platform = platform
		}
	}
}

func WithVersionHistory(history VersionHistory) Option {
	return func(c *Collection) { c.history = history }
}

func WithLogger(logger Logger) Option {
	return func(c *Collection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCollection creates an empty collection whose registry holds the
// default update site.
func NewCollection(opts ...Option) *Collection {
	c := &Collection{
		index:    make(map[string]*FileRecord),
		sites:    NewRegistry(),
		platform: CurrentPlatform(),
		logger:   NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collection) Sites() *Registry               { return c.sites }
func (c *Collection) Platform() string               { return c.platform }
func (c *Collection) VersionHistory() VersionHistory { return c.history }
func (c *Collection) Len() int                       { return len(c.files) }

// All returns every file in display order. The traversal panics if files
// are added, dropped or reordered while it is in progress.
func (c *Collection) All() iter.Seq[*FileRecord] {
	return func(yield func(*FileRecord) bool) {
		mods := c.mods
		for _, f := range c.files {
			if c.mods != mods {
				panic("updater: collection modified during traversal")
			}
			if !yield(f) {
				return
			}
		}
	}
}

// Files returns a copy of the file list in display order.
func (c *Collection) Files() []*FileRecord {
	return slices.Clone(c.files)
}

// Get returns the file with the given name, or nil.
func (c *Collection) Get(filename string) *FileRecord {
	return c.index[filename]
}

// GetFileVersion returns the file if its timestamp matches.
func (c *Collection) GetFileVersion(filename string, timestamp int64) *FileRecord {
	if f := c.index[filename]; f != nil && f.Timestamp() == timestamp {
		return f
	}
	return nil
}

// GetFileByChecksum returns the file if its checksum matches.
func (c *Collection) GetFileByChecksum(filename, checksum string) *FileRecord {
	if f := c.index[filename]; f != nil && f.Checksum() == checksum {
		return f
	}
	return nil
}

func (c *Collection) add(f *FileRecord) {
	c.files = append(c.files, f)
	c.index[f.Filename] = f
	c.mods++
}

// Filter returns a lazy view of the files matching filter.
func (c *Collection) Filter(filter Filter) iter.Seq[*FileRecord] {
	return Filtered(filter, c.All())
}

// Has reports whether any file matches filter.
func (c *Collection) Has(filter Filter) bool {
	for range c.Filter(filter) {
		return true
	}
	return false
}

// Update site registry edits

// AddUpdateSite adds or replaces a site. Replacing an uploadable site with
// a read-only one resets upload-only actions of its files.
func (c *Collection) AddUpdateSite(name, url, sshHost, uploadDirectory string, timestamp int64) *UpdateSite {
	site := c.sites.Add(name, url, sshHost, uploadDirectory, timestamp)
	c.resetInvalidActions()
	return site
}

// RenameUpdateSite renames a site in place and moves its files to the new name.
func (c *Collection) RenameUpdateSite(oldName, newName string) error {
	if err := c.sites.rename(oldName, newName); err != nil {
		return err
	}
	for _, f := range c.files {
		if f.UpdateSite == oldName {
			f.UpdateSite = newName
		}
	}
	c.logger.Info("update site renamed", "from", oldName, "to", newName)
	return nil
}

// RemoveUpdateSite removes a site. Files referring to it are reconciled at
// the next merge; actions they can no longer take are reset now.
func (c *Collection) RemoveUpdateSite(name string) error {
	if err := c.sites.Remove(name); err != nil {
		return err
	}
	c.resetInvalidActions()
	return nil
}

// HasUploadableSites reports whether any registry site is uploadable.
func (c *Collection) HasUploadableSites() bool {
	return c.sites.HasUploadableSite()
}

// CloneSites copies the update sites of other into c.
func (c *Collection) CloneSites(other *Collection) {
	for _, site := range other.sites.Sites() {
		c.sites.put(site.Clone())
	}
	c.resetInvalidActions()
}

// resetInvalidActions sets the action of every file whose action is no
// longer valid for its status and site to none.
func (c *Collection) resetInvalidActions() {
	for _, f := range c.files {
		if !f.status.IsValid(f.action, c.isUploadableSite(f)) {
			c.logger.Info("resetting action no longer valid", "file", f.Filename, "status", f.status, "action", f.action)
			f.action = ActionNone
		}
	}
}

// SetUpdateSite assigns the site a file will be uploaded to. An action the
// file cannot take on that site is reset.
func (c *Collection) SetUpdateSite(file *FileRecord, name string) error {
	if c.sites.Get(name) == nil {
		return &NotFoundError{Kind: "update site", Name: name}
	}
	file.UpdateSite = name
	if !file.status.IsValid(file.action, c.isUploadableSite(file)) {
		c.logger.Info("resetting action no longer valid", "file", file.Filename, "site", name, "action", file.action)
		file.action = ActionNone
	}
	return nil
}

// SetActionForSite assigns file to the named site and selects action there.
// Nothing changes if the action is not valid for the file on that site.
func (c *Collection) SetActionForSite(file *FileRecord, action Action, name string) error {
	site := c.sites.Get(name)
	if site == nil {
		return &NotFoundError{Kind: "update site", Name: name}
	}
	if !file.status.IsValid(action, site.IsUploadable()) {
		return &InvalidActionError{Filename: file.Filename, Status: file.status, Action: action}
	}
	file.UpdateSite = name
	file.action = action
	return nil
}

// SiteNamesToUpload returns, in registry order, the sites touched by
// pending uploads and removals.
func (c *Collection) SiteNamesToUpload() ([]string, error) {
	set := make(map[string]bool)
	for f := range c.Filter(Or(c.uploadFilter(), IsAction(ActionRemove))) {
		if f.UpdateSite == "" {
			return nil, &MissingUpdateSiteError{Filename: f.Filename}
		}
		set[f.UpdateSite] = true
	}
	var result []string
	for _, name := range c.sites.Names() {
		if set[name] {
			result = append(result, name)
			delete(set, name)
		}
	}
	for name := range set {
		return nil, &NotFoundError{Kind: "update site", Name: name}
	}
	return result, nil
}

// Actions

// isUploadableSite reports whether the developer action set applies to file.
func (c *Collection) isUploadableSite(f *FileRecord) bool {
	if f.UpdateSite == "" {
		return c.sites.HasUploadableSite()
	}
	site := c.sites.Get(f.UpdateSite)
	return site != nil && site.IsUploadable()
}

// Actions returns the actions selectable for file besides its default.
func (c *Collection) Actions(file *FileRecord) []Action {
	return file.status.choices(c.isUploadableSite(file))
}

// CommonActions returns the actions selectable for every one of files, in
// the order of the first file's list. It is empty for an empty input.
func (c *Collection) CommonActions(files []*FileRecord) []Action {
	var result []Action
	for i, f := range files {
		actions := c.Actions(f)
		if i == 0 {
			result = actions
			continue
		}
		result = slices.DeleteFunc(result, func(a Action) bool { return !slices.Contains(actions, a) })
	}
	if result == nil {
		return []Action{}
	}
	return result
}

// SetAction selects action for file, failing with an InvalidActionError if
// it is not valid for the file's status.
func (c *Collection) SetAction(file *FileRecord, action Action) error {
	if !file.status.IsValid(action, c.isUploadableSite(file)) {
		return &InvalidActionError{Filename: file.Filename, Status: file.status, Action: action}
	}
	file.action = action
	return nil
}

// SetFirstValidAction selects the first candidate valid for file and
// reports whether one was found.
func (c *Collection) SetFirstValidAction(file *FileRecord, candidates ...Action) bool {
	developer := c.isUploadableSite(file)
	for _, action := range candidates {
		if file.status.IsValid(action, developer) {
			file.action = action
			return true
		}
	}
	return false
}

// HasChanges reports whether any file has an action other than its default.
func (c *Collection) HasChanges() bool {
	return c.Has(Not(IsNoAction()))
}

func (c *Collection) HasUploadOrRemove() bool {
	return c.Has(OneOfActions(ActionUpload, ActionRemove))
}

// HasForcableUpdates reports whether a forced sweep would touch files a
// regular sweep leaves alone.
func (c *Collection) HasForcableUpdates() bool {
	for f := range c.Updateable(true) {
		if !f.IsUpdateable(false) {
			return true
		}
	}
	return false
}

// MarkForUpdate selects update, else uninstall, else install for every
// updateable file.
func (c *Collection) MarkForUpdate(evenForced bool) {
	for f := range c.Updateable(evenForced) {
		c.SetFirstValidAction(f, ActionUpdate, ActionUninstall, ActionInstall)
	}
}

// Predicates bound to the collection

// DoesPlatformMatch matches files applicable to the active platform. A
// session with an uploadable site sees every platform.
func (c *Collection) DoesPlatformMatch() Filter {
	if c.sites.HasUploadableSite() {
		return Yes()
	}
	return func(f *FileRecord) bool { return f.IsUpdateablePlatform(c.platform) }
}

// IsUploadable matches files that may be uploaded: their site is uploadable
// and every dependency is, or is about to be, published.
func (c *Collection) IsUploadable() Filter {
	return func(f *FileRecord) bool {
		if !c.isUploadableSite(f) || f.status == StatusObsoleteUninstalled {
			return false
		}
		for _, dep := range f.dependencies {
			other := c.index[dep.Filename]
			if other == nil || other.IsObsolete() {
				return false
			}
			if other.current == nil && other.action != ActionUpload {
				return false
			}
		}
		return true
	}
}

func (c *Collection) uploadFilter() Filter {
	return Or(IsAction(ActionUpload), HasMetadataChanges())
}

// Named views

func (c *Collection) ToUploadOrRemove() iter.Seq[*FileRecord] {
	return c.Filter(OneOfActions(ActionUpload, ActionRemove))
}

func (c *Collection) ToUpload() iter.Seq[*FileRecord] {
	return c.Filter(IsAction(ActionUpload))
}

// ToUploadWithMetadata also includes files whose metadata changed.
func (c *Collection) ToUploadWithMetadata() iter.Seq[*FileRecord] {
	return c.Filter(c.uploadFilter())
}

func (c *Collection) ToUploadForSite(name string) iter.Seq[*FileRecord] {
	return c.Filter(And(IsAction(ActionUpload), IsUpdateSite(name)))
}

func (c *Collection) ToUninstall() iter.Seq[*FileRecord] {
	return c.Filter(IsAction(ActionUninstall))
}

func (c *Collection) ToRemove() iter.Seq[*FileRecord] {
	return c.Filter(IsAction(ActionRemove))
}

func (c *Collection) ToUpdate() iter.Seq[*FileRecord] {
	return c.Filter(IsAction(ActionUpdate))
}

func (c *Collection) ToInstall() iter.Seq[*FileRecord] {
	return c.Filter(IsAction(ActionInstall))
}

func (c *Collection) ToInstallOrUpdate() iter.Seq[*FileRecord] {
	return c.Filter(OneOfActions(ActionInstall, ActionUpdate))
}

func (c *Collection) UpToDate() iter.Seq[*FileRecord] {
	return c.Filter(And(IsStatus(StatusInstalled), IsNoAction()))
}

func (c *Collection) NotHidden() iter.Seq[*FileRecord] {
	return c.Filter(And(Not(IsStatus(StatusObsoleteUninstalled)), c.DoesPlatformMatch()))
}

func (c *Collection) Uninstalled() iter.Seq[*FileRecord] {
	return c.Filter(IsStatus(StatusNotInstalled))
}

// Installed returns tracked files that have a local copy.
func (c *Collection) Installed() iter.Seq[*FileRecord] {
	return c.Filter(Not(OneOfStatuses(StatusLocalOnly, StatusNotInstalled, StatusNewRemote, StatusObsoleteUninstalled)))
}

func (c *Collection) LocallyModified() iter.Seq[*FileRecord] {
	return c.Filter(OneOfStatuses(StatusModified, StatusObsoleteModified))
}

func (c *Collection) ForUpdateSite(name string) iter.Seq[*FileRecord] {
	return c.Filter(IsUpdateSite(name))
}

// Tracked returns files that belong to an update site.
func (c *Collection) Tracked() iter.Seq[*FileRecord] {
	return c.Filter(Not(IsStatus(StatusLocalOnly)))
}

func (c *Collection) LocalOnly() iter.Seq[*FileRecord] {
	return c.Filter(IsStatus(StatusLocalOnly))
}

// ShownByDefault hides files the user has nothing to decide about,
// including not-installed files the user chose not to have.
func (c *Collection) ShownByDefault() iter.Seq[*FileRecord] {
	return c.Filter(Or(
		OneOfStatuses(StatusUpdateAvailable, StatusNewRemote, StatusObsolete, StatusObsoleteModified),
		IsAction(ActionInstall),
		Not(IsNoAction()),
	))
}

func (c *Collection) Uploadable() iter.Seq[*FileRecord] {
	return c.Filter(c.IsUploadable())
}

// Changes returns files with a pending action.
func (c *Collection) Changes() iter.Seq[*FileRecord] {
	return c.Filter(Not(IsNoAction()))
}

// Updateable returns files a bulk update sweep would touch on this platform.
func (c *Collection) Updateable(evenForced bool) iter.Seq[*FileRecord] {
	return c.Filter(func(f *FileRecord) bool {
		return f.IsUpdateable(evenForced) && f.IsUpdateablePlatform(c.platform)
	})
}

// Ordering

// Sort orders files by a fixed priority of their first character (launchers,
// then plugins, jars, scripts, ...), then by name.
func (c *Collection) Sort() {
	slices.SortStableFunc(c.files, compareFiles)
	c.mods++
}

const firstCharPriority = "CIfpjsim"

func firstCharRank(name string) int {
	r, _ := utf8.DecodeRuneInString(name)
	if i := strings.IndexRune(firstCharPriority, r); i >= 0 {
		return i
	}
	return 0x200 + int(r)
}

func compareFiles(a, b *FileRecord) int {
	if n := cmp.Compare(firstCharRank(a.Filename), firstCharRank(b.Filename)); n != 0 {
		return n
	}
	return strings.Compare(a.Filename, b.Filename)
}

// URLs

// URL returns the download location of the file's published version.
func (c *Collection) URL(file *FileRecord) (string, error) {
	site := c.sites.Get(file.UpdateSite)
	if site == nil {
		return "", &MissingUpdateSiteError{Filename: file.Filename}
	}
	return site.URL + versionedName(file.Filename, file.Timestamp()), nil
}

// versionedName is the name a file version is stored under on a site.
func versionedName(filename string, timestamp int64) string {
	return escapeFilename(filename) + "-" + strconv.FormatInt(timestamp, 10)
}

func escapeFilename(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func (c *Collection) String() string {
	names := make([]string, len(c.files))
	for i, f := range c.files {
		names[i] = f.Filename
	}
	return strings.Join(names, ", ")
}
