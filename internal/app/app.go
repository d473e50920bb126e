package app

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"slices"
	"strings"

	"updater/internal/config"
	"updater/internal/database"
	"updater/internal/fs"
	"updater/internal/index"
	"updater/internal/site"
	"updater/internal/updater"
)

// UpdaterApp is the application layer between the CLI and the updater
// service. It constructs all dependencies from config, exposes high-level
// operations that accept raw strings, and persists the collection and the
// operation record on Close.
type UpdaterApp struct {
	store      updater.Store
	collection *updater.Collection
	service    *updater.Service
	clock      updater.Clock
	op         *updater.Operation
	opErr      error
	dirty      bool
	logger     *slogAdapter
	logFile    *os.File
}

// NewUpdaterApp creates a fully wired UpdaterApp from the given config.
// operation identifies the CLI command being run (e.g. "refresh", "apply").
// The caller must call Close when done.
func NewUpdaterApp(ctx context.Context, cfg *config.Config, operation string) (*UpdaterApp, error) {
	return newUpdaterApp(ctx, cfg, operation, updater.RealClock{}, updater.UUIDGenerator{})
}

func newUpdaterApp(ctx context.Context, cfg *config.Config, operation string, clock updater.Clock, ids updater.IDGenerator) (*UpdaterApp, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("no installation root configured")
	}
	history, err := updater.ParseVersionHistory(cfg.VersionHistory)
	if err != nil {
		return nil, err
	}

	opID, _, _ := strings.Cut(ids.New(), "-")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}
	fail := func(err error) (*UpdaterApp, error) {
		logFile.Close()
		return nil, err
	}

	local, err := fs.NewOSLocalFiles(cfg.Root, cfg.Filesystem.ScanDirs, cfg.Filesystem.Ignore)
	if err != nil {
		return fail(fmt.Errorf("opening installation: %w", err))
	}

	source, err := site.NewSourceFromConfig(ctx, cfg, adapter)
	if err != nil {
		return fail(fmt.Errorf("creating site source: %w", err))
	}

	store, err := database.NewStoreFromConfig(cfg.Database, cfg.InstallID)
	if err != nil {
		return fail(fmt.Errorf("creating store: %w", err))
	}

	opts := []updater.Option{updater.WithVersionHistory(history), updater.WithLogger(adapter)}
	if cfg.Platform != "" {
		opts = append(opts, updater.WithPlatform(cfg.Platform))
	}
	collection, err := loadCollection(store, cfg.PrimarySite, opts)
	if err != nil {
		store.Close()
		return fail(err)
	}

	return &UpdaterApp{
		store:      store,
		collection: collection,
		service:    updater.NewService(collection, source, index.NewCodec(), local, adapter, clock),
		clock:      clock,
		op:         updater.NewOperation(operation, "", clock.Now()),
		logger:     adapter,
		logFile:    logFile,
	}, nil
}

// loadCollection restores the saved collection, or creates one whose
// registry holds the configured primary site.
func loadCollection(store updater.Store, primary config.SiteConfig, opts []updater.Option) (*updater.Collection, error) {
	snap, err := store.LoadSnapshot()
	if err != nil {
		return nil, fmt.Errorf("loading collection: %w", err)
	}
	if snap != nil {
		c, err := updater.LoadSnapshot(snap, opts...)
		if err != nil {
			return nil, fmt.Errorf("restoring collection: %w", err)
		}
		return c, nil
	}

	c := updater.NewCollection(opts...)
	if primary == (config.SiteConfig{}) {
		return c, nil
	}
	name := primary.Name
	if name == "" {
		name = updater.DefaultSiteName
	}
	url := primary.URL
	if url == "" {
		url = updater.DefaultSiteURL
	}
	if name != updater.DefaultSiteName {
		if err := c.RemoveUpdateSite(updater.DefaultSiteName); err != nil {
			return nil, err
		}
	}
	c.AddUpdateSite(name, url, primary.SSHHost, primary.UploadDirectory, 0)
	return c, nil
}

// Collection returns the loaded collection.
func (a *UpdaterApp) Collection() *updater.Collection {
	return a.collection
}

// persistOperation records the operation in the store, giving it an ID.
// Only commands that change the collection or the installation call it.
func (a *UpdaterApp) persistOperation(parameters ...string) error {
	if a.op.Persisted() {
		return nil
	}
	parameters = slices.DeleteFunc(parameters, func(p string) bool { return p == "" })
	a.op.Parameters = strings.Join(parameters, " ")
	if err := a.store.CreateOperation(a.op); err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	return nil
}

// mutate runs fn as a persisted operation and marks the collection for
// saving. The operation fails if fn does.
func (a *UpdaterApp) mutate(fn func() error, parameters ...string) error {
	if err := a.persistOperation(parameters...); err != nil {
		return err
	}
	a.dirty = true
	if err := fn(); err != nil {
		a.opErr = err
		return err
	}
	return nil
}

// Update sites

func (a *UpdaterApp) Sites() []*updater.UpdateSite {
	return a.collection.Sites().Sites()
}

// AddSite adds or replaces an update site.
func (a *UpdaterApp) AddSite(name, url, sshHost, uploadDirectory string) error {
	return a.mutate(func() error {
		if name == "" || url == "" {
			return fmt.Errorf("update site needs a name and a URL")
		}
		a.collection.AddUpdateSite(name, url, sshHost, uploadDirectory, 0)
		return nil
	}, name, url)
}

func (a *UpdaterApp) RenameSite(oldName, newName string) error {
	return a.mutate(func() error {
		return a.collection.RenameUpdateSite(oldName, newName)
	}, oldName, newName)
}

func (a *UpdaterApp) RemoveSite(name string) error {
	return a.mutate(func() error {
		return a.collection.RemoveUpdateSite(name)
	}, name)
}

// Refresh fetches all site indexes, rescans the installation and returns
// the merge diagnostics.
func (a *UpdaterApp) Refresh(ctx context.Context) ([]string, error) {
	var diagnostics []string
	err := a.mutate(func() error {
		var err error
		diagnostics, err = a.service.Refresh(ctx)
		return err
	})
	return diagnostics, err
}

// ListOptions selects the files ListFiles returns. Empty fields do not
// filter.
type ListOptions struct {
	All    bool
	Site   string
	Status string
	Action string
	Search string
}

// ListFiles returns the files matching opts. Without All only files with
// something to decide about are listed.
func (a *UpdaterApp) ListFiles(opts ListOptions) ([]*updater.FileRecord, error) {
	var seq iter.Seq[*updater.FileRecord]
	if opts.All {
		seq = a.collection.NotHidden()
	} else {
		seq = a.collection.ShownByDefault()
	}

	var filters []updater.Filter
	if opts.Site != "" {
		filters = append(filters, updater.IsUpdateSite(opts.Site))
	}
	if opts.Status != "" {
		status, err := updater.ParseStatus(opts.Status)
		if err != nil {
			return nil, err
		}
		filters = append(filters, updater.IsStatus(status))
	}
	if opts.Action != "" {
		action, err := updater.ParseAction(opts.Action)
		if err != nil {
			return nil, err
		}
		filters = append(filters, updater.IsAction(action))
	}
	seq = updater.Filtered(updater.And(filters...), seq)
	if opts.Search != "" {
		seq = updater.Search(opts.Search, seq)
	}
	return slices.Collect(seq), nil
}

// Mark selects action for filename. A non-empty siteName first assigns the
// site the file will be uploaded to.
func (a *UpdaterApp) Mark(filename, actionName, siteName string) error {
	return a.mutate(func() error {
		f := a.collection.Get(filename)
		if f == nil {
			return &updater.NotFoundError{Kind: "file", Name: filename}
		}
		action, err := updater.ParseAction(actionName)
		if err != nil {
			return err
		}
		if siteName != "" {
			return a.collection.SetActionForSite(f, action, siteName)
		}
		return a.collection.SetAction(f, action)
	}, filename, actionName, siteName)
}

// MarkUpdates selects updates for every updateable file and returns how
// many files have a pending action afterwards.
func (a *UpdaterApp) MarkUpdates(force bool) (int, error) {
	err := a.mutate(func() error {
		a.collection.MarkForUpdate(force)
		return nil
	})
	return len(slices.Collect(a.collection.Changes())), err
}

// ResolveDependencies marks the files required by pending installs and
// updates, returning what could not be resolved.
func (a *UpdaterApp) ResolveDependencies() ([]string, error) {
	var diagnostics []string
	err := a.mutate(func() error {
		diagnostics = a.collection.MarkDependencies()
		return nil
	})
	return diagnostics, err
}

// Plan lists the pending actions in execution order.
type Plan struct {
	Uninstall []*updater.FileRecord
	Install   []*updater.FileRecord
	Upload    []*updater.FileRecord
	Remove    []*updater.FileRecord
	Sites     []string
}

// Empty reports whether the plan has nothing to do.
func (p *Plan) Empty() bool {
	return len(p.Uninstall)+len(p.Install)+len(p.Upload)+len(p.Remove) == 0
}

func (a *UpdaterApp) Plan() (*Plan, error) {
	order, err := a.collection.InstallOrder()
	if err != nil {
		return nil, err
	}
	plan := &Plan{
		Uninstall: slices.Collect(a.collection.ToUninstall()),
		Install:   order,
		Upload:    slices.Collect(a.collection.ToUploadWithMetadata()),
		Remove:    slices.Collect(a.collection.ToRemove()),
	}
	if len(plan.Upload)+len(plan.Remove) > 0 {
		if plan.Sites, err = a.collection.SiteNamesToUpload(); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// Check returns the consistency problems of the collection.
func (a *UpdaterApp) Check() []string {
	return a.collection.CheckConsistency()
}

// Apply executes the pending plan.
func (a *UpdaterApp) Apply(ctx context.Context) (*updater.ApplyResult, error) {
	var result *updater.ApplyResult
	err := a.mutate(func() error {
		var err error
		result, err = a.service.Apply(ctx)
		if err == nil && result.Failed() {
			err = fmt.Errorf("%d file(s) failed", len(result.Failures))
		}
		return err
	})
	return result, err
}

// URL returns the download URL of the published version of filename.
func (a *UpdaterApp) URL(filename string) (string, error) {
	f := a.collection.Get(filename)
	if f == nil {
		return "", &updater.NotFoundError{Kind: "file", Name: filename}
	}
	return a.collection.URL(f)
}

// GetHistory returns the most recent operations.
func (a *UpdaterApp) GetHistory(limit int) ([]*updater.Operation, error) {
	return a.store.ListOperations(limit)
}

// BackupDatabase copies the store to destPath.
func (a *UpdaterApp) BackupDatabase(destPath string) error {
	b, ok := a.store.(interface{ BackupTo(string) error })
	if !ok {
		return fmt.Errorf("store does not support backups")
	}
	return b.BackupTo(destPath)
}

// Close saves the collection if it changed, finalizes the operation record
// and closes all resources.
func (a *UpdaterApp) Close() error {
	var errs []error

	if a.dirty {
		if err := a.store.SaveSnapshot(a.collection.Snapshot()); err != nil {
			errs = append(errs, fmt.Errorf("saving collection: %w", err))
		}
	}
	if a.op.Persisted() {
		a.op.Finish(errors.Join(append(errs, a.opErr)...), a.clock.Now())
		if err := a.store.FinishOperation(a.op); err != nil {
			errs = append(errs, fmt.Errorf("finishing operation: %w", err))
		}
		a.logger.Info("operation finished", "operation", a.op.Operation, "status", a.op.Status)
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}
