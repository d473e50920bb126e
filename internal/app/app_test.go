package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"updater/internal/config"
	"updater/internal/index"
	"updater/internal/testutil"
	"updater/internal/updater"
)

// testConfig returns a config with an empty installation and a file://
// update site named "Main" that is also its own upload target.
func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	siteDir := t.TempDir()
	cfg := config.NewConfig("install-1", t.TempDir(), t.TempDir())
	cfg.Platform = "linux64"
	siteURL := "file://" + filepath.ToSlash(siteDir) + "/"
	cfg.PrimarySite = config.SiteConfig{Name: "Main", URL: siteURL, UploadDirectory: siteURL}
	return cfg, siteDir
}

func publish(t *testing.T, siteDir string, files map[string]string, idx *updater.RemoteIndex) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(siteDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("creating site directory: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	f, err := os.Create(filepath.Join(siteDir, updater.IndexName))
	if err != nil {
		t.Fatalf("creating index: %v", err)
	}
	defer f.Close()
	if err := index.NewCodec().Encode(f, idx); err != nil {
		t.Fatalf("encoding index: %v", err)
	}
}

func openTestApp(t *testing.T, cfg *config.Config, operation string) *UpdaterApp {
	t.Helper()
	a, err := newUpdaterApp(context.Background(), cfg, operation, testutil.FixedClock(), testutil.NewStubIDGenerator("op"))
	if err != nil {
		t.Fatalf("newUpdaterApp() error = %v", err)
	}
	return a
}

func closeApp(t *testing.T, a *UpdaterApp) {
	t.Helper()
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestUpdaterApp_SeedsPrimarySite(t *testing.T) {
	cfg, _ := testConfig(t)
	a := openTestApp(t, cfg, "site list")
	defer closeApp(t, a)

	sites := a.Sites()
	if len(sites) != 1 || sites[0].Name != "Main" {
		t.Fatalf("Sites() = %v, want only Main", sites)
	}
	if !sites[0].IsUploadable() {
		t.Error("Main should be uploadable")
	}
}

func TestUpdaterApp_RefreshMarkApply(t *testing.T) {
	cfg, siteDir := testConfig(t)
	publish(t, siteDir, map[string]string{"jars/lib.jar-20": "lib"}, &updater.RemoteIndex{
		Timestamp: 20240201000000,
		Files: []updater.RemoteFact{{
			Filename: "jars/lib.jar",
			Current:  &updater.Version{Checksum: testutil.SHA256Hex([]byte("lib")), Timestamp: 20},
		}},
	})

	a := openTestApp(t, cfg, "refresh")
	if _, err := a.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := a.Collection().Get("jars/lib.jar").Status(); got != updater.StatusNewRemote {
		t.Errorf("status = %v, want %v", got, updater.StatusNewRemote)
	}
	closeApp(t, a)

	// A new process restores the collection from the store.
	a = openTestApp(t, cfg, "mark")
	if a.Collection().Get("jars/lib.jar") == nil {
		t.Fatal("collection not restored")
	}
	if err := a.Mark("jars/lib.jar", "install", ""); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	closeApp(t, a)

	a = openTestApp(t, cfg, "apply")
	plan, err := a.Plan()
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan.Install) != 1 || plan.Install[0].Filename != "jars/lib.jar" {
		t.Errorf("Plan().Install = %v", plan.Install)
	}
	result, err := a.Apply(context.Background())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(result.Installed) != 1 {
		t.Errorf("Installed = %v, want jars/lib.jar", result.Installed)
	}
	closeApp(t, a)

	got, err := os.ReadFile(filepath.Join(cfg.Root, "jars", "lib.jar"))
	if err != nil {
		t.Fatalf("reading installed file: %v", err)
	}
	if string(got) != "lib" {
		t.Errorf("installed content = %q, want lib", got)
	}

	a = openTestApp(t, cfg, "history")
	defer closeApp(t, a)
	ops, err := a.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("got %d operations, want 3", len(ops))
	}
	for i, want := range []string{"apply", "mark", "refresh"} {
		if ops[i].Operation != want || ops[i].Status != updater.OperationSuccess {
			t.Errorf("ops[%d] = %s/%s, want %s/success", i, ops[i].Operation, ops[i].Status, want)
		}
	}
	if ops[1].Parameters != "jars/lib.jar install" {
		t.Errorf("mark parameters = %q", ops[1].Parameters)
	}
}

func TestUpdaterApp_FailedOperationIsRecorded(t *testing.T) {
	cfg, _ := testConfig(t)

	a := openTestApp(t, cfg, "mark")
	err := a.Mark("plugins/Missing.jar", "install", "")
	if !errors.Is(err, updater.ErrNotFound) {
		t.Errorf("Mark() error = %v, want ErrNotFound", err)
	}
	closeApp(t, a)

	a = openTestApp(t, cfg, "history")
	defer closeApp(t, a)
	ops, err := a.GetHistory(1)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(ops) != 1 || ops[0].Status != updater.OperationError {
		t.Errorf("ops = %+v, want one failed mark", ops)
	}
}

func TestUpdaterApp_ListFiles(t *testing.T) {
	cfg, siteDir := testConfig(t)
	publish(t, siteDir, nil, &updater.RemoteIndex{
		Timestamp: 1,
		Files: []updater.RemoteFact{
			{Filename: "jars/a.jar", Current: &updater.Version{Checksum: "a", Timestamp: 1}},
			{Filename: "plugins/B.jar", Current: &updater.Version{Checksum: "b", Timestamp: 1}},
		},
	})
	a := openTestApp(t, cfg, "refresh")
	defer closeApp(t, a)
	if _, err := a.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	tests := []struct {
		name string
		opts ListOptions
		want int
	}{
		{"default view", ListOptions{}, 2},
		{"search", ListOptions{Search: "B.jar"}, 1},
		{"status filter", ListOptions{All: true, Status: "installed"}, 0},
		{"site filter", ListOptions{All: true, Site: "Main"}, 2},
		{"action filter", ListOptions{Action: "install"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := a.ListFiles(tt.opts)
			if err != nil {
				t.Fatalf("ListFiles() error = %v", err)
			}
			if len(files) != tt.want {
				t.Errorf("ListFiles() returned %d files, want %d", len(files), tt.want)
			}
		})
	}

	if _, err := a.ListFiles(ListOptions{Status: "bogus"}); err == nil {
		t.Error("ListFiles() expected error for unknown status")
	}
}

func TestUpdaterApp_SiteEdits(t *testing.T) {
	cfg, _ := testConfig(t)

	a := openTestApp(t, cfg, "site add")
	if err := a.AddSite("Extra", "https://extra.example.org", "", ""); err != nil {
		t.Fatalf("AddSite() error = %v", err)
	}
	if err := a.RenameSite("Extra", "Renamed"); err != nil {
		t.Fatalf("RenameSite() error = %v", err)
	}
	if err := a.RemoveSite("Nope"); !errors.Is(err, updater.ErrNotFound) {
		t.Errorf("RemoveSite() error = %v, want ErrNotFound", err)
	}
	a.Close()

	a = openTestApp(t, cfg, "site list")
	defer closeApp(t, a)
	sites := a.Sites()
	if len(sites) != 2 || sites[1].Name != "Renamed" || sites[1].URL != "https://extra.example.org/" {
		t.Errorf("Sites() = %v", sites)
	}
}

func TestUpdaterApp_RequiresRoot(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Root = ""
	if _, err := NewUpdaterApp(context.Background(), cfg, "status"); err == nil {
		t.Error("NewUpdaterApp() expected error without root")
	}
}

func TestUpdaterApp_URLAndBackup(t *testing.T) {
	cfg, siteDir := testConfig(t)
	publish(t, siteDir, map[string]string{"jars/lib.jar-20": "lib"}, &updater.RemoteIndex{
		Timestamp: 20240201000000,
		Files: []updater.RemoteFact{{
			Filename: "jars/lib.jar",
			Current:  &updater.Version{Checksum: testutil.SHA256Hex([]byte("lib")), Timestamp: 20},
		}},
	})

	a := openTestApp(t, cfg, "refresh")
	defer closeApp(t, a)
	if _, err := a.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	u, err := a.URL("jars/lib.jar")
	if err != nil {
		t.Fatalf("URL() error = %v", err)
	}
	if want := cfg.PrimarySite.URL + "jars/lib.jar-20"; u != want {
		t.Errorf("URL() = %q, want %q", u, want)
	}
	if _, err := a.URL("jars/missing.jar"); !errors.Is(err, updater.ErrNotFound) {
		t.Errorf("URL(missing) error = %v, want ErrNotFound", err)
	}

	dest := filepath.Join(t.TempDir(), "backup.db")
	if err := a.BackupDatabase(dest); err != nil {
		t.Fatalf("BackupDatabase() error = %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("backup not written: %v", err)
	}
}

func TestUpdaterApp_MarkForSite(t *testing.T) {
	cfg, siteDir := testConfig(t)
	publish(t, siteDir, nil, &updater.RemoteIndex{Timestamp: 1})
	mine := filepath.Join(cfg.Root, "plugins", "Mine.jar")
	if err := os.MkdirAll(filepath.Dir(mine), 0o755); err != nil {
		t.Fatalf("creating plugins: %v", err)
	}
	if err := os.WriteFile(mine, []byte("mine"), 0o644); err != nil {
		t.Fatalf("writing Mine.jar: %v", err)
	}

	a := openTestApp(t, cfg, "refresh")
	if _, err := a.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	closeApp(t, a)

	t.Run("rejected action leaves the site unchanged", func(t *testing.T) {
		a := openTestApp(t, cfg, "mark")
		err := a.Mark("plugins/Mine.jar", "install", "Main")
		if !errors.Is(err, updater.ErrInvalidAction) {
			t.Errorf("Mark() error = %v, want ErrInvalidAction", err)
		}
		closeApp(t, a)

		a = openTestApp(t, cfg, "status")
		defer closeApp(t, a)
		if got := a.Collection().Get("plugins/Mine.jar").UpdateSite; got != "" {
			t.Errorf("UpdateSite = %q, want empty", got)
		}
	})

	t.Run("removing the upload site resets the upload", func(t *testing.T) {
		a := openTestApp(t, cfg, "mark")
		if err := a.Mark("plugins/Mine.jar", "upload", "Main"); err != nil {
			t.Fatalf("Mark() error = %v", err)
		}
		closeApp(t, a)

		a = openTestApp(t, cfg, "site remove")
		if err := a.RemoveSite("Main"); err != nil {
			t.Fatalf("RemoveSite() error = %v", err)
		}
		closeApp(t, a)

		a, err := newUpdaterApp(context.Background(), cfg, "status", testutil.FixedClock(), testutil.NewStubIDGenerator("op"))
		if err != nil {
			t.Fatalf("reopening after site removal: %v", err)
		}
		defer closeApp(t, a)
		if got := a.Collection().Get("plugins/Mine.jar").Action(); got != updater.ActionNone {
			t.Errorf("Action() = %v, want none", got)
		}
	})
}
