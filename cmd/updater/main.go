package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"updater/internal/app"
	"updater/internal/config"
	"updater/internal/updater"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an UpdaterApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "refresh", "apply").
func newApp(ctx context.Context, operation string) (*app.UpdaterApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewUpdaterApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// withApp runs fn against a freshly opened app and closes it, reporting the
// first error.
func withApp(cmd *cobra.Command, operation string, fn func(a *app.UpdaterApp) error) (err error) {
	a, err := newApp(cmd.Context(), operation)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func printDiagnostics(diagnostics []string) {
	for _, d := range diagnostics {
		fmt.Printf("warning: %s\n", d)
	}
}

var rootCmd = &cobra.Command{
	Use:          "updater",
	Short:        "Keep an installation in sync with its update sites",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		root, _ := cmd.Flags().GetString("root")
		if root == "" {
			if root, err = os.Getwd(); err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}
		}
		root, err = filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolving root: %w", err)
		}

		installID := updater.UUIDGenerator{}.New()
		cfg := config.NewConfig(installID, defaults["base_dir"], root)

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Install ID: %s\n", installID)
		fmt.Printf("Root:       %s\n", root)
		fmt.Printf("Base Dir:   %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		platform := cfg.Platform
		if platform == "" {
			platform = updater.CurrentPlatform() + " (detected)"
		}
		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Install ID: %s\n", cfg.InstallID)
		fmt.Printf("Root:       %s\n", cfg.Root)
		fmt.Printf("Platform:   %s\n", platform)
		fmt.Printf("History:    %s\n", cfg.VersionHistory)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Database:   %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		return nil
	},
}

// site command
var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Manage update sites",
}

var siteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List update sites in priority order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "site list", func(a *app.UpdaterApp) error {
			for _, s := range a.Sites() {
				upload := ""
				if s.IsUploadable() {
					upload = "  [uploadable]"
				}
				fmt.Printf("%-20s %s%s\n", s.Name, s.String(), upload)
			}
			return nil
		})
	},
}

var siteAddCmd = &cobra.Command{
	Use:   "add NAME URL",
	Short: "Add or replace an update site",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sshHost, _ := cmd.Flags().GetString("ssh-host")
		uploadDir, _ := cmd.Flags().GetString("upload-dir")
		return withApp(cmd, "site add", func(a *app.UpdaterApp) error {
			if err := a.AddSite(args[0], args[1], sshHost, uploadDir); err != nil {
				return err
			}
			fmt.Printf("Added update site %s\n", args[0])
			return nil
		})
	},
}

var siteRenameCmd = &cobra.Command{
	Use:   "rename OLD NEW",
	Short: "Rename an update site",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "site rename", func(a *app.UpdaterApp) error {
			return a.RenameSite(args[0], args[1])
		})
	},
}

var siteRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove an update site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "site remove", func(a *app.UpdaterApp) error {
			return a.RemoveSite(args[0])
		})
	},
}

// refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch update site indexes and rescan the installation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "refresh", func(a *app.UpdaterApp) error {
			diagnostics, err := a.Refresh(cmd.Context())
			if err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}
			printDiagnostics(diagnostics)
			fmt.Printf("Tracking %d file(s)\n", a.Collection().Len())
			return nil
		})
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List files and their pending actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts app.ListOptions
		opts.All, _ = cmd.Flags().GetBool("all")
		opts.Site, _ = cmd.Flags().GetString("site")
		opts.Status, _ = cmd.Flags().GetString("status")
		opts.Action, _ = cmd.Flags().GetString("action")
		opts.Search, _ = cmd.Flags().GetString("search")

		return withApp(cmd, "status", func(a *app.UpdaterApp) error {
			files, err := a.ListFiles(opts)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Println("Nothing to show.")
				return nil
			}
			printFiles(os.Stdout, files)
			return nil
		})
	},
}

// mark command
var markCmd = &cobra.Command{
	Use:   "mark FILE ACTION",
	Short: "Select the action for a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteName, _ := cmd.Flags().GetString("site")
		return withApp(cmd, "mark", func(a *app.UpdaterApp) error {
			if err := a.Mark(args[0], args[1], siteName); err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", args[0], args[1])
			return nil
		})
	},
}

// update command
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Mark every updateable file for update",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return withApp(cmd, "update", func(a *app.UpdaterApp) error {
			n, err := a.MarkUpdates(force)
			if err != nil {
				return err
			}
			fmt.Printf("%d file(s) have pending actions\n", n)
			return nil
		})
	},
}

// resolve command
var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Mark the files required by pending installs and updates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "resolve", func(a *app.UpdaterApp) error {
			diagnostics, err := a.ResolveDependencies()
			if err != nil {
				return err
			}
			printDiagnostics(diagnostics)
			return nil
		})
	},
}

// plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what apply would do",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "plan", func(a *app.UpdaterApp) error {
			plan, err := a.Plan()
			if err != nil {
				return err
			}
			if plan.Empty() {
				fmt.Println("Nothing to do.")
				return nil
			}
			section := func(title string, files []*updater.FileRecord) {
				if len(files) == 0 {
					return
				}
				fmt.Printf("%s:\n", title)
				for _, f := range files {
					fmt.Printf("  %s\n", f.Filename)
				}
			}
			section("Uninstall", plan.Uninstall)
			section("Install/update", plan.Install)
			section("Upload", plan.Upload)
			section("Remove", plan.Remove)
			if len(plan.Sites) > 0 {
				fmt.Printf("Publishing to: %v\n", plan.Sites)
			}
			return nil
		})
	},
}

// check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report dependency and update site problems",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "check", func(a *app.UpdaterApp) error {
			problems := a.Check()
			if len(problems) == 0 {
				fmt.Println("No problems found.")
				return nil
			}
			for _, p := range problems {
				fmt.Println(p)
			}
			return fmt.Errorf("%d problem(s) found", len(problems))
		})
	},
}

// apply command
var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Execute pending actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "apply", func(a *app.UpdaterApp) error {
			result, err := a.Apply(cmd.Context())
			if result != nil {
				fmt.Printf("Uninstalled %d, installed %d, uploaded %d, removed %d file(s)\n",
					len(result.Uninstalled), len(result.Installed), len(result.Uploaded), len(result.Removed))
				for _, f := range result.Failures {
					fmt.Printf("failed: %v\n", f)
				}
			}
			return err
		})
	},
}

// url command
var urlCmd = &cobra.Command{
	Use:   "url FILE",
	Short: "Print the download URL of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "url", func(a *app.UpdaterApp) error {
			u, err := a.URL(args[0])
			if err != nil {
				return err
			}
			fmt.Println(u)
			return nil
		})
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		return withApp(cmd, "history", func(a *app.UpdaterApp) error {
			ops, err := a.GetHistory(limit)
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				fmt.Println("No operations recorded.")
				return nil
			}
			for _, op := range ops {
				duration := ""
				if !op.FinishedAt.IsZero() {
					duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
				}
				fmt.Printf("#%d  %-12s  %s  %-8s  %-10s  %s\n",
					op.ID,
					op.Operation,
					op.StartedAt.Format("2006-01-02 15:04:05"),
					op.Status,
					duration,
					op.Parameters,
				)
			}
			return nil
		})
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the local database",
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup PATH",
	Short: "Copy the database to PATH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		return withApp(cmd, "db backup", func(a *app.UpdaterApp) error {
			if err := a.BackupDatabase(dest); err != nil {
				return err
			}
			fmt.Printf("Database copied to %s\n", dest)
			return nil
		})
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("root", "", "Installation root (default: current directory)")

	// site subcommands
	siteCmd.AddCommand(siteListCmd)
	siteCmd.AddCommand(siteAddCmd)
	siteCmd.AddCommand(siteRenameCmd)
	siteCmd.AddCommand(siteRemoveCmd)
	siteAddCmd.Flags().String("ssh-host", "", "Host used for uploads")
	siteAddCmd.Flags().String("upload-dir", "", "Upload target; makes the site uploadable")

	// db subcommands
	dbCmd.AddCommand(dbBackupCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(siteCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolP("all", "a", false, "Show all files, not only those needing a decision")
	statusCmd.Flags().String("site", "", "Only files of this update site")
	statusCmd.Flags().String("status", "", "Only files with this status")
	statusCmd.Flags().String("action", "", "Only files with this pending action")
	statusCmd.Flags().StringP("search", "s", "", "Only files whose name contains this text")
	rootCmd.AddCommand(markCmd)
	markCmd.Flags().String("site", "", "Update site to upload the file to")
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().BoolP("force", "f", false, "Also overwrite locally modified files")
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(urlCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(dbCmd)
}
