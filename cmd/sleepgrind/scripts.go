package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/sleepgrind/internal/infrastructure/config"
	"github.com/nerrad567/sleepgrind/internal/infrastructure/database"
	"github.com/nerrad567/sleepgrind/internal/infrastructure/logging"
	"github.com/nerrad567/sleepgrind/internal/script"
	"github.com/nerrad567/sleepgrind/internal/vision"
	"github.com/nerrad567/sleepgrind/migrations"
)

// openCatalog opens the database and applies pending migrations.
// The caller owns the returned DB.
func openCatalog(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, *script.SQLiteRepository, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Debug("script catalog ready", "path", cfg.Database.Path)
	return db, script.NewSQLiteRepository(db.DB), nil
}

// loadFile parses a script file, naming it after the file when the
// document does not name itself.
func loadFile(path string) (*script.Document, error) {
	doc, err := script.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// ─── validate ───────────────────────────────────────────────────────

func newValidateCmd(flags *globalFlags) *cobra.Command {
	var (
		skipAssets bool
		strict     bool
	)

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a script file and the images it references",
		Long: "Parses the script, builds its graph, reports unreachable nodes and other lint findings, " +
			"and verifies every referenced image resolves to exactly one asset.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.setup()
			if err != nil {
				return err
			}
			doc, err := loadFile(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "script %q: %d nodes, fingerprint %s\n", doc.Name, doc.Graph.Len(), doc.Fingerprint)

			issues := script.Lint(doc.Graph)
			for _, issue := range issues {
				fmt.Fprintf(out, "  warning: %s\n", issue)
			}

			if !skipAssets {
				store := vision.OpenTemplateStore(cfg.Engine.AssetsDir, cfg.Engine.AssetExt)
				if err := store.Preflight(doc.Graph); err != nil {
					return err
				}
				fmt.Fprintf(out, "  %d images resolved in %s\n", len(script.ClickImages(doc.Graph)), cfg.Engine.AssetsDir)
			}

			if strict && len(issues) > 0 {
				return fmt.Errorf("%d lint findings", len(issues))
			}
			fmt.Fprintln(out, "ok")
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipAssets, "skip-assets", false, "do not resolve referenced images")
	cmd.Flags().BoolVar(&strict, "strict", false, "treat lint findings as errors")
	return cmd
}

// ─── script catalog ─────────────────────────────────────────────────

func newScriptCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Manage the script catalog",
	}
	cmd.AddCommand(
		newScriptImportCmd(flags),
		newScriptListCmd(flags),
		newScriptShowCmd(flags),
		newScriptDeleteCmd(flags),
	)
	return cmd
}

// withCatalog runs fn against an opened catalog and closes it afterwards.
func withCatalog(ctx context.Context, flags *globalFlags, fn func(repo *script.SQLiteRepository) error) error {
	cfg, log, err := flags.setup()
	if err != nil {
		return err
	}
	db, repo, err := openCatalog(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	return fn(repo)
}

func newScriptImportCmd(flags *globalFlags) *cobra.Command {
	var (
		name    string
		replace bool
	)
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Store a script file in the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("%w: %w", script.ErrScriptLoad, err)
			}
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			return withCatalog(cmd.Context(), flags, func(repo *script.SQLiteRepository) error {
				doc, err := script.Import(cmd.Context(), repo, name, data, replace)
				if errors.Is(err, script.ErrScriptExists) {
					return fmt.Errorf("%w (use --replace to overwrite)", err)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %q (%d nodes, %s)\n", doc.Name, doc.Graph.Len(), doc.Fingerprint[:12])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "catalog name (default: file name without extension)")
	cmd.Flags().BoolVar(&replace, "replace", false, "overwrite an existing entry")
	return cmd
}

func newScriptListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog scripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd.Context(), flags, func(repo *script.SQLiteRepository) error {
				list, err := repo.List(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tNODES\tFINGERPRINT\tUPDATED")
				for _, s := range list {
					fmt.Fprintf(tw, "%s\t%d\t%.12s\t%s\n", s.Name, s.NodeCount, s.Fingerprint, s.UpdatedAt.Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			})
		},
	}
}

func newScriptShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a catalog script document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), flags, func(repo *script.SQLiteRepository) error {
				s, err := repo.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if _, err := out.Write(s.Document); err != nil {
					return err
				}
				if len(s.Document) > 0 && s.Document[len(s.Document)-1] != '\n' {
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}
}

func newScriptDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a script from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), flags, func(repo *script.SQLiteRepository) error {
				if err := repo.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %q\n", args[0])
				return nil
			})
		},
	}
}
