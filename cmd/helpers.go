package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/predictsh/predictd/internal/config"
	"github.com/predictsh/predictd/internal/db"
	"github.com/predictsh/predictd/internal/kv"
	"github.com/predictsh/predictd/internal/logging"
	"github.com/predictsh/predictd/internal/registry"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `predictd init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openRegistryDB opens the sqlite database backing the project registry
// (and, when configured, the Score Store), creating it if it doesn't exist.
func openRegistryDB(cfg *config.Config) (*db.DB, error) {
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(".predictd", "predictd.db")
	}
	return db.Open(dbPath)
}

// openStore builds the Score Store backend named by cfg.KVBackend.
func openStore(cfg *config.Config, database *db.DB) kv.Store {
	switch cfg.KVBackend {
	case config.KVSQLite:
		return kv.NewSQLite(database)
	default:
		return kv.NewMemory()
	}
}

func newLogger() *logging.Logger {
	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	return logging.New(os.Stderr, level)
}

func registryStore(database *db.DB) *registry.Store {
	return registry.NewStore(database)
}

// resolveProject picks the project named by args[0] (matched against id,
// then name), or falls back to the registry's sole registered project
// when args is empty and exactly one project is registered.
func resolveProject(cmd *cobra.Command, projects *registry.Store, args []string) (*registry.Project, error) {
	ctx := cmd.Context()

	if len(args) == 1 {
		if p, err := projects.Get(ctx, args[0]); err != nil {
			return nil, fmt.Errorf("looking up project: %w", err)
		} else if p != nil {
			return p, nil
		}

		all, err := projects.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing projects: %w", err)
		}
		for i := range all {
			if all[i].Name == args[0] {
				return &all[i], nil
			}
		}
		return nil, fmt.Errorf("no registered project matches %q; run `predictd register`", args[0])
	}

	all, err := projects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	switch len(all) {
	case 0:
		return nil, fmt.Errorf("no projects registered; run `predictd register` first")
	case 1:
		return &all[0], nil
	default:
		return nil, fmt.Errorf("%d projects registered; specify one by id or name", len(all))
	}
}
