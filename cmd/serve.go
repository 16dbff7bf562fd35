package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/predictsh/predictd/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the predictd HTTP sidecar",
	Long:  `Starts the predictd HTTP server, exposing the Codebase Index, Intent Graph, and prediction endpoints an agent harness calls into.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger()

	database, err := openRegistryDB(cfg)
	if err != nil {
		return fmt.Errorf("opening registry database: %w", err)
	}
	defer database.Close()

	store := openStore(cfg, database)
	projects := registryStore(database)

	// Register the configured code root as a project, so `predictd serve`
	// works standalone without a separate `predictd register` step.
	name := filepath.Base(cfg.CodeRoot)
	if _, err := projects.Register(cmd.Context(), name, cfg.CodeRoot); err != nil {
		log.Warnf("auto-registering code root %s: %v", cfg.CodeRoot, err)
	}

	manager := httpapi.NewManager(cfg, store, projects, log)
	srv := httpapi.New(cfg, manager, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
