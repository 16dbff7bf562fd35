package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/predictsh/predictd/internal/kv"
)

var resetCmd = &cobra.Command{
	Use:   "reset [project]",
	Short: "Clear a project's persisted Score Store state",
	Long:  `Deletes every Score Store key (Scorer, Transition Model, Intent Graph, Rolling Evaluator) namespaced to a project, so it starts predicting from scratch on its next scan.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := openRegistryDB(cfg)
	if err != nil {
		return fmt.Errorf("opening registry database: %w", err)
	}
	defer database.Close()

	projects := registryStore(database)
	project, err := resolveProject(cmd, projects, args)
	if err != nil {
		return err
	}

	store := openStore(cfg, database)
	n, err := clearProjectKeys(cmd.Context(), store, project.ID)
	if err != nil {
		return fmt.Errorf("clearing state: %w", err)
	}

	fmt.Printf("Cleared %d key(s) for project %q\n", n, project.Name)
	return nil
}

// clearProjectKeys deletes every Store key namespaced to projectID, the
// prefix every subsystem (Scorer, Transition Model, Intent Graph,
// Evaluator) keys its entries under.
func clearProjectKeys(ctx context.Context, store kv.Store, projectID string) (int, error) {
	keys, err := store.Keys(ctx, projectID+":")
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if err := store.Del(ctx, key); err != nil {
			return 0, fmt.Errorf("deleting %s: %w", key, err)
		}
	}
	return len(keys), nil
}
