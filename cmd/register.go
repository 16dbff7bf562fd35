package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register [path]",
	Short: "Register a codebase as a project predictd can index",
	Long:  `Registers the codebase at [path] (defaulting to the current directory) with the project registry and writes a project-root marker file into it.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRegister,
}

func init() {
	registerCmd.Flags().String("name", "", "display name for the project (defaults to the directory name)")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) == 1 {
		path = args[0]
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	if info, err := os.Stat(absPath); err != nil {
		return fmt.Errorf("code root %q: %w", absPath, err)
	} else if !info.IsDir() {
		return fmt.Errorf("code root %q is not a directory", absPath)
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = filepath.Base(absPath)
	}

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
	project, err := projects.Register(cmd.Context(), name, absPath)
	if err != nil {
		return fmt.Errorf("registering project: %w", err)
	}

	fmt.Printf("Registered %q\n", project.Name)
	fmt.Printf("  ID:   %s\n", project.ID)
	fmt.Printf("  Path: %s\n", project.RootPath)
	return nil
}
