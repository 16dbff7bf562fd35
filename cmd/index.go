package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/predictsh/predictd/internal/fileindex"
	"github.com/predictsh/predictd/internal/progress"
)

var indexCmd = &cobra.Command{
	Use:   "index [project]",
	Short: "Scan a registered project and report Codebase Index stats",
	Long:  `Runs a full scan of a registered project's code root and prints the project name, its root path, and how many files the Codebase Index found. Token and import-edge counts are not reported.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
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

	idx := fileindex.New(project.RootPath, fileindex.Config{
		Include: cfg.Include,
		Exclude: cfg.Exclude,
	}, newLogger())

	reporter := progress.NewReporter()
	reporter.Start(1)
	if err := idx.ScanProgress(func(done, total int, relPath string) {
		if total == 0 {
			return
		}
		if done == 1 {
			reporter.Start(total)
		}
		reporter.Update(done, relPath)
	}); err != nil {
		return fmt.Errorf("scanning %s: %w", project.RootPath, err)
	}
	reporter.Finish()

	files := idx.ListFiles("", fileindex.ModeLexicographic, 0)
	fmt.Printf("%s %s (%s)\n", color.GreenString("Indexed"), project.Name, project.RootPath)
	fmt.Printf("  Files: %d\n", len(files))

	if err := projects.Touch(cmd.Context(), project.ID); err != nil {
		return fmt.Errorf("updating project timestamp: %w", err)
	}
	return nil
}
