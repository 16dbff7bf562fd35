package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "predictd",
	SilenceUsage:  true,
	SilenceErrors: true,
	Short:         "Predictive dev-assistant sidecar for coding agents",
	Long: `predictd watches what an LLM coding agent reads and edits, builds a
Codebase Index and Intent Graph from that activity, and predicts which
files the agent will need next so they can be prefetched into context
before the agent asks for them.`,
}

// Execute runs the root command, printing any error in red before
// returning it so main can set the process exit code.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".predictd.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
