package cmd

import (
	"github.com/spf13/cobra"

	"github.com/predictsh/predictd/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize predictd configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure predictd for your codebase and writes a .predictd.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
