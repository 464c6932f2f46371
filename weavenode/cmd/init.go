package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/LumeraProtocol/weave/weavenode/config"
	"github.com/spf13/cobra"
)

var forceInit bool

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration",
	Long: `Write a default config.yml and create the data directory next to it.

Example:
  weave init
  weave init --config ./node/config.yml --force`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		if _, err := os.Stat(path); err == nil && !forceInit {
			return fmt.Errorf("config file already exists at %s\nUse --force to overwrite it", path)
		}

		c := config.DefaultConfig(filepath.Dir(path))
		if err := config.SaveConfig(c, path); err != nil {
			return err
		}
		if err := os.MkdirAll(c.DataDirPath(), 0700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\nData directory: %s\n", path, c.DataDirPath())
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
