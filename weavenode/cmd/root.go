package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/LumeraProtocol/weave/pkg/logtrace"
	"github.com/LumeraProtocol/weave/weavenode/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	appConfig *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "weave",
	Short: "Chunk, prove and sign data transactions",
	Long: `weave splits a buffer into chunks, commits to them with a Merkle tree,
stores every chunk together with its inclusion proof and signs the resulting
data transaction.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logtrace.Setup("weave", "dev", logtrace.ParseLevel(logLevel))
		if cmd.Annotations[annotationNoConfig] == "true" {
			return nil
		}
		c, err := config.LoadConfig(configPath())
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("log-level") {
			logtrace.Setup("weave", "dev", logtrace.ParseLevel(c.Log.Level))
		}
		appConfig = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logtrace.Sync()
	},
}

// annotationNoConfig marks commands that run without a config file.
const annotationNoConfig = "no-config"

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// configPath returns --config, or config.yml under ~/.weave when unset.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return config.DefaultConfigFile
	}
	return filepath.Join(home, config.DefaultBaseDir, config.DefaultConfigFile)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.weave/config.yml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
