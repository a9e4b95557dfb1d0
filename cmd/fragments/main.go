package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// configPath is the --config flag shared by every subcommand
var configPath string

var rootCmd = &cobra.Command{
	Use:   "fragments",
	Short: "Fragments - typed content fragment server",
	Long: `Fragments stores small typed content fragments (text, markdown, HTML,
JSON, YAML, CSV and images) per user and converts them between types on read.

Configuration is read from $XDG_CONFIG_HOME/fragments/config.yaml unless
--config is given. Run 'fragments init' to write a commented default file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: "+defaultConfigHint()+")")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
