package main

import (
	"fmt"

	"github.com/marmos91/fragments/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a commented configuration file with every default filled in.

Without --config the file goes to the default location. An existing file is
only replaced with --force.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		written, err := config.InitConfig(initForce)
		if err != nil {
			return err
		}
		path = written
	} else if err := config.InitConfigToPath(path, initForce); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration written to %s\n", path)
	fmt.Fprintln(out, "Add API users with 'fragments hash-password', then run 'fragments serve'.")
	return nil
}

// defaultConfigHint is shown in --config help text.
func defaultConfigHint() string {
	return config.GetDefaultConfigPath()
}
