package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/capmd/capmd/pkg/config"
	"github.com/capmd/capmd/pkg/keys"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Write a configuration file with sensible defaults and a freshly
generated JWT signing secret.

By default the file is created at $XDG_CONFIG_HOME/capmd/config.yaml.
Use --config to write it somewhere else, and --force to overwrite an
existing file.

Examples:
  # Create the default config
  capmd init

  # Create a config at a custom location
  capmd init --config /etc/capmd/config.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	cfg := config.GetDefaultConfig()
	cfg.Auth.JWTSecret = keys.Generate(48)

	if err := config.SaveConfig(cfg, path); err != nil {
		return err
	}

	fmt.Printf("Configuration file created at: %s\n\n", path)
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit the configuration to customize your setup")
	fmt.Println("  2. Start the server: capmd start")
	return nil
}
