package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/marmos91/miniserver/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Write a configuration file holding the default values and a freshly
generated token secret.

By default, the file is created at $XDG_CONFIG_HOME/miniserver/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  miniserver config init

  # Initialize with custom path, overwriting it
  miniserver config init --config /etc/miniserver/config.yaml --force`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
	}

	cfg := config.GetDefaultConfig()
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("failed to generate token secret: %w", err)
	}
	cfg.Auth.Secret = hex.EncodeToString(secret)

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Edit the configuration file to customize your setup")
	_, _ = fmt.Fprintln(out, "  2. Start the server with: miniserver serve")
	_, _ = fmt.Fprintf(out, "  3. Or specify custom config: miniserver serve --config %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nSecurity note:")
	_, _ = fmt.Fprintln(out, "  A random token secret has been written to the file.")
	_, _ = fmt.Fprintf(out, "  In production prefer the environment: export %s_AUTH_SECRET=$(openssl rand -hex 32)\n", config.EnvPrefix)
	return nil
}
