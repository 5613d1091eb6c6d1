package config

import (
	"fmt"

	"github.com/marmos91/miniserver/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the miniserver configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  miniserver config validate

  # Validate specific config file
  miniserver config validate --config /etc/miniserver/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if cfg.Auth.Secret == "" {
		warnings = append(warnings, "auth.secret not configured - tokens will not survive a restart")
	}
	if cfg.Database.Type == "sqlite" && cfg.Environment.IsProduction() {
		warnings = append(warnings, "production is using SQLite")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}
	return nil
}
