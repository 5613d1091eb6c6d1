package config

import (
	"github.com/marmos91/miniserver/internal/cli/output"
	"github.com/marmos91/miniserver/pkg/config"
	"github.com/spf13/cobra"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective configuration after defaults and environment
overrides are applied. Secrets are masked.

By default outputs YAML format. Use --output to change format.

Examples:
  # Show config as YAML
  miniserver config show

  # Show as JSON
  miniserver config show --output json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(cmd.OutOrStdout(), cfg.Redacted())
	default:
		return output.PrintYAML(cmd.OutOrStdout(), cfg.Redacted())
	}
}
