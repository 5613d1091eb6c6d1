package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/miniserver/internal/cli/prompt"
	"github.com/marmos91/miniserver/internal/logger"
	"github.com/marmos91/miniserver/pkg/config"
	"github.com/marmos91/miniserver/pkg/store"
)

var (
	migrateRevert bool
	migrateYes    bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Apply the database migrations to the configured database (SQLite or
PostgreSQL).

This is the only way to migrate a production database; serve never does it
implicitly there. Reverting drops every table and asks for confirmation
unless --yes is given. So does migrating in production.

Examples:
  # Apply pending migrations
  miniserver migrate

  # Drop everything, then migrate again
  miniserver migrate --revert --yes`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateRevert, "revert", false, "Revert all migrations before applying them")
	migrateCmd.Flags().BoolVarP(&migrateYes, "yes", "y", false, "Skip confirmation prompts")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, cfg *config.Config, st *store.GORMStore) error {
		if migrateRevert || cfg.Environment.IsProduction() {
			label := fmt.Sprintf("Migrate the %s database", cfg.Environment)
			if migrateRevert {
				label = fmt.Sprintf("Revert and migrate the %s database", cfg.Environment)
			}
			ok, err := prompt.ConfirmWithForce(label, migrateYes)
			if err != nil {
				if prompt.IsAborted(err) {
					return nil
				}
				return fmt.Errorf("%w (use --yes to confirm)", err)
			}
			if !ok {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
		}

		plan := migrationPlan{Revert: migrateRevert, Up: true}
		if err := runMigrationPlan(ctx, st, plan, cfg.Environment); err != nil {
			return err
		}

		version, dirty, err := st.Migrator().Version(ctx)
		if err != nil {
			logger.Warn("Could not read schema version", logger.Err(err))
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Migrations completed successfully (database type: %s, version: %d, dirty: %t)\n",
			st.Type(), version, dirty)
		return nil
	})
}
