package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pradyumna-smpx/gqutils/pkg/config"
)

// migrateCmd creates or updates the database tables.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database tables",
	Long:  `Run GORM auto-migration for the tables used by the database modules.`,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

// runMigrate executes the migrate command.
//
// Parameters:
//   - cmd (*cobra.Command): the cobra command
//   - args ([]string): command arguments
//
// Returns:
//   - error: nil on success, migration error on failure
func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Database == "" {
		return errNoDatabase
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Error on close is not actionable in defer

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}

	log.Info().Msg("migration complete")
	return nil
}
