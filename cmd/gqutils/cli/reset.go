package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pradyumna-smpx/gqutils/pkg/config"
)

var forceReset bool

// resetCmd clears module data.
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all stored module data",
	Long: `Delete all data stored by the database modules.
This truncates every module table, including the audit log.

WARNING: This action is irreversible!`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolVarP(&forceReset, "force", "f", false, "skip confirmation prompt")
}

// runReset executes the reset command.
//
// Parameters:
//   - cmd (*cobra.Command): the cobra command
//   - args ([]string): command arguments
//
// Returns:
//   - error: nil on success, reset error on failure
func runReset(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Database == "" {
		return errNoDatabase
	}

	if !forceReset {
		fmt.Print("This will delete all stored module data. Are you sure? [y/N]: ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Reset cancelled.")
			return nil
		}
	}

	log.Warn().
		Str("name", cfg.Name).
		Msg("resetting module data")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Error on close is not actionable in defer

	if err := db.Reset(ctx); err != nil {
		return fmt.Errorf("resetting data: %w", err)
	}

	fmt.Println("Reset complete. All module data has been cleared.")
	return nil
}
