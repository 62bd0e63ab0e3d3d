package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/pradyumna-smpx/gqutils/internal/engine"
	"github.com/pradyumna-smpx/gqutils/internal/store"
	"github.com/pradyumna-smpx/gqutils/pkg/config"
	"github.com/pradyumna-smpx/gqutils/pkg/module"
)

// checkCmd validates the configuration and schema.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and schema",
	Long: `Load the configuration, build the schema from the configured modules
and report what it contains. The database is pinged when one is configured.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// runCheck executes the check command.
//
// Parameters:
//   - cmd (*cobra.Command): the cobra command
//   - args ([]string): command arguments
//
// Returns:
//   - error: nil on success, validation error on failure
func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := engine.Options{}
	database := "not configured"
	if cfg.Database != "" {
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck // Error on close is not actionable in defer

		n, err := db.AuditEntries(store.AuditFilter{}).Count(ctx)
		if err != nil {
			database = fmt.Sprintf("connected (audit log unavailable: %v)", err)
		} else {
			database = fmt.Sprintf("connected (%d audit entries)", n)
		}
		opts.Store = db
	}

	eng, err := engine.New(cfg, opts)
	if err != nil {
		return fmt.Errorf("building schema: %w", err)
	}
	current := eng.Current()

	counts := map[ast.DefinitionKind]int{}
	for name, def := range current.Schema.Document.Types {
		if def.BuiltIn || strings.HasPrefix(name, "__") {
			continue
		}
		counts[def.Kind]++
	}
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Schema Check")
	fmt.Fprintln(out, "============")
	fmt.Fprintf(out, "Name:          %s\n", cfg.Name)
	fmt.Fprintf(out, "Database:      %s\n", database)
	fmt.Fprintf(out, "Registered:    %v\n", module.Global().Names())
	fmt.Fprintf(out, "Modules:       %v\n", current.Modules)
	fmt.Fprintf(out, "Module files:  %d\n", len(eng.Files()))
	for _, kind := range kinds {
		fmt.Fprintf(out, "%-14s %d\n", kind+":", counts[ast.DefinitionKind(kind)])
	}
	fmt.Fprintln(out, "Status:        OK")
	fmt.Fprintln(out)

	return nil
}
