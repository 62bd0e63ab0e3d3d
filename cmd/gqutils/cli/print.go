package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/pradyumna-smpx/gqutils/internal/engine"
	"github.com/pradyumna-smpx/gqutils/pkg/config"
)

var (
	printOutput string
	printFormat bool
)

// printCmd prints the aggregated type definitions.
var printCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the aggregated schema",
	Long: `Build the schema from the configured modules and print the generated
type definitions. With --format the validated schema is printed in
canonical form instead.`,
	RunE: runPrint,
}

func init() {
	rootCmd.AddCommand(printCmd)

	printCmd.Flags().StringVarP(&printOutput, "output", "o", "", "write to file instead of stdout")
	printCmd.Flags().BoolVar(&printFormat, "format", false, "print the validated schema in canonical form")
}

// runPrint executes the print command.
//
// Parameters:
//   - cmd (*cobra.Command): the cobra command
//   - args ([]string): command arguments
//
// Returns:
//   - error: nil on success, build or write error on failure
func runPrint(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Database != "" {
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck // Error on close is not actionable in defer

		return printSchema(cmd, cfg, engine.Options{Store: db})
	}
	return printSchema(cmd, cfg, engine.Options{})
}

func printSchema(cmd *cobra.Command, cfg *config.Config, opts engine.Options) error {
	eng, err := engine.New(cfg, opts)
	if err != nil {
		return fmt.Errorf("building schema: %w", err)
	}

	var out io.Writer = cmd.OutOrStdout()
	if printOutput != "" {
		f, err := os.Create(printOutput)
		if err != nil {
			return fmt.Errorf("creating %s: %w", printOutput, err)
		}
		defer f.Close() //nolint:errcheck // Close error follows a successful write
		out = f
	}

	current := eng.Current()
	if printFormat {
		formatter.NewFormatter(out).FormatSchema(current.Schema.Document)
	} else if _, err := io.WriteString(out, current.TypeDefs); err != nil {
		return fmt.Errorf("writing schema: %w", err)
	}

	if printOutput != "" {
		log.Info().Str("output", printOutput).Strs("modules", current.Modules).Msg("schema written")
	}
	return nil
}
