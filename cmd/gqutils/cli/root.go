// Package cli implements the gqutils command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pradyumna-smpx/gqutils/internal/store"
	"github.com/pradyumna-smpx/gqutils/internal/version"
	"github.com/pradyumna-smpx/gqutils/pkg/config"

	// Register the built-in modules via init()
	_ "github.com/pradyumna-smpx/gqutils/internal/modules/audit"
	_ "github.com/pradyumna-smpx/gqutils/internal/modules/system"
)

var errNoDatabase = errors.New("no database configured")

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command for the gqutils CLI.
var rootCmd = &cobra.Command{
	Use:   "gqutils",
	Short: "Modular GraphQL schema server",
	Long: `gqutils aggregates GraphQL schema modules into one executable schema
and serves it over HTTP and graphql-ws websockets.

Modules are compiled-in registered modules or module files on disk
listed in gqutils.yaml.`,
	Version: version.String(),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage: true,
}

// Execute runs the root command.
//
// Returns:
//   - error: nil on success, command execution error on failure
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./gqutils.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("gqutils")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.gqutils")
	}

	// GQUTILS_SERVER_GRAPHQLPORT overrides server.graphqlPort
	viper.SetEnvPrefix("GQUTILS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		}
	}
}

// setupLogging configures zerolog based on verbosity.
func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Pretty console output for development
	if os.Getenv("GQUTILS_ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// openStore connects to the configured database.
//
// Parameters:
//   - cfg (*config.Config): loaded configuration with a non-empty Database
//
// Returns:
//   - *store.Store: connected store
//   - error: nil on success, connection error on failure
func openStore(cfg *config.Config) (*store.Store, error) {
	storeCfg := store.DefaultConfig()
	storeCfg.DSN = cfg.Database
	if cfg.Store.MaxOpenConns > 0 {
		storeCfg.MaxOpenConns = cfg.Store.MaxOpenConns
	}
	if cfg.Store.MaxIdleConns > 0 {
		storeCfg.MaxIdleConns = cfg.Store.MaxIdleConns
	}
	if cfg.Store.ConnMaxLifetime > 0 {
		storeCfg.ConnMaxLifetime = cfg.Store.ConnMaxLifetime
	}

	s, err := store.New(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return s, nil
}
