package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pradyumna-smpx/gqutils/internal/api"
	"github.com/pradyumna-smpx/gqutils/internal/engine"
	"github.com/pradyumna-smpx/gqutils/internal/store"
	"github.com/pradyumna-smpx/gqutils/internal/watcher"
	"github.com/pradyumna-smpx/gqutils/pkg/config"
)

// watchGroup is the watcher group holding the config and module files.
const watchGroup = "schema"

var watchMode bool

// serveCmd serves the aggregated schema.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the aggregated GraphQL schema",
	Long: `Build the schema from the configured modules and serve it over
HTTP and graphql-ws websockets. Prometheus metrics are served on the
metrics port.

Use --watch for development mode: changes to the config file or any
module file rebuild the schema without dropping connections.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "enable watch mode for development")
}

// runServe executes the serve command.
//
// Parameters:
//   - cmd (*cobra.Command): the cobra command
//   - args ([]string): command arguments
//
// Returns:
//   - error: nil on success, startup error on failure
func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log.Info().
		Str("name", cfg.Name).
		Strs("modules", cfg.Modules).
		Bool("watch", watchMode).
		Msg("starting gqutils")

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	var db *store.Store
	if cfg.Database != "" {
		db, err = openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck // Error on close is not actionable in defer
	} else {
		log.Warn().Msg("no database configured, database modules are unavailable")
	}

	eng, err := engine.New(cfg, engine.Options{Store: db})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	apiServer := api.NewServer(cfg, eng)

	// Run all services concurrently
	g, gctx := errgroup.WithContext(ctx)

	if watchMode {
		fileWatcher, err := setupWatchMode(eng)
		if err != nil {
			return fmt.Errorf("setting up watch mode: %w", err)
		}
		defer func() {
			if err := fileWatcher.Close(); err != nil {
				log.Error().Err(err).Msg("error closing watcher")
			}
		}()

		g.Go(func() error {
			return fileWatcher.Start()
		})

		// Stop watcher on context cancellation
		go func() {
			<-gctx.Done()
			_ = fileWatcher.Close()
		}()
	}

	g.Go(func() error {
		if err := eng.Run(gctx); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := apiServer.Start(gctx); err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := apiServer.StartMetrics(gctx); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("service error")
	}

	log.Info().Msg("gqutils stopped")
	return nil
}

// setupWatchMode initializes file watching for hot-reload. The config file
// and every module file of the current build form one group, which is
// replaced after each successful reload so added or removed module files
// are tracked.
//
// Parameters:
//   - eng (*engine.Engine): engine instance to reload
//
// Returns:
//   - *watcher.Watcher: configured file watcher
//   - error: nil on success, setup error on failure
func setupWatchMode(eng *engine.Engine) (*watcher.Watcher, error) {
	fileWatcher, err := watcher.New(watcher.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	// Mutex to prevent concurrent reloads
	var reloadMu sync.Mutex

	var reload func()
	watchFiles := func() error {
		return fileWatcher.WatchGroup(watchGroup, watchedFiles(eng), reload)
	}

	reload = func() {
		reloadMu.Lock()
		defer reloadMu.Unlock()

		log.Info().Msg("schema files changed, reloading...")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				log.Error().Err(err).Msg("failed to read config file")
				return
			}
		}

		newCfg, err := config.Load()
		if err != nil {
			log.Error().Err(err).Msg("failed to reload config")
			return
		}

		if err := eng.Reload(newCfg); err != nil {
			log.Error().Err(err).Msg("failed to reload schema, keeping previous schema")
			return
		}

		if err := watchFiles(); err != nil {
			log.Error().Err(err).Msg("failed to update watched files")
		}

		log.Info().Msg("hot-reload complete")
	}

	if err := watchFiles(); err != nil {
		_ = fileWatcher.Close()
		return nil, fmt.Errorf("watching schema files: %w", err)
	}

	log.Info().Msg("watch mode enabled - config and module changes will hot-reload")

	return fileWatcher, nil
}

// watchedFiles returns the config file, when one was read, and the module
// files of the current build.
func watchedFiles(eng *engine.Engine) []string {
	files := eng.Files()
	if used := viper.ConfigFileUsed(); used != "" {
		files = append(files, used)
	}
	return files
}
