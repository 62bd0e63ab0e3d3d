// Package config loads the gqutils configuration.
//
// Configuration comes from gqutils.yaml and GQUTILS_ prefixed environment
// variables, read through viper by the command line entrypoint.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/pradyumna-smpx/gqutils/pkg/executable"
)

// Config is the complete gqutils configuration.
type Config struct {
	// Name identifies the deployment in logs.
	Name string `mapstructure:"name"`

	// Database is the PostgreSQL DSN. Modules needing a database are
	// unavailable when empty.
	Database string `mapstructure:"database"`

	// BaseFolder resolves relative module paths. Defaults to the working
	// directory.
	BaseFolder string `mapstructure:"baseFolder"`

	// Modules lists registered module names or module paths in
	// aggregation order.
	Modules []string `mapstructure:"modules"`

	Server ServerConfig `mapstructure:"server"`
	Schema SchemaConfig `mapstructure:"schema"`
	Store  StoreConfig  `mapstructure:"store"`
}

// ServerConfig configures the HTTP servers.
type ServerConfig struct {
	GraphQLPort    int      `mapstructure:"graphqlPort"`
	MetricsPort    int      `mapstructure:"metricsPort"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// SchemaConfig configures the schema builder.
type SchemaConfig struct {
	AllowUndefinedInResolve      bool `mapstructure:"allowUndefinedInResolve"`
	RequireResolversForArgs      bool `mapstructure:"requireResolversForArgs"`
	RequireResolversForNonScalar bool `mapstructure:"requireResolversForNonScalar"`
	RequireResolversForAllFields bool `mapstructure:"requireResolversForAllFields"`
	AllowResolversNotInSchema    bool `mapstructure:"allowResolversNotInSchema"`
}

// StoreConfig configures the database connection pool.
type StoreConfig struct {
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

// Executable converts the schema settings into builder options.
//
// Returns:
//   - executable.Options: builder options without a logger
func (c SchemaConfig) Executable() executable.Options {
	return executable.Options{
		AllowUndefinedInResolve: c.AllowUndefinedInResolve,
		ResolverValidation: executable.ResolverValidation{
			RequireResolversForArgs:      c.RequireResolversForArgs,
			RequireResolversForNonScalar: c.RequireResolversForNonScalar,
			RequireResolversForAllFields: c.RequireResolversForAllFields,
			AllowResolversNotInSchema:    c.AllowResolversNotInSchema,
		},
	}
}

// SetDefaults registers the default values on v.
//
// Parameters:
//   - v (*viper.Viper): viper instance
func SetDefaults(v *viper.Viper) {
	v.SetDefault("name", "gqutils")
	v.SetDefault("database", "")
	v.SetDefault("baseFolder", "")
	v.SetDefault("modules", []string{"system"})
	v.SetDefault("server.graphqlPort", 8080)
	v.SetDefault("server.metricsPort", 9090)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("store.maxOpenConns", 25)
	v.SetDefault("store.maxIdleConns", 5)
	v.SetDefault("store.connMaxLifetime", 5*time.Minute)
}

// Load reads the configuration from the global viper instance.
//
// Returns:
//   - *Config: validated configuration
//   - error: nil on success, decode or validation error on failure
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v.
//
// Parameters:
//   - v (*viper.Viper): viper instance holding the raw settings
//
// Returns:
//   - *Config: validated configuration
//   - error: nil on success, decode or validation error on failure
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for consistency.
//
// Returns:
//   - error: nil if valid, joined description of every problem otherwise
func (c *Config) Validate() error {
	var errs []error

	if len(c.Modules) == 0 {
		errs = append(errs, errors.New("at least one module is required"))
	}
	for i, m := range c.Modules {
		if m == "" {
			errs = append(errs, fmt.Errorf("modules[%d] is empty", i))
		}
	}

	if !validPort(c.Server.GraphQLPort) {
		errs = append(errs, fmt.Errorf("server.graphqlPort %d out of range", c.Server.GraphQLPort))
	}
	if !validPort(c.Server.MetricsPort) {
		errs = append(errs, fmt.Errorf("server.metricsPort %d out of range", c.Server.MetricsPort))
	}
	if c.Server.GraphQLPort == c.Server.MetricsPort {
		errs = append(errs, errors.New("server.graphqlPort and server.metricsPort must differ"))
	}

	if c.Store.MaxOpenConns < 0 || c.Store.MaxIdleConns < 0 || c.Store.ConnMaxLifetime < 0 {
		errs = append(errs, errors.New("store settings must not be negative"))
	}

	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
