// Package config consolidates the engine's runtime settings into one
// struct, grounded the way the pack's forma.Config groups settings into
// DatabaseConfig/QueryConfig/LoggingConfig sections with a DefaultConfig
// constructor and a Validate pass, rather than scattering flags or env
// lookups through the engine itself.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the engine's full runtime configuration.
type Config struct {
	Database DatabaseConfig
	Space    SpaceConfig
	Query    QueryConfig
	Cache    CacheConfig
	Logging  LoggingConfig
}

// DatabaseConfig is the Postgres connection the relstore package pools
// against.
type DatabaseConfig struct {
	DSN             string
	MaxConnections  int32
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// SpaceConfig names the logical RDF space (SPEC_FULL.md §4.1) the engine
// serves; relstore.NewSpaceSchema derives physical table names from it.
type SpaceConfig struct {
	Prefix  string
	SpaceID string
}

// QueryConfig bounds query execution.
type QueryConfig struct {
	DefaultTimeout time.Duration
	MaxPathDepth   int
	MaxRows        int
}

// CacheConfig sizes the term cache and its optional on-disk spill.
type CacheConfig struct {
	MaxTermCacheSize int
	BadgerDir        string
	VocabularyPrefix string
}

// LoggingConfig controls the zap logger the engine and translator share.
type LoggingConfig struct {
	Level       string
	Development bool
}

// DefaultConfig returns the engine's baseline configuration, the values a
// local `cmd/sparqlrel demo` run against a scratch Postgres database uses
// when nothing overrides them.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             "postgres://localhost:5432/sparqlrel?sslmode=disable",
			MaxConnections:  10,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  5 * time.Second,
		},
		Space: SpaceConfig{
			Prefix:  "rq",
			SpaceID: "default",
		},
		Query: QueryConfig{
			DefaultTimeout: 30 * time.Second,
			MaxPathDepth:   10,
			MaxRows:        100_000,
		},
		Cache: CacheConfig{
			MaxTermCacheSize: 500_000,
			VocabularyPrefix: "",
		},
		Logging: LoggingConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// FromEnv overlays environment variables onto DefaultConfig, the way the
// teacher's cmd/trigo took everything from os.Args rather than a config
// file: here the handful of settings a deployment actually needs to change
// (connection string, space identity, cache sizing) come from the
// environment instead, with DefaultConfig's values as fallback.
func FromEnv() *Config {
	c := DefaultConfig()
	if v := os.Getenv("SPARQLREL_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("SPARQLREL_SPACE_PREFIX"); v != "" {
		c.Space.Prefix = v
	}
	if v := os.Getenv("SPARQLREL_SPACE_ID"); v != "" {
		c.Space.SpaceID = v
	}
	if v := os.Getenv("SPARQLREL_MAX_PATH_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Query.MaxPathDepth = n
		}
	}
	if v := os.Getenv("SPARQLREL_BADGER_DIR"); v != "" {
		c.Cache.BadgerDir = v
	}
	if v := os.Getenv("SPARQLREL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return c
}

// Validate rejects a configuration the engine cannot run with.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return &ConfigError{Field: "database.dsn", Message: "must not be empty"}
	}
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}
	if c.Space.Prefix == "" || c.Space.SpaceID == "" {
		return &ConfigError{Field: "space", Message: "prefix and spaceID must both be set"}
	}
	if c.Query.MaxPathDepth <= 0 {
		return &ConfigError{Field: "query.maxPathDepth", Message: "must be greater than 0"}
	}
	if c.Query.MaxRows <= 0 {
		return &ConfigError{Field: "query.maxRows", Message: "must be greater than 0"}
	}
	return nil
}

// ConfigError reports which field failed validation.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: field %q: %s", e.Field, e.Message)
}
