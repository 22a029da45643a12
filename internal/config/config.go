// Package config loads the service configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gridapi/gridapi/internal/codec"
)

// Config is the service configuration. Zero values fall back to Default.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// Database is the SQLite database path.
	Database string `yaml:"database"`

	// SchemaDir holds the CUE table declarations.
	SchemaDir string `yaml:"schema_dir"`

	// DefaultLimit applies when a list request carries no limit parameter.
	DefaultLimit int `yaml:"default_limit"`

	// ForeignKeyNaming selects the response key for reference fields:
	// "field" (owner) or "db_field" (owner_id).
	ForeignKeyNaming string `yaml:"foreign_key_naming"`

	// EnableTruncate exposes the truncate endpoint. Off by default; it
	// destroys whole tables.
	EnableTruncate bool `yaml:"enable_truncate"`

	// Gzip compresses responses.
	Gzip bool `yaml:"gzip"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:           ":8080",
		Database:         "gridapi.db",
		SchemaDir:        "schema",
		DefaultLimit:     50,
		ForeignKeyNaming: string(codec.FKFieldName),
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field values that have a closed domain.
func (c Config) Validate() error {
	switch codec.ForeignKeyNaming(c.ForeignKeyNaming) {
	case codec.FKFieldName, codec.FKDBFieldName:
	default:
		return fmt.Errorf("invalid foreign_key_naming %q: want %q or %q",
			c.ForeignKeyNaming, codec.FKFieldName, codec.FKDBFieldName)
	}
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("invalid default_limit %d: must be positive", c.DefaultLimit)
	}
	return nil
}

// FKNaming returns the typed naming policy.
func (c Config) FKNaming() codec.ForeignKeyNaming {
	return codec.ForeignKeyNaming(c.ForeignKeyNaming)
}
