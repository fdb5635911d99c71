// Package config loads kvorm settings from an optional YAML file and turns
// them into an opened store and repository options.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/roach88/kvorm/internal/keys"
	"github.com/roach88/kvorm/internal/orm"
	"github.com/roach88/kvorm/internal/store"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config is the full settings tree.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Keys       KeysConfig       `yaml:"keys"`
	Repository RepositoryConfig `yaml:"repository"`
}

// StoreConfig selects and addresses a backend.
type StoreConfig struct {
	// Driver is one of memory, sqlite or redis.
	Driver string `yaml:"driver"`

	// Path is the SQLite database file (":memory:" for a private one).
	Path string `yaml:"path"`

	// Addr, Password and DB address a Redis server.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KeysConfig controls key naming.
type KeysConfig struct {
	Delimiter string `yaml:"delimiter"`
}

// RepositoryConfig mirrors the repository options.
type RepositoryConfig struct {
	WriteMode    string `yaml:"write_mode"`
	StaleCleanup bool   `yaml:"stale_cleanup"`
	Atomic       bool   `yaml:"atomic"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver: DriverSQLite,
			Path:   "kvorm.db",
			Addr:   "localhost:6379",
		},
		Keys:       KeysConfig{Delimiter: keys.DefaultDelimiter},
		Repository: RepositoryConfig{WriteMode: orm.MergeWrite.String()},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the settings can be acted on.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case DriverRedis:
		if c.Store.Addr == "" {
			return fmt.Errorf("store.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("store.driver must be memory, sqlite or redis, got %q", c.Store.Driver)
	}

	if _, err := orm.ParseWriteMode(c.Repository.WriteMode); err != nil {
		return fmt.Errorf("repository.write_mode: %w", err)
	}
	return nil
}

// OpenStore opens the configured backend.
func (c Config) OpenStore(ctx context.Context) (store.Store, error) {
	switch c.Store.Driver {
	case DriverMemory:
		return store.NewMemory(), nil
	case DriverSQLite:
		return store.OpenSQLite(c.Store.Path)
	case DriverRedis:
		return store.DialRedis(ctx, &redis.Options{
			Addr:     c.Store.Addr,
			Password: c.Store.Password,
			DB:       c.Store.DB,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
}

// Naming returns the configured key strategy.
func (c Config) Naming() keys.Strategy {
	return keys.NewDelimited(c.Keys.Delimiter)
}

// RepositoryOptions converts the repository section into orm options.
func (c Config) RepositoryOptions(logger *slog.Logger) ([]orm.Option, error) {
	mode, err := orm.ParseWriteMode(c.Repository.WriteMode)
	if err != nil {
		return nil, err
	}
	return []orm.Option{
		orm.WithNaming(c.Naming()),
		orm.WithWriteMode(mode),
		orm.WithStaleCleanup(c.Repository.StaleCleanup),
		orm.WithAtomic(c.Repository.Atomic),
		orm.WithLogger(logger),
	}, nil
}
