package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/kvorm/internal/config"
	"github.com/roach88/kvorm/internal/meta"
	"github.com/roach88/kvorm/internal/orm"
	"github.com/roach88/kvorm/internal/schema"
	"github.com/roach88/kvorm/internal/store"
)

// ErrConfig marks errors from the config file or the store flags.
var ErrConfig = errors.New("config")

// LoadConfig reads the config file, if any, and applies the store flags
// over it.
func (o *RootOptions) LoadConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if o.Driver != "" {
		cfg.Store.Driver = o.Driver
	}
	if o.DBPath != "" {
		cfg.Store.Path = o.DBPath
	}
	if o.Addr != "" {
		cfg.Store.Addr = o.Addr
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return cfg, nil
}

// Logger returns a text logger on w. Verbose enables debug records, which
// include every index operation.
func (o *RootOptions) Logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// session is an opened store plus, for commands that take a schemas
// directory, the registry of declared types.
type session struct {
	cfg      config.Config
	store    store.Store
	registry *meta.Registry
	logger   *slog.Logger
}

// openSession loads the config and opens its store. schemasDir may be
// empty for commands that only address keys.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command, schemasDir string) (*session, error) {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: opts.Logger(cmd.ErrOrStderr())}
	if schemasDir != "" {
		if s.registry, err = loadRegistry(schemasDir); err != nil {
			return nil, err
		}
	}

	if s.store, err = cfg.OpenStore(ctx); err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	s.logger.Debug("store opened", "driver", cfg.Store.Driver)
	return s, nil
}

// loadRegistry compiles every entity in dir and fails on the first error.
func loadRegistry(dir string) (*meta.Registry, error) {
	res, errs := schema.Load(dir, schema.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return res.Registry, nil
}

// repository opens the repository for typeName with the configured options.
func (s *session) repository(typeName string) (*orm.Repository, error) {
	if s.registry == nil {
		return nil, errors.New("no schemas loaded")
	}
	opts, err := s.cfg.RepositoryOptions(s.logger)
	if err != nil {
		return nil, err
	}
	return orm.New(s.store, s.registry, typeName, opts...)
}

func (s *session) Close() error {
	return s.store.Close()
}
