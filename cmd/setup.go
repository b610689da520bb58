package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/templc/internal/catalog"
	"github.com/conneroisu/templc/internal/config"
	"github.com/conneroisu/templc/internal/errors"
	"github.com/conneroisu/templc/internal/logging"
	"github.com/conneroisu/templc/internal/pipeline"
)

// bindFlags binds each named flag in fs to its configuration key.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if f := fs.Lookup(name); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}

// loadConfig reads the merged configuration. --catalog-url implies the
// http catalog source.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if f := cmd.Flags().Lookup("catalog-url"); f != nil && f.Changed {
		viper.Set("catalog.source", config.SourceHTTP)
	}
	return config.Load()
}

func newLogger(cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	if cfg.Log.Format != "" {
		lc.Format = cfg.Log.Format
	}
	return logging.NewLogger(lc), nil
}

// openCatalog fetches the reference modules named by the catalog section.
func openCatalog(ctx context.Context, cfg *config.Config, logger logging.Logger) (*catalog.Catalog, error) {
	fetch := catalog.EmbeddedFetcher()
	if cfg.Catalog.Source == config.SourceHTTP {
		fetch = catalog.HTTPFetcher(cfg.Catalog.URL, &http.Client{Timeout: cfg.Catalog.Timeout})
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Catalog.Timeout)
	defer cancel()
	cat, err := catalog.Initialize(ctx, fetch,
		catalog.WithRoots(cfg.Catalog.Roots...),
		catalog.WithLogger(logger))
	if err != nil {
		return nil, catalogHint(cfg, err)
	}
	return cat, nil
}

// catalogHint tells the user where a failed fetch went.
func catalogHint(cfg *config.Config, err error) error {
	if !errors.IsNetworkError(err) {
		return err
	}
	if cfg.Catalog.Source == config.SourceHTTP {
		return fmt.Errorf("%w\nhint: check that %s serves the catalog, or set catalog.source to %s",
			err, cfg.Catalog.URL, config.SourceEmbedded)
	}
	return fmt.Errorf("%w\nhint: the embedded catalog has %v", err, catalog.EmbeddedModules())
}

// compileOptions maps the compile section onto pipeline options.
func compileOptions(cfg *config.Config, logger logging.Logger, extra ...pipeline.Option) []pipeline.Option {
	c := cfg.Compile
	opts := []pipeline.Option{
		pipeline.WithPackage(c.PackagePath, c.PackageName),
		pipeline.WithRoot(c.RootPath, c.RootRoute),
		pipeline.WithJobs(c.Jobs),
		pipeline.WithLogger(logger),
	}
	return append(opts, extra...)
}

// environment bundles what every compiling command needs.
type environment struct {
	cfg     *config.Config
	logger  logging.Logger
	catalog *catalog.Catalog
}

func setup(cmd *cobra.Command) (*environment, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	cat, err := openCatalog(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	return &environment{cfg: cfg, logger: logger, catalog: cat}, nil
}
