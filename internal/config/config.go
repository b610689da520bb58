// Package config provides configuration management for templc using Viper
// for flexible loading from files, environment variables and flags.
//
// Configuration is read from .templc.yml (or the file named by --config or
// TEMPLC_CONFIG_FILE), overridden by TEMPLC_<SECTION>_<OPTION> environment
// variables and command-line flags. Defaults are applied after unmarshalling
// and the result is validated before use.
package config

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/templc/internal/errors"
)

// Catalog sources.
const (
	SourceEmbedded = "embedded"
	SourceHTTP     = "http"
)

type Config struct {
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog"`
	Compile CompileConfig `mapstructure:"compile" yaml:"compile"`
	Server  ServerConfig  `mapstructure:"server"  yaml:"server"`
	Log     LogConfig     `mapstructure:"log"     yaml:"log"`
}

// CatalogConfig selects where reference modules come from.
type CatalogConfig struct {
	Source  string        `mapstructure:"source"  yaml:"source"`
	URL     string        `mapstructure:"url"     yaml:"url"`
	Roots   []string      `mapstructure:"roots"   yaml:"roots"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// CompileConfig controls the generated package and the pipeline.
type CompileConfig struct {
	PackagePath string `mapstructure:"package_path" yaml:"package_path"`
	PackageName string `mapstructure:"package_name" yaml:"package_name"`
	RootPath    string `mapstructure:"root_path"    yaml:"root_path"`
	RootRoute   string `mapstructure:"root_route"   yaml:"root_route"`
	Jobs        int    `mapstructure:"jobs"         yaml:"jobs"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// RateLimit is compilations per minute per client; zero disables it.
	RateLimit int `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int `mapstructure:"burst"      yaml:"burst"`
	// CacheMB bounds the compile result cache; zero disables it.
	CacheMB int `mapstructure:"cache_mb" yaml:"cache_mb"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Catalog: CatalogConfig{
			Source:  SourceEmbedded,
			Roots:   []string{"templc/ui", "templc/runtime"},
			Timeout: 30 * time.Second,
		},
		Compile: CompileConfig{
			PackagePath: "templc.local/app",
			PackageName: "app",
			RootRoute:   "/",
		},
		Server: ServerConfig{
			Host:    "localhost",
			Port:    7331,
			CacheMB: 32,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, applies defaults and validates it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	registerKeys(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid,
			"failed to decode configuration").WithLocation(v.ConfigFileUsed(), 0)
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// registerKeys makes every option known to v with a zero value, so
// environment variables are seen by Unmarshal. Real defaults are applied
// afterwards by applyDefaults.
func registerKeys(v *viper.Viper) {
	for _, key := range []string{
		"catalog.source", "catalog.url",
		"compile.package_path", "compile.package_name", "compile.root_path", "compile.root_route",
		"server.host",
		"log.level", "log.format",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("catalog.roots", []string{})
	v.SetDefault("catalog.timeout", time.Duration(0))
	v.SetDefault("compile.jobs", 0)
	v.SetDefault("server.port", 0)
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.burst", 0)
	v.SetDefault("server.cache_mb", Defaults().Server.CacheMB)
}

func applyDefaults(config *Config) {
	def := Defaults()

	if config.Catalog.Source == "" {
		config.Catalog.Source = def.Catalog.Source
	}
	if len(config.Catalog.Roots) == 0 {
		config.Catalog.Roots = def.Catalog.Roots
	}
	if config.Catalog.Timeout == 0 {
		config.Catalog.Timeout = def.Catalog.Timeout
	}

	if config.Compile.PackagePath == "" {
		config.Compile.PackagePath = def.Compile.PackagePath
	}
	if config.Compile.PackageName == "" {
		config.Compile.PackageName = path.Base(config.Compile.PackagePath)
	}
	if config.Compile.RootRoute == "" {
		config.Compile.RootRoute = def.Compile.RootRoute
	}

	if config.Server.Host == "" {
		config.Server.Host = def.Server.Host
	}
	if config.Server.Port == 0 {
		config.Server.Port = def.Server.Port
	}

	if config.Log.Level == "" {
		config.Log.Level = def.Log.Level
	}
	if config.Log.Format == "" {
		config.Log.Format = def.Log.Format
	}
}

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	if err := validateCatalogConfig(&config.Catalog); err != nil {
		return fmt.Errorf("catalog config: %w", err)
	}

	if err := validateCompileConfig(&config.Compile); err != nil {
		return fmt.Errorf("compile config: %w", err)
	}

	if config.Server.Port < 0 || config.Server.Port > 65535 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Server.Port))
	}

	if config.Server.RateLimit < 0 || config.Server.Burst < 0 || config.Server.CacheMB < 0 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "rate_limit, burst and cache_mb must not be negative")
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("log format %q is not one of text, json", config.Log.Format))
	}

	return nil
}

func validateCatalogConfig(config *CatalogConfig) error {
	switch config.Source {
	case SourceEmbedded:
	case SourceHTTP:
		u, err := url.Parse(config.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("catalog url %q is not an absolute URL", config.URL))
		}
	default:
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("catalog source %q is not one of embedded, http", config.Source))
	}

	for _, root := range config.Roots {
		if strings.TrimSpace(root) == "" {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid, "catalog root names must not be empty")
		}
	}

	return nil
}

func validateCompileConfig(config *CompileConfig) error {
	if !isIdentifier(config.PackageName) {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("package_name %q is not a Go identifier", config.PackageName))
	}

	if config.Jobs < 0 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("jobs must not be negative, got %d", config.Jobs))
	}

	if config.RootPath != "" && strings.Contains(config.RootPath, "..") {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("root_path contains traversal: %s", config.RootPath))
	}

	if !strings.HasPrefix(config.RootRoute, "/") {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("root_route %q must start with /", config.RootRoute))
	}

	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
