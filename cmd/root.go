// Package cmd provides the templc command-line interface.
//
// Configuration is read, lowest precedence first, from .templc.yml (or the
// file named by --config or TEMPLC_CONFIG_FILE), from TEMPLC_<SECTION>_<OPTION>
// environment variables and from command-line flags:
//
//	TEMPLC_CATALOG_SOURCE=http TEMPLC_CATALOG_URL=https://cdn.example/modules templc compile ./app
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "templc",
	Short: "Compile .tmpl components into loadable modules",
	Long: `templc compiles batches of .tmpl components into a single module and
reports every templating and Go diagnostic against the original source lines.

Quick Start:
  templc compile ./components --out app.mod   Compile a directory
  templc catalog                              List reference modules
  templc serve                                Start the HTTP playground
  templc watch ./components --out app.mod     Recompile on change`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Commands see a context that is cancelled on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .templc.yml, can also use TEMPLC_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("catalog-url", "", "fetch reference modules from this URL instead of the embedded library")
	rootCmd.PersistentFlags().Int("jobs", 0, "maximum parallel transpilations (default GOMAXPROCS)")
	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"log-level":   "log.level",
		"catalog-url": "catalog.url",
		"jobs":        "compile.jobs",
	})
}

// initConfig selects the config file and enables TEMPLC_ environment
// overrides. A missing file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("TEMPLC_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".templc")
	}

	viper.SetEnvPrefix("TEMPLC")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
