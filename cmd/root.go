package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/claimsift/claimsift/internal/config"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var (
	cfg      *config.Config
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:     "claimsift",
	Short:   "Claim verification pipeline",
	Long:    "Discovers sources for a factual claim, fetches and extracts the articles, classifies each one's stance via an LLM oracle, and assembles a verdict report.",
	Version: version,

	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { _ = zap.L().Sync() },
}

// setup loads config and installs the global logger before any subcommand
// runs.
func setup(*cobra.Command, []string) error {
	c, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "load config")
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	cfg = c

	return eris.Wrap(config.InitLogger(cfg.Log), "init logger")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override configured log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
