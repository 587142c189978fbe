package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfg      *config.Config
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:     "lead-enricher",
	Short:   "Lead enrichment service",
	Long:    "Researches a prospect, analyzes the findings and drafts a personalized outreach message. Each profile URL is enriched exactly once.",
	Version: version,
	// Usage on every RunE error buries the message for operational failures.
	SilenceUsage:      true,
	PersistentPreRunE: loadRuntime,
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

// loadRuntime reads configuration and installs the global logger before any
// subcommand runs.
func loadRuntime(cmd *cobra.Command, _ []string) error {
	c, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "load config")
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if err := config.InitLogger(c.Log); err != nil {
		return eris.Wrap(err, "init logger")
	}
	cfg = c

	zap.L().Debug("config loaded",
		zap.String("command", cmd.Name()),
		zap.String("version", version),
		zap.String("store", cfg.Store.Driver),
		zap.String("provider", cfg.Capability.Provider),
	)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
