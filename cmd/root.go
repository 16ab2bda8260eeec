package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/proxsuit/internal/config"
)

var (
	cfg *config.Config

	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "proxsuit",
	Short: "Proximity suitability rasters",
	Long:  "Scores every cell of a study area into nine suitability classes by its distance to a variable layer, using the distance statistics measured under a reference layer.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyLogFlags(cmd, &c.Log)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// applyLogFlags lets --log-level and --log-format override the config file
// and PROXSUIT_LOG_* environment.
func applyLogFlags(cmd *cobra.Command, lc *config.LogConfig) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		lc.Level = logLevel
	}
	if flags.Changed("log-format") {
		lc.Format = logFormat
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "console", "log format (console or json)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
