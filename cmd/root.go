package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crc-cores/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "crc-cores",
	Short: "Build the CRC cores collection from core intervals and their context",
	Long: "crc-cores groups the interval rows of cores_raw into one record per well (Lib Num), " +
		"attaches the CRCWC report URL from cores_from_mapserver, documents and images from " +
		"scraped_web_pages and surface geology from gmu_context, and replaces the cores " +
		"collection with the result. Every run is kept in the run log.\n\n" +
		"Configuration comes from config.yaml in the working directory and CRC_* environment variables.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "crc-cores: load config")
		}
		cfg = c
		applyLogFlags(cmd, &cfg.Log)

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "crc-cores: init logger")
		}
		zap.ReplaceGlobals(zap.L().With(zap.String("command", cmd.CommandPath())))
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

// applyLogFlags lets --log-level and --log-format override the config for
// one invocation.
func applyLogFlags(cmd *cobra.Command, lc *config.LogConfig) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		lc.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		lc.Format, _ = flags.GetString("log-format")
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error (default from config)")
	rootCmd.PersistentFlags().String("log-format", "", "json or console (default from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
