package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/vcompress/internal/config"
	"github.com/mantonx/vcompress/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "vcompress",
	Short:         "vcompress - shrink videos for sharing",
	Long:          "Re-encodes videos to a smaller resolution, frame rate and bitrate, as a one-shot CLI or as a job service.",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = os.Getenv("VCOMPRESS_CONFIG_PATH")
		}
		if path == "" {
			if _, err := os.Stat("./vcompress.yaml"); err == nil {
				path = "./vcompress.yaml"
			}
		}

		if err := config.Load(path); err != nil {
			return err
		}

		cfg := config.Get()
		level := cfg.Logging.Level
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		logger.SetDefault(logger.New(logger.Options{
			Level:  level,
			Format: cfg.Logging.Format,
		}))
		if path != "" {
			logger.Default().Debug("configuration loaded", "path", path)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./vcompress.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(serveCmd)
}

func rootLogger() hclog.Logger {
	return logger.Default()
}

// printProgress renders an in-place percentage on stderr.
func printProgress(p float64) {
	fmt.Fprintf(os.Stderr, "\r%5.1f%%", p*100)
}
