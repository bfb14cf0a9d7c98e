package main

import (
	"encoding/json"
	"os"

	"github.com/mantonx/vcompress/internal/compress"
	"github.com/mantonx/vcompress/internal/config"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe <input>",
	Short: "Print the export plan for a video without encoding it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		exportCfg, err := exportConfig(cmd, cfg.Compression)
		if err != nil {
			return err
		}

		opts, err := compressOptions(cmd, cfg)
		if err != nil {
			return err
		}

		c, err := compress.New(cmd.Context(), args[0], "", exportCfg, opts...)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(c.Plan(cmd.Context()))
	},
}

func init() {
	addExportFlags(probeCmd)
}
