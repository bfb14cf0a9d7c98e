package main

import (
	"fmt"
	"os"

	"github.com/mantonx/vcompress/internal/compress"
	"github.com/mantonx/vcompress/internal/config"
	"github.com/mantonx/vcompress/internal/dispatch"
	"github.com/mantonx/vcompress/internal/jobs"
	"github.com/spf13/cobra"
)

var (
	flagOutputDir   string
	flagConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch <input>...",
	Short: "Compress several videos; the first failure cancels the rest",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		exportCfg, err := exportConfig(cmd, cfg.Compression)
		if err != nil {
			return err
		}

		outputDir := flagOutputDir
		if outputDir == "" {
			outputDir = cfg.Jobs.OutputDir
		}
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		requests := make([]jobs.Request, len(args))
		for i, in := range args {
			requests[i] = jobs.Request{
				InputPath:  in,
				OutputPath: compress.DefaultOutputPath(in, outputDir, exportCfg.FileType),
				Config:     exportCfg,
			}
		}

		opts, err := compressOptions(cmd, cfg)
		if err != nil {
			return err
		}

		ctx, stop := exportContext(cmd.Context())
		defer stop()

		queue := dispatch.NewQueue()
		defer queue.Stop()

		concurrency := flagConcurrency
		if concurrency < 1 {
			concurrency = cfg.Jobs.MaxConcurrent
		}

		outputs, err := jobs.RunBatch(ctx, requests, jobs.CompressorRunner(opts...),
			jobs.WithConcurrency(concurrency),
			jobs.WithBatchDispatcher(queue),
			jobs.WithBatchLogger(rootLogger()),
			jobs.WithBatchProgress(printProgress),
		)
		queue.Flush()
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}

		for _, out := range outputs {
			fmt.Println(out)
		}
		return nil
	},
}

func init() {
	addExportFlags(batchCmd)
	batchCmd.Flags().StringVar(&flagOutputDir, "output-dir", "", "directory for the outputs (default: jobs.output_dir)")
	batchCmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "exports to run at once (default: jobs.max_concurrent)")
}
