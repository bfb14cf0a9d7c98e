package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mantonx/vcompress/internal/compress"
	"github.com/mantonx/vcompress/internal/config"
	"github.com/mantonx/vcompress/internal/ffmpeg"
	"github.com/mantonx/vcompress/internal/jobs"
	"github.com/mantonx/vcompress/internal/watermark"
	"github.com/spf13/cobra"
)

var (
	flagSize          string
	flagType          string
	flagFPS           float64
	flagKeepPartial   bool
	flagWatermark     string
	flagWatermarkRect string
	flagSoundtrack    string
)

var compressCmd = &cobra.Command{
	Use:   "compress <input> [output]",
	Short: "Compress one video",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		exportCfg, err := exportConfig(cmd, cfg.Compression)
		if err != nil {
			return err
		}

		var output string
		if len(args) == 2 {
			output = args[1]
		}

		opts, err := compressOptions(cmd, cfg)
		if err != nil {
			return err
		}

		ctx, stop := exportContext(cmd.Context())
		defer stop()

		c, err := compress.New(ctx, args[0], output, exportCfg, opts...)
		if err != nil {
			return err
		}

		res := c.ExportSync(ctx, printProgress)
		fmt.Fprintln(os.Stderr)
		if res.Err != nil {
			return res.Err
		}
		if res.Skipped {
			rootLogger().Info("input already small enough, nothing written", "input", args[0])
		}
		fmt.Println(res.OutputPath)
		return nil
	},
}

func init() {
	addExportFlags(compressCmd)
	compressCmd.Flags().BoolVar(&flagKeepPartial, "keep-partial", false, "keep the partial output of a failed or cancelled export")
	compressCmd.Flags().StringVar(&flagWatermark, "watermark", "", "image (png, jpeg, webp) to overlay on the video")
	compressCmd.Flags().StringVar(&flagWatermarkRect, "watermark-rect", "", "watermark rectangle x,y,w,h in render pixels (default: bottom right)")
	compressCmd.Flags().StringVar(&flagSoundtrack, "soundtrack", "", "audio file that replaces the source audio")
}

func addExportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagSize, "size", "", "target size: 640x480, 960x540, 1280x720, 1920x1080, 3840x2160")
	cmd.Flags().StringVar(&flagType, "type", "", "output container: mp4 or mov")
	cmd.Flags().Float64Var(&flagFPS, "fps", 0, "frame-rate ceiling")
}

// exportConfig applies the export flags that were set on top of the
// configured defaults.
func exportConfig(cmd *cobra.Command, cc config.CompressionConfig) (compress.Configuration, error) {
	if cmd.Flags().Changed("size") {
		cc.VideoSize = flagSize
	}
	if cmd.Flags().Changed("type") {
		cc.FileType = flagType
	}
	if cmd.Flags().Changed("fps") {
		cc.FrameRate = flagFPS
	}
	return jobs.ExportConfiguration(cc)
}

// compressOptions wires the ffmpeg backend plus the optional watermark,
// soundtrack and cleanup flags.
func compressOptions(cmd *cobra.Command, cfg *config.Config) ([]compress.Option, error) {
	log := rootLogger()
	opts := append(ffmpeg.Options(cfg.FFmpeg, log), compress.WithLogger(log))

	keep := cfg.Compression.KeepPartialOutput
	if cmd.Flags().Changed("keep-partial") {
		keep = flagKeepPartial
	}
	if keep {
		opts = append(opts, compress.WithCleanupPolicy(compress.KeepPartialOutput))
	}

	if flagWatermark != "" {
		layout, err := watermarkLayout(flagWatermark, flagWatermarkRect)
		if err != nil {
			return nil, err
		}
		opts = append(opts, compress.WithWatermark(flagWatermark, layout))
	}

	if flagSoundtrack != "" {
		opts = append(opts, compress.WithSoundtrack(flagSoundtrack))
	}
	return opts, nil
}

func watermarkLayout(image, rect string) (compress.WatermarkLayout, error) {
	if rect != "" {
		r, err := watermark.ParseRect(rect)
		if err != nil {
			return nil, err
		}
		return watermark.Fixed(r), nil
	}

	size, err := watermark.ImageSize(image)
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark: %w", err)
	}
	return watermark.BottomRight(size, 0.2, 16), nil
}

// exportContext cancels on SIGINT or SIGTERM.
func exportContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
