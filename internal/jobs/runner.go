package jobs

import (
	"context"

	"github.com/mantonx/vcompress/internal/compress"
	"github.com/mantonx/vcompress/internal/config"
	"github.com/mantonx/vcompress/internal/dispatch"
)

// Request describes one export.
type Request struct {
	InputPath string `json:"input"`
	// OutputPath may be empty; the compressor then writes next to the
	// input.
	OutputPath string                 `json:"output,omitempty"`
	Config     compress.Configuration `json:"config"`
}

// Runner performs one export and reports its outcome. progress receives
// values in [0,1].
type Runner func(ctx context.Context, req Request, progress func(float64)) compress.Result

// CompressorRunner runs each request through a new compressor built with
// opts. Callbacks are delivered inline on the export goroutine; callers
// that need serialization provide their own.
func CompressorRunner(opts ...compress.Option) Runner {
	return func(ctx context.Context, req Request, progress func(float64)) compress.Result {
		all := make([]compress.Option, 0, len(opts)+1)
		all = append(all, opts...)
		all = append(all, compress.WithDispatcher(dispatch.Inline{}))

		c, err := compress.New(ctx, req.InputPath, req.OutputPath, req.Config, all...)
		if err != nil {
			return compress.Result{Err: err}
		}
		return c.ExportSync(ctx, progress)
	}
}

// ExportConfiguration converts the compression section of the application
// configuration into an export target.
func ExportConfiguration(cc config.CompressionConfig) (compress.Configuration, error) {
	size, err := compress.ParseVideoSize(cc.VideoSize)
	if err != nil {
		return compress.Configuration{}, err
	}
	fileType, err := compress.ParseFileType(cc.FileType)
	if err != nil {
		return compress.Configuration{}, err
	}
	cfg := compress.Configuration{VideoSize: size, FileType: fileType, FrameRate: cc.FrameRate}
	return cfg, cfg.Validate()
}
