package compress

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/vcompress/internal/dispatch"
)

// CleanupPolicy decides what happens to a partially written output file
// after a cancelled or failed export.
type CleanupPolicy int

const (
	// RemovePartialOutput deletes the output file.
	RemovePartialOutput CleanupPolicy = iota
	// KeepPartialOutput leaves the output file for the caller.
	KeepPartialOutput
)

// Outcome labels a finished export for metrics.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Recorder receives export telemetry.
type Recorder interface {
	ExportStarted()
	ExportFinished(outcome Outcome, elapsed time.Duration, outputBytes int64)
}

type nopRecorder struct{}

func (nopRecorder) ExportStarted() {}

func (nopRecorder) ExportFinished(Outcome, time.Duration, int64) {}

// Option configures a Compressor.
type Option func(*Compressor)

// WithBackend sets the reader/writer factory.
func WithBackend(b Backend) Option {
	return func(c *Compressor) { c.backend = b }
}

// WithAssetLoader sets how source and soundtrack assets are loaded.
func WithAssetLoader(l AssetLoader) Option {
	return func(c *Compressor) { c.loader = l }
}

// WithCapability sets the hardware HEVC decode query.
func WithCapability(fn Capability) Option {
	return func(c *Compressor) { c.capability = fn }
}

// WithDispatcher sets the context progress and completion callbacks run
// on. The default is dispatch.Main().
func WithDispatcher(d dispatch.Dispatcher) Option {
	return func(c *Compressor) { c.dispatcher = d }
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(c *Compressor) { c.logger = l }
}

// WithCleanupPolicy sets the partial output policy.
func WithCleanupPolicy(p CleanupPolicy) Option {
	return func(c *Compressor) { c.cleanup = p }
}

// WithRecorder sets the telemetry sink.
func WithRecorder(r Recorder) Option {
	return func(c *Compressor) { c.recorder = r }
}

// WithWatermark overlays an image at the rectangle layout returns for the
// render size.
func WithWatermark(imagePath string, layout WatermarkLayout) Option {
	return func(c *Compressor) {
		c.watermarkPath = imagePath
		c.watermarkLayout = layout
	}
}

// WithSoundtrack replaces the source audio with the first audio track of
// the file at path.
func WithSoundtrack(path string) Option {
	return func(c *Compressor) { c.soundtrackPath = path }
}

// WithMetadataReader sets how soundtrack tags are read into output
// metadata. Without one the output carries no soundtrack tags.
func WithMetadataReader(fn func(path string) (map[string]string, error)) Option {
	return func(c *Compressor) { c.readMetadata = fn }
}

func noHEVC(context.Context) bool { return false }
