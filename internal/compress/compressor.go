// Package compress re-encodes a video file to a size, frame-rate and codec
// target. A Compressor plans the export (render geometry, output size,
// encoder settings), decides whether re-encoding is needed at all, and then
// pumps decoded samples from a Reader into a Writer on two goroutines, one
// per track, reporting weighted progress on a serialized dispatcher.
package compress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/vcompress/internal/dispatch"
	"github.com/mantonx/vcompress/internal/logger"
	"github.com/mantonx/vcompress/internal/media"
)

// Result is the terminal outcome of an export.
type Result struct {
	// OutputPath is the written file, or the input path when Skipped.
	OutputPath string
	Skipped    bool
	Err        error
}

// Plan summarizes what an export would do.
type Plan struct {
	InputPath        string          `json:"input_path"`
	OutputPath       string          `json:"output_path"`
	RenderSize       media.Size      `json:"render_size"`
	Transform        media.Transform `json:"transform"`
	TargetSize       media.Size      `json:"target_size"`
	ExportSize       media.Size      `json:"export_size"`
	NominalFrameRate float64         `json:"nominal_frame_rate"`
	FrameRate        int             `json:"frame_rate"`
	ShouldCompress   bool            `json:"should_compress"`
	HasAudio         bool            `json:"has_audio"`
	Video            VideoSettings   `json:"video"`
	Audio            AudioSettings   `json:"audio"`
}

type runState int

const (
	stateIdle runState = iota
	stateRunning
	stateDone
)

// progressStep is the smallest progress change forwarded to the callback.
const progressStep = 0.001

// Compressor exports one input file to one output file. It is single use:
// Export may be called once.
type Compressor struct {
	inputPath  string
	outputPath string
	config     Configuration
	comp       *Composition

	backend      Backend
	loader       AssetLoader
	capability   Capability
	dispatcher   dispatch.Dispatcher
	logger       hclog.Logger
	cleanup      CleanupPolicy
	recorder     Recorder
	readMetadata func(path string) (map[string]string, error)

	watermarkPath   string
	watermarkLayout WatermarkLayout
	soundtrackPath  string

	mu            sync.Mutex
	state         runState
	cancelRun     context.CancelFunc
	cancelled     atomic.Bool
	touchedOutput atomic.Bool
}

// New loads the input asset and assembles its composition. An empty
// outputPath places <name>_compressed<ext> next to the input.
func New(ctx context.Context, inputPath, outputPath string, cfg Configuration, opts ...Option) (*Compressor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg = cfg.withDefaults()

	if outputPath == "" {
		outputPath = DefaultOutputPath(inputPath, "", cfg.FileType)
	}

	c := &Compressor{
		inputPath:    inputPath,
		outputPath:   outputPath,
		config:       cfg,
		capability:   noHEVC,
		cleanup:      RemovePartialOutput,
		recorder:     nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dispatcher == nil {
		c.dispatcher = dispatch.Main()
	}
	c.logger = logger.OrDefault(c.logger).Named("compressor")

	if samePath(inputPath, outputPath) {
		return nil, newError(KindFailedToOpenDestination, "new", fmt.Errorf("output path %s is the input", outputPath))
	}
	if c.loader == nil {
		return nil, newError(KindFailedToLoadSource, "new", errors.New("no asset loader configured"))
	}

	asset, err := c.loader.Load(ctx, inputPath)
	if err != nil {
		return nil, newError(KindFailedToLoadSource, "load", err)
	}
	c.comp = NewComposition(asset, cfg)

	if c.soundtrackPath != "" {
		if err := c.replaceAudio(ctx); err != nil {
			return nil, err
		}
	}
	c.comp.AddWatermark(c.watermarkPath, c.watermarkLayout)

	c.logger.Debug("composition ready",
		"input", inputPath,
		"render_size", c.comp.Render.RenderSize,
		"frame_rate", c.comp.FrameRate,
		"has_audio", c.comp.HasAudio())

	return c, nil
}

func (c *Compressor) replaceAudio(ctx context.Context) error {
	src, err := c.loader.Load(ctx, c.soundtrackPath)
	if err != nil {
		return newError(KindFailedToLoadSource, "load_soundtrack", err)
	}
	if err := c.comp.ReplaceAudio(src); err != nil {
		return newError(KindFailedToLoadSource, "replace_audio", err)
	}

	if c.readMetadata != nil {
		tags, err := c.readMetadata(c.soundtrackPath)
		if err != nil {
			c.logger.Debug("soundtrack has no readable tags", "path", c.soundtrackPath, "error", err)
		}
		for k, v := range tags {
			c.comp.Metadata[k] = v
		}
	}
	return nil
}

// InputPath returns the source file.
func (c *Compressor) InputPath() string { return c.inputPath }

// OutputPath returns the destination file.
func (c *Compressor) OutputPath() string { return c.outputPath }

// Composition returns the assembled composition.
func (c *Compressor) Composition() *Composition { return c.comp }

// Plan computes the export plan without running it.
func (c *Compressor) Plan(ctx context.Context) Plan {
	target := c.config.VideoSize.Dimensions()
	render := c.comp.Render.RenderSize
	nominal := c.comp.NominalFrameRate(c.config.FrameRate)

	p := Plan{
		InputPath:        c.inputPath,
		OutputPath:       c.outputPath,
		RenderSize:       render,
		Transform:        c.comp.Render.Transform,
		TargetSize:       target,
		ExportSize:       PlanExportSize(render, target),
		NominalFrameRate: nominal,
		FrameRate:        c.comp.FrameRate,
		HasAudio:         c.comp.HasAudio(),
	}
	p.ShouldCompress = c.comp.HasVideo() && ShouldCompress(render, target, nominal, c.config.FrameRate)

	if p.ShouldCompress {
		p.Video = BuildVideoSettings(p.ExportSize, c.comp.Video.EstimatedDataRate, c.comp.FrameRate, c.capability(ctx))
		p.Audio = DefaultAudioSettings()
	}
	return p
}

// Export runs the export asynchronously. progress (optional) receives
// values in [0,1]; completion receives the single terminal Result. Both run
// on the dispatcher.
func (c *Compressor) Export(progress func(float64), completion func(Result)) {
	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		c.dispatcher.Dispatch(func() {
			if completion != nil {
				completion(Result{Err: newError(KindUnderlying, "export", ErrExportStarted)})
			}
		})
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.state = stateRunning
	c.cancelRun = cancel
	c.mu.Unlock()

	go c.run(ctx, progress, completion)
}

// ExportSync runs Export and waits for the outcome. Cancelling ctx cancels
// the export. It must not be called from the dispatcher's own goroutine.
func (c *Compressor) ExportSync(ctx context.Context, progress func(float64)) Result {
	results := make(chan Result, 1)
	c.Export(progress, func(r Result) { results <- r })

	select {
	case r := <-results:
		return r
	case <-ctx.Done():
		c.Cancel()
		return <-results
	}
}

// Cancel stops feeding samples. It has no effect before Export or after
// the outcome was delivered.
func (c *Compressor) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateRunning {
		return
	}
	c.cancelled.Store(true)
	c.cancelRun()
	c.logger.Info("export cancel requested", "input", c.inputPath)
}

func (c *Compressor) run(ctx context.Context, progress func(float64), completion func(Result)) {
	start := time.Now()
	c.recorder.ExportStarted()

	plan := c.Plan(ctx)
	c.logger.Info("export planned",
		"input", c.inputPath,
		"compress", plan.ShouldCompress,
		"render_size", plan.RenderSize,
		"export_size", plan.ExportSize,
		"frame_rate", plan.FrameRate,
		"codec", plan.Video.Codec,
		"bitrate", plan.Video.AverageBitRate)

	// A source that needs no compression succeeds even if Cancel already
	// arrived; cancellation only matters once samples flow.
	var res Result
	if plan.ShouldCompress {
		res = c.export(ctx, plan, progress)
	} else {
		res = Result{OutputPath: c.inputPath, Skipped: true}
	}

	c.complete(res, start, progress, completion)
}

func (c *Compressor) export(ctx context.Context, plan Plan, progress func(float64)) Result {
	// Backends get a context that survives Cancel: cancelling only stops
	// the pumps, the writer still finalizes what it received.
	backendCtx := context.WithoutCancel(ctx)

	if c.backend == nil {
		return Result{Err: newError(KindFailedToLoadSource, "open_reader", errors.New("no backend configured"))}
	}

	reader, err := c.backend.OpenReader(backendCtx, c.comp)
	if err != nil {
		return Result{Err: newError(KindFailedToLoadSource, "open_reader", err)}
	}

	c.touchedOutput.Store(true)
	if err := os.Remove(c.outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		reader.CancelReading()
		return Result{Err: newError(KindFailedToOpenDestination, "remove_existing", err)}
	}

	writer, err := c.backend.OpenWriter(backendCtx, Destination{
		Path:     c.outputPath,
		FileType: c.config.FileType,
		Metadata: c.comp.Metadata,
	})
	if err != nil {
		reader.CancelReading()
		return Result{Err: newError(KindFailedToOpenDestination, "open_writer", err)}
	}

	abort := func(kind ErrorKind, op string, err error) Result {
		reader.CancelReading()
		finishAndWait(writer)
		return Result{Err: newError(kind, op, err)}
	}

	videoIn, err := writer.AddVideoInput(plan.Video, c.comp.VideoFormat())
	if err != nil {
		return abort(KindFailedToOpenDestination, "add_video_input", err)
	}

	var audioIn TrackInput
	if c.comp.HasAudio() && reader.AudioOutput() != nil {
		audioIn, err = writer.AddAudioInput(plan.Audio, c.comp.AudioFormat())
		if err != nil {
			return abort(KindFailedToOpenDestination, "add_audio_input", err)
		}
	}

	if err := reader.StartReading(); err != nil {
		return abort(KindFailedToLoadSource, "start_reading", err)
	}
	if err := writer.StartWriting(); err != nil {
		return abort(KindFailedToOpenDestination, "start_writing", err)
	}
	writer.StartSession(0)

	agg := &progressAggregator{step: progressStep, report: func(float64) {}}
	if progress != nil {
		agg.report = func(v float64) {
			c.dispatcher.Dispatch(func() { progress(v) })
		}
	}

	pumps := []*trackPump{
		newTrackPump("video", reader.VideoOutput(), videoIn, c.comp.VideoDuration(), &c.cancelled, writer.Failed(), agg.update, c.logger),
	}
	agg.video = pumps[0]
	if audioIn != nil {
		audio := newTrackPump("audio", reader.AudioOutput(), audioIn, c.comp.AudioDuration(), &c.cancelled, writer.Failed(), agg.update, c.logger)
		agg.audio = audio
		pumps = append(pumps, audio)
	}

	var wg sync.WaitGroup
	wg.Add(len(pumps))
	for _, p := range pumps {
		go p.run(ctx, &wg)
	}
	wg.Wait()

	reader.CancelReading()
	finishAndWait(writer)

	readErr := reader.Err()
	writeErr := writer.Err()
	for _, p := range pumps {
		if readErr == nil {
			readErr = p.readErr
		}
		if writeErr == nil {
			writeErr = p.appendErr
		}
	}

	switch {
	case c.cancelled.Load():
		return Result{Err: newError(KindCancelled, "export", nil)}
	case readErr != nil:
		return Result{Err: newError(KindUnderlying, "read", readErr)}
	case writeErr != nil:
		return Result{Err: newError(KindUnderlying, "write", writeErr)}
	}
	return Result{OutputPath: c.outputPath}
}

func finishAndWait(w Writer) {
	done := make(chan struct{})
	w.FinishWriting(func() { close(done) })
	<-done
}

func (c *Compressor) complete(res Result, start time.Time, progress func(float64), completion func(Result)) {
	c.mu.Lock()
	if c.state == stateDone {
		c.mu.Unlock()
		return
	}
	c.state = stateDone
	cancel := c.cancelRun
	c.mu.Unlock()
	cancel()

	outcome := outcomeOf(res)
	elapsed := time.Since(start)

	var size int64
	switch outcome {
	case OutcomeSuccess:
		if info, err := os.Stat(res.OutputPath); err == nil {
			size = info.Size()
		}
		c.logger.Info("export finished", "output", res.OutputPath, "bytes", size, "elapsed", elapsed)
	case OutcomeSkipped:
		c.logger.Info("export skipped, source within limits", "input", c.inputPath)
	default:
		c.logger.Warn("export did not complete", "outcome", outcome, "error", res.Err, "elapsed", elapsed)
		c.removePartialOutput()
	}
	c.recorder.ExportFinished(outcome, elapsed, size)

	c.dispatcher.Dispatch(func() {
		if outcome == OutcomeSuccess && progress != nil {
			progress(1)
		}
		if completion != nil {
			completion(res)
		}
	})
}

func (c *Compressor) removePartialOutput() {
	if c.cleanup == KeepPartialOutput || !c.touchedOutput.Load() {
		return
	}
	if err := os.Remove(c.outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("failed to remove partial output", "path", c.outputPath, "error", err)
		return
	}
	c.logger.Debug("removed partial output", "path", c.outputPath)
}

func outcomeOf(res Result) Outcome {
	switch {
	case res.Err == nil && res.Skipped:
		return OutcomeSkipped
	case res.Err == nil:
		return OutcomeSuccess
	case KindOf(res.Err) == KindCancelled:
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
