package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/vcompress/internal/compress"
	"github.com/mantonx/vcompress/internal/config"
	"github.com/mantonx/vcompress/internal/hardware"
	"github.com/mantonx/vcompress/internal/logger"
	"github.com/mantonx/vcompress/internal/soundtrack"
	"github.com/mantonx/vcompress/internal/watermark"
)

// Backend creates ffmpeg readers and writers. It implements
// compress.Backend.
type Backend struct {
	paths   Paths
	threads int
	tempDir string
	logger  hclog.Logger
}

// NewBackend creates a backend. threads <= 0 leaves thread selection to
// the encoder.
func NewBackend(paths Paths, threads int, log hclog.Logger) *Backend {
	return &Backend{
		paths:   paths.withDefaults(),
		threads: threads,
		tempDir: os.TempDir(),
		logger:  logger.OrDefault(log).Named("ffmpeg"),
	}
}

// OpenReader prepares one decoder per track. Nothing runs until
// StartReading.
func (b *Backend) OpenReader(ctx context.Context, comp *compress.Composition) (compress.Reader, error) {
	if !comp.HasVideo() {
		return nil, errors.New("composition has no video track")
	}

	r := &reader{logger: b.logger.Named("reader")}

	if comp.Watermark != nil {
		png, err := watermark.Prepare(comp.Watermark.ImagePath, comp.Watermark.Rect, b.tempDir)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare watermark: %w", err)
		}
		r.watermarkPNG = png
	}

	video, err := newProcess(ctx, "video decoder", b.paths.FFmpeg, videoReadArgs(comp, r.watermarkPNG), true, r.logger)
	if err != nil {
		r.CancelReading()
		return nil, err
	}
	r.video = video
	r.videoOut = newVideoOutput(video.stdout, comp.VideoFormat())

	if comp.HasAudio() {
		audio, err := newProcess(ctx, "audio decoder", b.paths.FFmpeg, audioReadArgs(comp), true, r.logger)
		if err != nil {
			r.CancelReading()
			return nil, err
		}
		r.audio = audio
		r.audioOut = newAudioOutput(audio.stdout, comp.AudioFormat())
	}

	return r, nil
}

// OpenWriter prepares the encoder for dest, creating its directory. The
// process starts with StartWriting once the inputs are known.
func (b *Backend) OpenWriter(ctx context.Context, dest compress.Destination) (compress.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(dest.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	spec := WriterSpec{
		Output:   dest.Path,
		FileType: dest.FileType,
		Metadata: dest.Metadata,
		Threads:  b.threads,
	}
	return newWriter(ctx, b.paths.FFmpeg, spec, b.logger.Named("writer")), nil
}

// Options wires the ffmpeg backend, the ffprobe loader, the soundtrack tag
// reader and, when enabled, hardware HEVC detection into a compressor. The returned options share
// one detector, so its cache spans exports.
func Options(cfg config.FFmpegConfig, log hclog.Logger) []compress.Option {
	log = logger.OrDefault(log)
	paths := Paths{FFmpeg: cfg.FFmpegPath, FFprobe: cfg.FFprobePath}.withDefaults()

	opts := []compress.Option{
		compress.WithBackend(NewBackend(paths, hardware.Threads(), log)),
		compress.WithAssetLoader(NewProber(paths.FFprobe, nil, log)),
		compress.WithMetadataReader(soundtrack.Metadata),
	}
	if cfg.HardwareDetection {
		detector := hardware.NewDetector(paths.FFmpeg, nil, log)
		opts = append(opts, compress.WithCapability(detector.HEVCDecodeSupported))
	}
	return opts
}
