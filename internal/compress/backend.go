package compress

import (
	"context"
	"time"

	"github.com/mantonx/vcompress/internal/media"
)

// AssetLoader loads the track list of a media file.
type AssetLoader interface {
	Load(ctx context.Context, path string) (*media.Asset, error)
}

// Capability reports whether hardware HEVC decoding is available.
type Capability func(ctx context.Context) bool

// Backend constructs readers and writers for one export. Every export gets
// its own reader and writer.
type Backend interface {
	OpenReader(ctx context.Context, comp *Composition) (Reader, error)
	OpenWriter(ctx context.Context, dest Destination) (Writer, error)
}

// Destination describes the output container.
type Destination struct {
	Path     string
	FileType FileType
	Metadata map[string]string
}

// Reader decodes the composition's tracks.
type Reader interface {
	VideoOutput() TrackOutput
	// AudioOutput is nil when the composition has no audio.
	AudioOutput() TrackOutput
	StartReading() error
	CancelReading()
	// Err reports the first decode failure, if any.
	Err() error
}

// TrackOutput yields decoded samples in presentation order. It returns
// io.EOF once the track is exhausted.
type TrackOutput interface {
	CopyNextSample() (*media.Sample, error)
}

// Writer encodes and muxes the output file.
type Writer interface {
	AddVideoInput(settings VideoSettings, format media.VideoFormat) (TrackInput, error)
	AddAudioInput(settings AudioSettings, format media.AudioFormat) (TrackInput, error)
	StartWriting() error
	StartSession(at time.Duration)
	// FinishWriting finalizes the file asynchronously and calls done when
	// the file is closed.
	FinishWriting(done func())
	// Failed is closed when the writer fails before FinishWriting.
	Failed() <-chan struct{}
	Err() error
}

// TrackInput accepts samples for one output track.
type TrackInput interface {
	// Ready is signalled whenever the input may have become ready for more
	// samples. Signals may be spurious.
	Ready() <-chan struct{}
	IsReadyForMoreMediaData() bool
	Append(sample *media.Sample) error
	MarkAsFinished()
}
