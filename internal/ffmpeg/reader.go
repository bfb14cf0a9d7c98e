package ffmpeg

import (
	"bufio"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/vcompress/internal/compress"
	"github.com/mantonx/vcompress/internal/media"
)

// audioChunkFrames is the number of PCM frames per audio sample.
const audioChunkFrames = 1024

// rawOutput cuts a byte stream into fixed-size samples with evenly spaced
// timestamps.
type rawOutput struct {
	r     io.Reader
	chunk int
	step  time.Duration
	// unit is the byte size partial chunks are truncated to; zero drops
	// partial chunks.
	unit int

	n int64
}

func newVideoOutput(r io.Reader, format media.VideoFormat) *rawOutput {
	rate := format.FrameRate
	if rate <= 0 {
		rate = defaultFrameRate
	}
	size := format.FrameSize()
	return &rawOutput{
		r:     bufio.NewReaderSize(r, size),
		chunk: size,
		step:  time.Second / time.Duration(rate),
	}
}

func newAudioOutput(r io.Reader, format media.AudioFormat) *rawOutput {
	bpf := format.BytesPerFrame()
	return &rawOutput{
		r:     bufio.NewReader(r),
		chunk: audioChunkFrames * bpf,
		step:  time.Duration(audioChunkFrames) * time.Second / time.Duration(format.SampleRate),
		unit:  bpf,
	}
}

// CopyNextSample reads the next chunk. It returns io.EOF at the end of the
// stream.
func (o *rawOutput) CopyNextSample() (*media.Sample, error) {
	buf := make([]byte, o.chunk)
	n, err := io.ReadFull(o.r, buf)
	switch {
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		if o.unit == 0 {
			return nil, io.EOF
		}
		n -= n % o.unit
		if n == 0 {
			return nil, io.EOF
		}
		buf = buf[:n]
	case err != nil:
		return nil, err
	}

	duration := o.step
	if n < o.chunk {
		duration = time.Duration(int64(o.step) * int64(n) / int64(o.chunk))
	}
	pts := time.Duration(o.n) * o.step
	o.n++
	return &media.Sample{PTS: pts, Duration: duration, Data: buf}, nil
}

// reader decodes a composition with one ffmpeg process per track.
type reader struct {
	logger hclog.Logger

	video    *process
	audio    *process
	videoOut *rawOutput
	audioOut *rawOutput

	// watermarkPNG is a prepared temporary file removed on cancel.
	watermarkPNG string

	cancelOnce sync.Once
}

func (r *reader) VideoOutput() compress.TrackOutput {
	return r.videoOut
}

func (r *reader) AudioOutput() compress.TrackOutput {
	if r.audioOut == nil {
		return nil
	}
	return r.audioOut
}

func (r *reader) StartReading() error {
	if err := r.video.start(); err != nil {
		return err
	}
	if r.audio != nil {
		if err := r.audio.start(); err != nil {
			r.video.stop()
			return err
		}
	}
	return nil
}

// CancelReading stops the decoders. Decoders stopped here do not report
// errors; ones that already failed on their own still do.
func (r *reader) CancelReading() {
	r.cancelOnce.Do(func() {
		if r.video != nil {
			r.video.stop()
		}
		if r.audio != nil {
			r.audio.stop()
		}
		if r.watermarkPNG != "" {
			if err := os.Remove(r.watermarkPNG); err != nil && !errors.Is(err, os.ErrNotExist) {
				r.logger.Warn("failed to remove watermark file", "path", r.watermarkPNG, "error", err)
			}
		}
	})
}

func (r *reader) Err() error {
	if r.video != nil {
		r.video.wait()
		if err := r.video.err(); err != nil {
			return err
		}
	}
	if r.audio != nil {
		r.audio.wait()
		return r.audio.err()
	}
	return nil
}
