package compress

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mantonx/vcompress/internal/media"
)

// fakeLoader serves assets from a map.
type fakeLoader struct {
	assets map[string]*media.Asset
}

func (l *fakeLoader) Load(_ context.Context, path string) (*media.Asset, error) {
	a, ok := l.assets[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return a, nil
}

// fakeOutput yields count samples spaced by step.
type fakeOutput struct {
	count  int
	step   time.Duration
	failAt int
	err    error
	onCopy func(n int)

	mu sync.Mutex
	n  int
}

func (o *fakeOutput) CopyNextSample() (*media.Sample, error) {
	o.mu.Lock()
	n := o.n
	o.n++
	o.mu.Unlock()

	if o.onCopy != nil {
		o.onCopy(n)
	}
	if o.err != nil && n == o.failAt {
		return nil, o.err
	}
	if n >= o.count {
		return nil, io.EOF
	}
	return &media.Sample{PTS: time.Duration(n+1) * o.step, Duration: o.step, Data: []byte{byte(n)}}, nil
}

// fakeInput accepts samples; with burst > 0 it becomes unready after that
// many appends and recovers asynchronously. It stays unready once failed is
// closed.
type fakeInput struct {
	burst     int
	appendErr error
	failed    <-chan struct{}

	ready    chan struct{}
	notReady atomic.Bool
	finished atomic.Bool

	mu       sync.Mutex
	appended []time.Duration
	inBurst  int
}

func newFakeInput(burst int, appendErr error, failed <-chan struct{}) *fakeInput {
	return &fakeInput{burst: burst, appendErr: appendErr, failed: failed, ready: make(chan struct{}, 1)}
}

func (i *fakeInput) Ready() <-chan struct{} { return i.ready }

func (i *fakeInput) IsReadyForMoreMediaData() bool {
	select {
	case <-i.failed:
		return false
	default:
	}
	return !i.notReady.Load() && !i.finished.Load()
}

func (i *fakeInput) Append(s *media.Sample) error {
	if i.appendErr != nil {
		return i.appendErr
	}
	i.mu.Lock()
	i.appended = append(i.appended, s.PTS)
	i.inBurst++
	pause := i.burst > 0 && i.inBurst >= i.burst
	if pause {
		i.inBurst = 0
	}
	i.mu.Unlock()

	if pause {
		i.notReady.Store(true)
		go func() {
			time.Sleep(time.Millisecond)
			i.notReady.Store(false)
			select {
			case i.ready <- struct{}{}:
			default:
			}
		}()
	}
	return nil
}

func (i *fakeInput) MarkAsFinished() { i.finished.Store(true) }

func (i *fakeInput) Appended() []time.Duration {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]time.Duration(nil), i.appended...)
}

type fakeReader struct {
	video, audio TrackOutput
	startErr     error
	err          error
	cancelled    atomic.Bool
}

func (r *fakeReader) VideoOutput() TrackOutput { return r.video }
func (r *fakeReader) AudioOutput() TrackOutput { return r.audio }
func (r *fakeReader) StartReading() error      { return r.startErr }
func (r *fakeReader) CancelReading()           { r.cancelled.Store(true) }
func (r *fakeReader) Err() error               { return r.err }

type fakeWriter struct {
	path        string
	burst       int
	startErr    error
	err         error
	audioAppend error
	failed      chan struct{}

	mu        sync.Mutex
	video     *fakeInput
	audio     *fakeInput
	videoSet  VideoSettings
	audioSet  AudioSettings
	videoFmt  media.VideoFormat
	finished  bool
	sessionAt time.Duration
}

func (w *fakeWriter) AddVideoInput(s VideoSettings, f media.VideoFormat) (TrackInput, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.video = newFakeInput(w.burst, nil, w.failed)
	w.videoSet = s
	w.videoFmt = f
	return w.video, nil
}

func (w *fakeWriter) AddAudioInput(s AudioSettings, _ media.AudioFormat) (TrackInput, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.audio = newFakeInput(w.burst, w.audioAppend, w.failed)
	w.audioSet = s
	return w.audio, nil
}

func (w *fakeWriter) StartWriting() error {
	if w.startErr != nil {
		return w.startErr
	}
	return os.WriteFile(w.path, []byte("partial"), 0644)
}

func (w *fakeWriter) StartSession(at time.Duration) { w.sessionAt = at }

func (w *fakeWriter) FinishWriting(done func()) {
	w.mu.Lock()
	w.finished = true
	w.mu.Unlock()
	go done()
}

func (w *fakeWriter) Failed() <-chan struct{} { return w.failed }
func (w *fakeWriter) Err() error              { return w.err }

type fakeBackend struct {
	reader    *fakeReader
	writer    *fakeWriter
	readerErr error
	writerErr error

	readerOpened  atomic.Bool
	writerOpened  atomic.Bool
	existedAtOpen atomic.Bool
}

func (b *fakeBackend) OpenReader(_ context.Context, _ *Composition) (Reader, error) {
	b.readerOpened.Store(true)
	if b.readerErr != nil {
		return nil, b.readerErr
	}
	return b.reader, nil
}

func (b *fakeBackend) OpenWriter(_ context.Context, dest Destination) (Writer, error) {
	b.writerOpened.Store(true)
	if _, err := os.Stat(dest.Path); err == nil {
		b.existedAtOpen.Store(true)
	}
	if b.writerErr != nil {
		return nil, b.writerErr
	}
	b.writer.path = dest.Path
	return b.writer, nil
}

func videoTrack(w, h, fps float64) media.Track {
	return media.Track{
		Index:              0,
		Kind:               media.KindVideo,
		Codec:              "h264",
		NaturalSize:        media.Size{Width: w, Height: h},
		PreferredTransform: media.Identity,
		NominalFrameRate:   fps,
	}
}

func audioTrack() media.Track {
	return media.Track{Index: 1, Kind: media.KindAudio, Codec: "aac", SampleRate: 48000, Channels: 2}
}

func newAsset(path string, duration time.Duration, tracks ...media.Track) *media.Asset {
	return &media.Asset{Path: path, Duration: duration, Tracks: tracks}
}
