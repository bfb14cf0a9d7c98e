package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/vcompress/internal/compress"
	"github.com/mantonx/vcompress/internal/media"
)

// Queue depths in samples. Video samples are whole raw frames, so the
// video queue stays short.
const (
	videoQueueDepth = 4
	audioQueueDepth = 16
)

var (
	errWriterFailed  = errors.New("writer failed")
	errInputFinished = errors.New("input already finished")
	errWriterStarted = errors.New("writer already started")
	errNoVideoInput  = errors.New("writer has no video input")
)

// trackInput is a bounded sample queue drained into a pipe by a feeder
// goroutine. Ready fires each time the feeder frees a slot.
type trackInput struct {
	name   string
	queue  chan *media.Sample
	ready  chan struct{}
	pipe   io.WriteCloser
	failed <-chan struct{}

	finishOnce sync.Once
	finished   atomic.Bool
	fed        chan struct{}
	written    atomic.Int64
}

func newTrackInput(name string, pipe io.WriteCloser, depth int, failed <-chan struct{}) *trackInput {
	return &trackInput{
		name:   name,
		queue:  make(chan *media.Sample, depth),
		ready:  make(chan struct{}, 1),
		pipe:   pipe,
		failed: failed,
		fed:    make(chan struct{}),
	}
}

func (i *trackInput) Ready() <-chan struct{} {
	return i.ready
}

func (i *trackInput) IsReadyForMoreMediaData() bool {
	if i.finished.Load() {
		return false
	}
	select {
	case <-i.failed:
		return false
	default:
	}
	return len(i.queue) < cap(i.queue)
}

func (i *trackInput) Append(s *media.Sample) error {
	if i.finished.Load() {
		return errInputFinished
	}
	select {
	case i.queue <- s:
		return nil
	case <-i.failed:
		return errWriterFailed
	}
}

func (i *trackInput) MarkAsFinished() {
	i.finishOnce.Do(func() {
		i.finished.Store(true)
		close(i.queue)
	})
}

// feed writes queued samples until the queue is closed. After a write
// error the remaining samples are discarded so producers never block.
func (i *trackInput) feed(onError func(error)) {
	defer close(i.fed)
	defer i.pipe.Close()

	var writeErr error
	for s := range i.queue {
		if writeErr == nil {
			if _, err := i.pipe.Write(s.Data); err != nil {
				writeErr = fmt.Errorf("failed to write %s sample: %w", i.name, err)
				onError(writeErr)
			} else {
				i.written.Add(1)
			}
		}
		select {
		case i.ready <- struct{}{}:
		default:
		}
	}
}

// writer encodes and muxes with a single ffmpeg process fed over fds 3
// and 4.
type writer struct {
	ctx     context.Context
	bin     string
	spec    WriterSpec
	logger  hclog.Logger
	session time.Duration

	proc  *process
	video *trackInput
	audio *trackInput
	// childEnds are the read ends handed to the encoder as fds 3 and 4.
	childEnds []*os.File

	startCalled atomic.Bool
	started     atomic.Bool
	finishing   atomic.Bool
	failOnce    sync.Once
	failed      chan struct{}

	mu  sync.Mutex
	err error

	finishOnce sync.Once
}

func newWriter(ctx context.Context, bin string, spec WriterSpec, log hclog.Logger) *writer {
	return &writer{
		ctx:    ctx,
		bin:    bin,
		spec:   spec,
		logger: log,
		failed: make(chan struct{}),
	}
}

func (w *writer) addInput(name string, depth int) (*trackInput, error) {
	if w.startCalled.Load() {
		return nil, errWriterStarted
	}
	r, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s pipe: %w", name, err)
	}
	w.childEnds = append(w.childEnds, r)
	return newTrackInput(name, pw, depth, w.failed), nil
}

func (w *writer) AddVideoInput(settings compress.VideoSettings, format media.VideoFormat) (compress.TrackInput, error) {
	in, err := w.addInput("video", videoQueueDepth)
	if err != nil {
		return nil, err
	}
	w.video = in
	w.spec.Video = settings
	w.spec.VideoFormat = format
	return in, nil
}

// AddAudioInput must follow AddVideoInput: the encoder expects video on
// fd 3 and audio on fd 4.
func (w *writer) AddAudioInput(settings compress.AudioSettings, format media.AudioFormat) (compress.TrackInput, error) {
	if w.video == nil {
		return nil, errNoVideoInput
	}
	in, err := w.addInput("audio", audioQueueDepth)
	if err != nil {
		return nil, err
	}
	w.audio = in
	w.spec.Audio = &settings
	w.spec.AudioFormat = format
	return in, nil
}

func (w *writer) StartWriting() error {
	if w.video == nil {
		return errNoVideoInput
	}
	if !w.startCalled.CompareAndSwap(false, true) {
		return errWriterStarted
	}

	proc, err := newProcess(w.ctx, "encoder", w.bin, BuildWriterArgs(w.spec), true, w.logger)
	if err != nil {
		return err
	}
	proc.cmd.ExtraFiles = w.childEnds
	proc.extra = append(proc.extra, w.childEnds...)
	w.childEnds = nil
	w.proc = proc

	if err := proc.start(); err != nil {
		proc.stdout.Close()
		return err
	}
	w.started.Store(true)

	go w.video.feed(w.fail)
	if w.audio != nil {
		go w.audio.feed(w.fail)
	}
	go w.monitorProgress(proc.stdout)
	go w.watchExit()
	return nil
}

func (w *writer) StartSession(at time.Duration) {
	w.session = at
	w.logger.Debug("writing session started", "at", at, "output", w.spec.Output)
}

// FinishWriting closes the inputs and calls done once the encoder exited.
func (w *writer) FinishWriting(done func()) {
	w.finishOnce.Do(func() {
		w.finishing.Store(true)
		inputs := w.inputs()
		for _, in := range inputs {
			in.MarkAsFinished()
		}

		if !w.started.Load() {
			for _, f := range w.childEnds {
				f.Close()
			}
			for _, in := range inputs {
				in.pipe.Close()
			}
			go done()
			return
		}

		go func() {
			<-w.video.fed
			if w.audio != nil {
				<-w.audio.fed
			}
			w.proc.wait()
			if err := w.proc.err(); err != nil {
				w.setErr(err)
			}
			w.logger.Debug("encoder finished", "output", w.spec.Output, "video_samples", w.video.written.Load())
			done()
		}()
	})
}

func (w *writer) inputs() []*trackInput {
	var out []*trackInput
	if w.video != nil {
		out = append(out, w.video)
	}
	if w.audio != nil {
		out = append(out, w.audio)
	}
	return out
}

func (w *writer) Failed() <-chan struct{} {
	return w.failed
}

func (w *writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *writer) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

func (w *writer) fail(err error) {
	w.setErr(err)
	w.failOnce.Do(func() {
		w.logger.Error("writer failed", "output", w.spec.Output, "error", err)
		close(w.failed)
	})
}

// watchExit fails the writer when the encoder exits before FinishWriting.
func (w *writer) watchExit() {
	<-w.proc.exited()
	if w.finishing.Load() {
		return
	}
	if err := w.proc.err(); err != nil {
		w.fail(err)
		return
	}
	w.fail(errors.New("encoder exited before all samples were written"))
}

// monitorProgress logs the encoder's -progress blocks at debug level.
func (w *writer) monitorProgress(stdout io.ReadCloser) {
	defer stdout.Close()

	var p Progress
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if !p.Update(scanner.Text()) {
			continue
		}
		w.logger.Debug("encoder progress",
			"frame", p.Frame,
			"fps", p.FPS,
			"time", p.OutTime,
			"speed", p.Speed)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		w.logger.Debug("error reading encoder progress", "error", err)
	}
}
