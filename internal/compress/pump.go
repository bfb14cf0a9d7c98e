package compress

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
)

// PumpState is the lifecycle of one track pump.
type PumpState int32

const (
	PumpIdle PumpState = iota
	PumpReading
	PumpFinished
	PumpCancelled
	PumpFailed
)

func (s PumpState) String() string {
	switch s {
	case PumpReading:
		return "reading"
	case PumpFinished:
		return "finished"
	case PumpCancelled:
		return "cancelled"
	case PumpFailed:
		return "failed"
	default:
		return "idle"
	}
}

// maxBurst bounds the samples moved per wake-up so one track cannot starve
// the scheduler.
const maxBurst = 256

// trackPump moves samples from a reader output to a writer input.
type trackPump struct {
	name     string
	output   TrackOutput
	input    TrackInput
	duration time.Duration

	cancelled    *atomic.Bool
	writerFailed <-chan struct{}
	onProgress   func()
	logger       hclog.Logger

	state    atomic.Int32
	progress atomic.Uint64
	samples  atomic.Int64

	finishOnce sync.Once
	readErr    error
	appendErr  error
}

func newTrackPump(name string, output TrackOutput, input TrackInput, duration time.Duration, cancelled *atomic.Bool, writerFailed <-chan struct{}, onProgress func(), logger hclog.Logger) *trackPump {
	return &trackPump{
		name:         name,
		output:       output,
		input:        input,
		duration:     duration,
		cancelled:    cancelled,
		writerFailed: writerFailed,
		onProgress:   onProgress,
		logger:       logger.Named(name),
	}
}

// State returns the current pump state.
func (p *trackPump) State() PumpState {
	return PumpState(p.state.Load())
}

// Progress returns the fraction of the track appended so far.
func (p *trackPump) Progress() float64 {
	return math.Float64frombits(p.progress.Load())
}

// run drives the pump until the track finishes and releases wg. readErr and
// appendErr may only be read after wg.Wait returns.
func (p *trackPump) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	p.state.Store(int32(PumpReading))
	p.logger.Debug("pump started", "duration", p.duration)

	for {
		if !p.input.IsReadyForMoreMediaData() {
			select {
			case <-p.input.Ready():
			case <-p.writerFailed:
				p.finish(PumpFailed)
				return
			case <-ctx.Done():
				p.finish(PumpCancelled)
				return
			}
		}

		if p.burst() {
			return
		}
	}
}

// burst transfers samples while the input stays ready. It returns true
// once the pump reached a terminal state.
func (p *trackPump) burst() bool {
	for n := 0; n < maxBurst; n++ {
		if !p.input.IsReadyForMoreMediaData() {
			return false
		}

		if p.cancelled.Load() {
			p.finish(PumpCancelled)
			return true
		}

		sample, err := p.output.CopyNextSample()
		if errors.Is(err, io.EOF) || (err == nil && sample == nil) {
			p.finish(PumpFinished)
			return true
		}
		if err != nil {
			p.readErr = err
			p.finish(PumpFailed)
			return true
		}

		if err := p.input.Append(sample); err != nil {
			p.appendErr = err
			p.finish(PumpFailed)
			return true
		}

		p.samples.Add(1)
		p.advance(sample.PTS)
	}
	return false
}

func (p *trackPump) advance(pts time.Duration) {
	if p.duration <= 0 {
		return
	}
	fraction := math.Max(0, math.Min(1, pts.Seconds()/p.duration.Seconds()))
	p.progress.Store(math.Float64bits(fraction))
	if p.onProgress != nil {
		p.onProgress()
	}
}

func (p *trackPump) finish(state PumpState) {
	p.finishOnce.Do(func() {
		p.input.MarkAsFinished()
		p.state.Store(int32(state))
		p.logger.Debug("pump stopped", "state", state, "samples", p.samples.Load())
	})
}

// progressAggregator combines the two track fractions with equal weight and
// forwards changes of at least step. report runs under mu so forwarded
// values stay ordered.
type progressAggregator struct {
	video, audio *trackPump
	step         float64
	report       func(float64)

	mu   sync.Mutex
	last float64
}

const (
	videoProgressWeight = 0.5
	audioProgressWeight = 0.5
)

func (a *progressAggregator) value() float64 {
	v := a.video.Progress() * videoProgressWeight
	if a.audio != nil {
		v += a.audio.Progress() * audioProgressWeight
	}
	return v
}

func (a *progressAggregator) update() {
	v := a.value()

	a.mu.Lock()
	defer a.mu.Unlock()
	if v-a.last < a.step {
		return
	}
	a.last = v
	a.report(v)
}
