package jobs

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/vcompress/internal/dispatch"
	"github.com/mantonx/vcompress/internal/logger"
	"golang.org/x/sync/errgroup"
)

// BatchOption configures RunBatch.
type BatchOption func(*batch)

type batch struct {
	concurrency int
	progress    func(float64)
	dispatcher  dispatch.Dispatcher
	logger      hclog.Logger
}

// WithConcurrency bounds how many exports run at once. The default is the
// number of CPUs.
func WithConcurrency(n int) BatchOption {
	return func(b *batch) { b.concurrency = n }
}

// WithBatchProgress receives the mean progress of all items.
func WithBatchProgress(fn func(float64)) BatchOption {
	return func(b *batch) { b.progress = fn }
}

// WithBatchDispatcher delivers progress on d instead of dispatch.Main().
func WithBatchDispatcher(d dispatch.Dispatcher) BatchOption {
	return func(b *batch) { b.dispatcher = d }
}

// WithBatchLogger sets the logger.
func WithBatchLogger(l hclog.Logger) BatchOption {
	return func(b *batch) { b.logger = l }
}

// RunBatch exports every request and returns the resulting paths in request
// order. The first failure cancels the remaining exports and is returned;
// a skipped item contributes its input path.
func RunBatch(ctx context.Context, requests []Request, runner Runner, opts ...BatchOption) ([]string, error) {
	b := &batch{concurrency: runtime.NumCPU()}
	for _, opt := range opts {
		opt(b)
	}
	if b.dispatcher == nil {
		b.dispatcher = dispatch.Main()
	}
	if b.concurrency < 1 {
		b.concurrency = 1
	}
	log := logger.OrDefault(b.logger).Named("batch")

	if len(requests) == 0 {
		return nil, nil
	}

	tracker := newBatchProgress(len(requests), b.progress, b.dispatcher)
	outputs := make([]string, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := runner(gctx, req, func(p float64) { tracker.update(i, p) })
			if res.Err != nil {
				log.Warn("batch item failed", "index", i, "input", req.InputPath, "error", res.Err)
				return fmt.Errorf("%s: %w", req.InputPath, res.Err)
			}
			tracker.update(i, 1)
			outputs[i] = res.OutputPath
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Info("batch finished", "items", len(requests))
	return outputs, nil
}

// batchProgress averages per-item progress and forwards changes in order.
type batchProgress struct {
	mu       sync.Mutex
	items    []float64
	last     float64
	report   func(float64)
	dispatch dispatch.Dispatcher
}

func newBatchProgress(n int, report func(float64), d dispatch.Dispatcher) *batchProgress {
	return &batchProgress{items: make([]float64, n), last: -1, report: report, dispatch: d}
}

func (b *batchProgress) update(i int, p float64) {
	if b.report == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if p <= b.items[i] {
		return
	}
	b.items[i] = p

	var sum float64
	for _, v := range b.items {
		sum += v
	}
	mean := sum / float64(len(b.items))
	if mean == b.last {
		return
	}
	b.last = mean

	report := b.report
	b.dispatch.Dispatch(func() { report(mean) })
}
