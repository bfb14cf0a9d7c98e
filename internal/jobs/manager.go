package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/vcompress/internal/compress"
	"github.com/mantonx/vcompress/internal/config"
	"github.com/mantonx/vcompress/internal/database"
	vcerrors "github.com/mantonx/vcompress/internal/errors"
	"github.com/mantonx/vcompress/internal/logger"
	"github.com/mantonx/vcompress/internal/metrics"
	"golang.org/x/sync/semaphore"
)

// progressPersistStep is the progress change that triggers a database
// write. Subscribers see every change.
const progressPersistStep = 0.05

// SubmitRequest is a job submission. Empty export fields take the
// manager's defaults.
type SubmitRequest struct {
	Input     string             `json:"input" binding:"required"`
	Output    string             `json:"output,omitempty"`
	VideoSize string             `json:"video_size,omitempty"`
	FileType  string             `json:"file_type,omitempty"`
	FrameRate float64            `json:"frame_rate,omitempty"`
	Source    database.JobSource `json:"-"`
}

// Manager persists jobs and runs them, at most MaxConcurrent at a time.
type Manager struct {
	repo      *Repository
	run       Runner
	defaults  config.CompressionConfig
	outputDir string
	queueSize int
	sem       *semaphore.Weighted
	events    *broker
	logger    hclog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]context.CancelFunc
	closed bool
}

// NewManager creates a manager. defaults fills export settings a request
// leaves empty.
func NewManager(repo *Repository, runner Runner, cfg config.JobsConfig, defaults config.CompressionConfig, log hclog.Logger) *Manager {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		repo:      repo,
		run:       runner,
		defaults:  defaults,
		outputDir: cfg.OutputDir,
		queueSize: cfg.QueueSize,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		events:    newBroker(),
		logger:    logger.OrDefault(log).Named("jobs"),
		ctx:       ctx,
		cancel:    cancel,
		active:    make(map[string]context.CancelFunc),
	}
}

// Recover resumes jobs left behind by a previous process: pending jobs are
// queued again, jobs that were running are marked failed.
func (m *Manager) Recover(ctx context.Context) error {
	jobs, err := m.repo.ListActive(ctx)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		switch job.Status {
		case database.JobStatusRunning:
			err := m.repo.Transition(ctx, job.ID, database.JobStatusRunning, database.JobStatusFailed, map[string]interface{}{
				"error":        "interrupted by restart",
				"completed_at": now(),
			})
			if err != nil {
				m.logger.Warn("failed to mark interrupted job", "job_id", job.ID, "error", err)
			}
		case database.JobStatusPending:
			if err := m.enqueue(job); err != nil {
				return err
			}
		}
	}

	m.logger.Info("recovered jobs", "count", len(jobs))
	return nil
}

// Submit validates and persists a pending job, then schedules it.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*database.Job, error) {
	job, err := m.newJob(req)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	closed, inFlight := m.closed, len(m.active)
	m.mu.Unlock()
	if closed {
		return nil, vcerrors.ResourceError("submit job", vcerrors.ErrShuttingDown)
	}
	if m.queueSize > 0 && inFlight >= m.queueSize {
		return nil, vcerrors.ResourceError("submit job", vcerrors.ErrQueueFull).
			WithDetail("queue_size", m.queueSize)
	}

	if err := m.repo.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := m.enqueue(job); err != nil {
		return nil, err
	}

	source := string(job.Source)
	metrics.JobSubmissionsTotal.WithLabelValues(source).Inc()
	m.logger.Info("job submitted", "job_id", job.ID, "input", job.InputPath, "output", job.OutputPath, "source", source)
	return job, nil
}

func (m *Manager) newJob(req SubmitRequest) (*database.Job, error) {
	input := strings.TrimSpace(req.Input)
	if input == "" {
		return nil, vcerrors.ValidationError("submit job", fmt.Errorf("%w: input is required", vcerrors.ErrInvalidInput))
	}
	info, err := os.Stat(input)
	if err != nil {
		return nil, vcerrors.ValidationError("submit job", fmt.Errorf("%w: %v", vcerrors.ErrInvalidInput, err))
	}
	if info.IsDir() {
		return nil, vcerrors.ValidationError("submit job", fmt.Errorf("%w: %s is a directory", vcerrors.ErrInvalidInput, input))
	}

	cc := m.defaults
	if req.VideoSize != "" {
		cc.VideoSize = req.VideoSize
	}
	if req.FileType != "" {
		cc.FileType = req.FileType
	}
	if req.FrameRate != 0 {
		cc.FrameRate = req.FrameRate
	}
	cfg, err := ExportConfiguration(cc)
	if err != nil {
		return nil, vcerrors.ValidationError("submit job", fmt.Errorf("%w: %v", vcerrors.ErrInvalidInput, err))
	}
	if cfg.FrameRate == 0 {
		cfg.FrameRate = compress.DefaultConfiguration().FrameRate
	}

	output := req.Output
	if output == "" {
		output = compress.DefaultOutputPath(input, m.outputDir, cfg.FileType)
	}

	source := req.Source
	if source == "" {
		source = database.JobSourceAPI
	}

	return &database.Job{
		ID:         uuid.New().String(),
		Status:     database.JobStatusPending,
		Source:     source,
		InputPath:  input,
		OutputPath: output,
		VideoSize:  cfg.VideoSize.String(),
		FileType:   cfg.FileType.String(),
		FrameRate:  cfg.FrameRate,
	}, nil
}

func (m *Manager) enqueue(job *database.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return vcerrors.ResourceError("submit job", vcerrors.ErrShuttingDown).WithJob(job.ID)
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.active[job.ID] = cancel
	m.wg.Add(1)
	metrics.JobsInFlight.Inc()

	// The worker owns its copy; callers keep the submitted snapshot.
	owned := *job
	go m.execute(ctx, &owned)
	return nil
}

// execute waits for a slot and runs the job to a terminal status.
func (m *Manager) execute(ctx context.Context, job *database.Job) {
	defer m.wg.Done()
	defer metrics.JobsInFlight.Dec()

	log := m.logger.With("job_id", job.ID)

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.abandon(job, log)
		return
	}
	defer m.sem.Release(1)

	if ctx.Err() != nil {
		m.abandon(job, log)
		return
	}

	if err := m.repo.Transition(m.ctx, job.ID, database.JobStatusPending, database.JobStatusRunning, map[string]interface{}{
		"started_at": now(),
	}); err != nil {
		// A job cancelled while pending is already terminal in the store.
		// Anything else stays pending for Recover on the next start.
		if current, getErr := m.repo.GetByID(context.WithoutCancel(m.ctx), job.ID); getErr == nil {
			job = current
		}
		if !job.Status.IsTerminal() {
			log.Error("failed to start job", "error", err)
		}
		m.release(job, eventFor(job))
		return
	}
	job.Status = database.JobStatusRunning
	m.events.publish(eventFor(job))
	log.Info("job started", "input", job.InputPath)

	req, err := requestFor(job)
	if err != nil {
		m.finish(job, database.JobStatusRunning, database.JobStatusFailed, map[string]interface{}{
			"error":        err.Error(),
			"completed_at": now(),
		})
		return
	}

	tracker := &progressTracker{manager: m, job: job, log: log}
	res := m.run(ctx, req, tracker.update)

	status, updates := outcomeFields(ctx, res)
	if status == database.JobStatusCompleted {
		updates["progress"] = 1.0
	}
	m.finish(job, database.JobStatusRunning, status, updates)
}

// abandon ends a job that never started. A cancel of the job itself marks
// it cancelled; on shutdown it stays pending for Recover.
func (m *Manager) abandon(job *database.Job, log hclog.Logger) {
	if m.ctx.Err() != nil {
		log.Debug("job left pending at shutdown")
		m.release(job, eventFor(job))
		return
	}
	m.finish(job, database.JobStatusPending, database.JobStatusCancelled, map[string]interface{}{
		"completed_at": now(),
	})
}

func outcomeFields(ctx context.Context, res compress.Result) (database.JobStatus, map[string]interface{}) {
	updates := map[string]interface{}{"completed_at": now()}

	switch {
	case res.Err == nil && res.Skipped:
		updates["result_path"] = res.OutputPath
		return database.JobStatusSkipped, updates
	case res.Err == nil:
		updates["result_path"] = res.OutputPath
		if info, err := os.Stat(res.OutputPath); err == nil {
			updates["output_size"] = info.Size()
		}
		return database.JobStatusCompleted, updates
	case compress.KindOf(res.Err) == compress.KindCancelled || errors.Is(ctx.Err(), context.Canceled):
		updates["error"] = res.Err.Error()
		return database.JobStatusCancelled, updates
	default:
		updates["error"] = res.Err.Error()
		return database.JobStatusFailed, updates
	}
}

// finish applies a terminal transition, publishes it and releases the job.
func (m *Manager) finish(job *database.Job, from, to database.JobStatus, updates map[string]interface{}) {
	// Use a context that survives shutdown so the final state is written.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(m.ctx), 10*time.Second)
	defer cancel()

	if err := m.repo.Transition(ctx, job.ID, from, to, updates); err != nil {
		m.logger.Error("failed to record job outcome", "job_id", job.ID, "status", to, "error", err)
	}

	job.Status = to
	if v, ok := updates["result_path"].(string); ok {
		job.ResultPath = v
	}
	if v, ok := updates["error"].(string); ok {
		job.Error = v
	}
	if v, ok := updates["progress"].(float64); ok {
		job.Progress = v
	}

	metrics.JobsFinishedTotal.WithLabelValues(string(to)).Inc()
	m.logger.Info("job finished", "job_id", job.ID, "status", to, "error", job.Error)

	m.release(job, eventFor(job))
}

// release ends the job's streams with last and forgets the job. Both happen
// under mu so Subscribe either sees the job active and gets the event, or
// reads the final state from the store.
func (m *Manager) release(job *database.Job, last Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events.end(last)
	if cancel, ok := m.active[job.ID]; ok {
		cancel()
		delete(m.active, job.ID)
	}
}

func requestFor(job *database.Job) (Request, error) {
	cfg, err := ExportConfiguration(config.CompressionConfig{
		VideoSize: job.VideoSize,
		FileType:  job.FileType,
		FrameRate: job.FrameRate,
	})
	if err != nil {
		return Request{}, err
	}
	return Request{InputPath: job.InputPath, OutputPath: job.OutputPath, Config: cfg}, nil
}

// Get returns one job.
func (m *Manager) Get(ctx context.Context, id string) (*database.Job, error) {
	return m.repo.GetByID(ctx, id)
}

// List returns jobs newest first.
func (m *Manager) List(ctx context.Context, opts ListOptions) ([]*database.Job, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, vcerrors.ValidationError("list jobs", fmt.Errorf("%w: unknown status %q", vcerrors.ErrInvalidInput, opts.Status))
	}
	return m.repo.List(ctx, opts)
}

// Stats counts jobs per status.
func (m *Manager) Stats(ctx context.Context) (map[database.JobStatus]int64, error) {
	return m.repo.Stats(ctx)
}

// Cancel requests cancellation. A pending job becomes cancelled once its
// worker observes the request; a running export stops feeding samples and
// ends as cancelled. Terminal jobs fail with ErrInvalidTransition.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	job, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return vcerrors.ValidationError("cancel job", vcerrors.ErrInvalidTransition).
			WithJob(id).
			WithDetail("status", job.Status)
	}

	m.mu.Lock()
	cancel, ok := m.active[id]
	m.mu.Unlock()
	if ok {
		cancel()
		m.logger.Info("job cancel requested", "job_id", id)
		return nil
	}

	// Not owned by this process, e.g. left pending before a restart.
	return m.repo.Transition(ctx, id, job.Status, database.JobStatusCancelled, map[string]interface{}{
		"completed_at": now(),
	})
}

// Subscribe streams the job's events until its terminal event. A job that
// already finished yields its final state once.
func (m *Manager) Subscribe(ctx context.Context, id string) (<-chan Event, func(), error) {
	m.mu.Lock()
	_, active := m.active[id]
	var ch <-chan Event
	var unsubscribe func()
	if active {
		ch, unsubscribe = m.events.subscribe(id)
	}
	m.mu.Unlock()

	if active {
		return ch, unsubscribe, nil
	}

	job, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return closedStream(eventFor(job)), func() {}, nil
}

// Shutdown stops accepting jobs, cancels the ones in flight and waits for
// them to record their outcome.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("job manager stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// progressTracker persists progress in coarse steps and publishes every
// change.
type progressTracker struct {
	manager   *Manager
	job       *database.Job
	log       hclog.Logger
	mu        sync.Mutex
	persisted float64
}

func (t *progressTracker) update(p float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.job.Progress = p
	t.manager.events.publish(eventFor(t.job))

	if p-t.persisted < progressPersistStep && p < 1 {
		return
	}
	t.persisted = p
	if err := t.manager.repo.UpdateFields(t.manager.ctx, t.job.ID, map[string]interface{}{"progress": p}); err != nil {
		t.log.Warn("failed to persist progress", "progress", p, "error", err)
	}
}

func now() *time.Time {
	t := time.Now()
	return &t
}
