// Package watch turns videos dropped into an inbox directory into jobs.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/vcompress/internal/config"
	"github.com/mantonx/vcompress/internal/database"
	"github.com/mantonx/vcompress/internal/jobs"
	"github.com/mantonx/vcompress/internal/logger"
)

const defaultDebounce = 2 * time.Second

// Submitter accepts jobs. *jobs.Manager implements it.
type Submitter interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (*database.Job, error)
}

// Watcher submits a job for every video that settles in the inbox.
type Watcher struct {
	inbox      string
	debounce   time.Duration
	extensions map[string]bool
	submitter  Submitter
	logger     hclog.Logger

	mu        sync.Mutex
	timers    map[string]*pendingFile
	submitted map[string]fileStamp
	wg        sync.WaitGroup
}

// pendingFile is a path waiting for its debounce to expire. timer is set
// and read only under Watcher.mu.
type pendingFile struct {
	timer *time.Timer
}

// fileStamp identifies one version of a file so rewrites are picked up
// again but repeated events for the same content are not.
type fileStamp struct {
	size    int64
	modTime time.Time
}

// New creates a watcher for cfg.InboxDir.
func New(cfg config.WatchConfig, submitter Submitter, log hclog.Logger) *Watcher {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	exts := make(map[string]bool, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	if len(exts) == 0 {
		exts = map[string]bool{".mp4": true, ".mov": true, ".m4v": true}
	}

	return &Watcher{
		inbox:      cfg.InboxDir,
		debounce:   debounce,
		extensions: exts,
		submitter:  submitter,
		logger:     logger.OrDefault(log).Named("watch"),
		timers:     make(map[string]*pendingFile),
		submitted:  make(map[string]fileStamp),
	}
}

// Run watches the inbox until ctx is cancelled. Pending debounced files
// are dropped on return.
func (w *Watcher) Run(ctx context.Context) error {
	if w.inbox == "" {
		return errors.New("watch: inbox directory not configured")
	}
	if err := os.MkdirAll(w.inbox, 0755); err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.inbox); err != nil {
		return fmt.Errorf("failed to add watch for %s: %w", w.inbox, err)
	}
	w.logger.Info("watching inbox", "dir", w.inbox, "debounce", w.debounce)

	defer w.stopTimers()

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !w.Accepts(event.Name) {
		return
	}
	w.schedule(ctx, event.Name)
}

// Accepts reports whether path names a video the watcher would submit.
// Hidden files, editor and download temporaries, and previously produced
// outputs are ignored.
func (w *Watcher) Accepts(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") {
		return false
	}
	lower := strings.ToLower(name)
	for _, suffix := range []string{".tmp", ".part", ".crdownload", ".download"} {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}

	ext := filepath.Ext(lower)
	if !w.extensions[ext] {
		return false
	}
	return !strings.HasSuffix(strings.TrimSuffix(lower, ext), "_compressed")
}

// schedule restarts the path's debounce timer.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.timers[path]; ok && p.timer.Stop() {
		p.timer.Reset(w.debounce)
		return
	}

	// Either no timer or one that already fired; its callback only clears
	// the entry it owns.
	p := &pendingFile{}
	w.wg.Add(1)
	p.timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.fire(ctx, path, p)
	})
	w.timers[path] = p
}

func (w *Watcher) fire(ctx context.Context, path string, p *pendingFile) {
	w.mu.Lock()
	if w.timers[path] == p {
		delete(w.timers, path)
	}
	w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		// Moved away or deleted before it settled.
		return
	}
	stamp := fileStamp{size: info.Size(), modTime: info.ModTime()}

	w.mu.Lock()
	if prev, ok := w.submitted[path]; ok && prev.size == stamp.size && prev.modTime.Equal(stamp.modTime) {
		w.mu.Unlock()
		return
	}
	w.submitted[path] = stamp
	w.mu.Unlock()

	job, err := w.submitter.Submit(ctx, jobs.SubmitRequest{
		Input:  path,
		Source: database.JobSourceWatch,
	})
	if err != nil {
		w.logger.Warn("failed to submit inbox file", "path", path, "error", err)
		w.mu.Lock()
		delete(w.submitted, path)
		w.mu.Unlock()
		return
	}
	w.logger.Info("inbox file submitted", "path", path, "job_id", job.ID)
}

// stopTimers cancels pending debounces and waits for running ones.
func (w *Watcher) stopTimers() {
	w.mu.Lock()
	for path, p := range w.timers {
		if p.timer.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
