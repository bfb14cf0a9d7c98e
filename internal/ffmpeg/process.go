package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
)

// stderrTail bounds how much of a child's stderr is kept for errors.
const stderrTail = 4096

// killGrace is how long stop waits for a child to exit on its own.
const killGrace = 250 * time.Millisecond

// process is a child ffmpeg whose stdout is read through an explicit pipe,
// so waiting for exit never races with reads of buffered output.
type process struct {
	name   string
	cmd    *exec.Cmd
	stderr *tailBuffer
	stdout *os.File
	logger hclog.Logger

	// extra are child-side pipe ends closed in the parent after start.
	extra []*os.File

	startOnce sync.Once
	started   atomic.Bool
	killed    atomic.Bool
	done      chan struct{}
	waitErr   error
}

// newProcess prepares bin with args. When withStdout is set, the child's
// stdout is a pipe readable through p.stdout.
func newProcess(ctx context.Context, name, bin string, args []string, withStdout bool, log hclog.Logger) (*process, error) {
	p := &process{
		name:   name,
		cmd:    exec.CommandContext(ctx, bin, args...),
		stderr: newTailBuffer(stderrTail),
		logger: log,
		done:   make(chan struct{}),
	}
	p.cmd.Stderr = p.stderr

	if withStdout {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create %s pipe: %w", name, err)
		}
		p.cmd.Stdout = w
		p.stdout = r
		p.extra = append(p.extra, w)
	}
	return p, nil
}

// start launches the child and reaps it in the background.
func (p *process) start() error {
	var err error
	p.startOnce.Do(func() {
		p.logger.Debug("starting ffmpeg", "process", p.name, "args", strings.Join(p.cmd.Args[1:], " "))
		if err = p.cmd.Start(); err != nil {
			err = fmt.Errorf("failed to start %s: %w", p.name, err)
			p.closeExtra()
			return
		}
		p.started.Store(true)
		p.closeExtra()

		go func() {
			p.waitErr = p.cmd.Wait()
			close(p.done)
		}()
	})
	return err
}

func (p *process) closeExtra() {
	for _, f := range p.extra {
		f.Close()
	}
	p.extra = nil
}

// stop waits briefly for the child to exit, then kills it. A child killed
// here does not report an error.
func (p *process) stop() {
	if !p.started.Load() {
		p.closeExtra()
		if p.stdout != nil {
			p.stdout.Close()
		}
		return
	}

	select {
	case <-p.done:
	case <-time.After(killGrace):
		p.killed.Store(true)
		if err := p.cmd.Process.Kill(); err != nil {
			p.logger.Debug("failed to kill ffmpeg", "process", p.name, "error", err)
		}
		<-p.done
	}
	if p.stdout != nil {
		p.stdout.Close()
	}
}

// wait blocks until the child exits.
func (p *process) wait() {
	if p.started.Load() {
		<-p.done
	}
}

// exited is closed once the child has been reaped.
func (p *process) exited() <-chan struct{} {
	return p.done
}

// err returns the exit failure of a finished child, including the tail of
// its stderr. It must be called after the child exited.
func (p *process) err() error {
	if !p.started.Load() || p.killed.Load() || p.waitErr == nil {
		return nil
	}
	if tail := strings.TrimSpace(p.stderr.String()); tail != "" {
		return fmt.Errorf("%s failed: %w: %s", p.name, p.waitErr, tail)
	}
	return fmt.Errorf("%s failed: %w", p.name, p.waitErr)
}
