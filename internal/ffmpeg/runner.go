// Package ffmpeg implements the compress backend on top of the ffmpeg and
// ffprobe command line tools. Decoding and encoding run in child processes;
// raw frames and PCM move between them and the compressor over pipes.
package ffmpeg

import (
	"context"
	"os/exec"
	"sync"
)

// CommandRunner executes a command to completion (enables mocking in tests).
type CommandRunner interface {
	Run(ctx context.Context, cmd string, args ...string) ([]byte, error)
}

// DefaultCommandRunner runs commands with os/exec and returns stdout.
// Stderr is available from the *exec.ExitError on failure.
type DefaultCommandRunner struct{}

// Run executes a command using os/exec.
func (r *DefaultCommandRunner) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, cmd, args...).Output()
}

// Paths locates the binaries.
type Paths struct {
	FFmpeg  string
	FFprobe string
}

func (p Paths) withDefaults() Paths {
	if p.FFmpeg == "" {
		p.FFmpeg = "ffmpeg"
	}
	if p.FFprobe == "" {
		p.FFprobe = "ffprobe"
	}
	return p
}

// tailBuffer keeps the last max bytes written to it, enough to report why
// a process failed without holding its whole stderr.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
