// Package logger builds the hclog root logger used across the application.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Options controls root logger construction.
type Options struct {
	Name   string
	Level  string
	Format string // "json" or "text"
	Output io.Writer
}

var (
	defaultLogger hclog.Logger = hclog.NewNullLogger()
	mu            sync.RWMutex
)

// New creates a logger from options. Unknown levels fall back to info.
func New(opts Options) hclog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := hclog.LevelFromString(strings.ToLower(opts.Level))
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	name := opts.Name
	if name == "" {
		name = "vcompress"
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		Output:     out,
		JSONFormat: strings.EqualFold(opts.Format, "json"),
	})
}

// SetDefault replaces the process-wide logger returned by Default.
func SetDefault(l hclog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

// Default returns the process-wide logger. It discards everything until
// SetDefault is called.
func Default() hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// OrDefault returns l, or the process-wide logger when l is nil.
func OrDefault(l hclog.Logger) hclog.Logger {
	if l != nil {
		return l
	}
	return Default()
}
