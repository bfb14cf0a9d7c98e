package compress

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a terminal export failure.
type ErrorKind int

const (
	// KindUnderlying wraps an error reported by the reader or writer.
	KindUnderlying ErrorKind = iota
	// KindCancelled means Cancel was observed before the outcome.
	KindCancelled
	// KindFailedToLoadSource means the asset or its reader could not be opened.
	KindFailedToLoadSource
	// KindFailedToOpenDestination means the writer could not be created.
	KindFailedToOpenDestination
)

func (k ErrorKind) String() string {
	switch k {
	case KindCancelled:
		return "cancelled"
	case KindFailedToLoadSource:
		return "failed_to_load_source"
	case KindFailedToOpenDestination:
		return "failed_to_open_destination"
	default:
		return "underlying"
	}
}

// Sentinel errors, usable with errors.Is against any *Error of that kind.
var (
	ErrCancelled               = errors.New("export cancelled")
	ErrFailedToLoadSource      = errors.New("failed to load source")
	ErrFailedToOpenDestination = errors.New("failed to open destination")

	// ErrExportStarted is reported when Export is called twice.
	ErrExportStarted = errors.New("export already started")
)

// Error is the terminal error delivered by an export.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrCancelled:
		return e.Kind == KindCancelled
	case ErrFailedToLoadSource:
		return e.Kind == KindFailedToLoadSource
	case ErrFailedToOpenDestination:
		return e.Kind == KindFailedToOpenDestination
	}
	return false
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or KindUnderlying for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnderlying
}
