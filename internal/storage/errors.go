package storage

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound means a named object or folder does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnsupported means the backend has no such capability.
	ErrUnsupported = errors.New("operation not supported by backend")
	// ErrInvalidArgument flags caller input that can never succeed.
	ErrInvalidArgument = errors.New("invalid argument")
)

// BackendError wraps a failed remote call (auth, network, quota).
type BackendError struct {
	Backend string
	Op      string
	Key     string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s %q: %v", e.Backend, e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// WrapBackend records the backend operation that failed. The cause gets a
// stack trace for the error logger.
func WrapBackend(backend, op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{
		Backend: backend,
		Op:      op,
		Key:     key,
		Err:     errors.WithStack(err),
	}
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// PartialDeleteError reports a multi-object delete that stopped partway.
// Deleted holds the keys removed before Err.
type PartialDeleteError struct {
	Deleted []string
	Err     error
}

func (e *PartialDeleteError) Error() string {
	return fmt.Sprintf("deleted %d objects before failing: %v", len(e.Deleted), e.Err)
}

func (e *PartialDeleteError) Unwrap() error {
	return e.Err
}
