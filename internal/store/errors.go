package store

import (
	"errors"
	"fmt"
)

// Error taxonomy. Not-found is an expected, recoverable condition (e.g.
// first-time settings creation) and is logged at a lower severity than
// unexpected failures. An ownership violation should never happen under
// correct usage and is treated as a hard stop.
var (
	ErrNotFound     = errors.New("record not found")
	ErrUnauthorized = errors.New("record owned by another user")
)

// OperationError wraps an underlying driver/network error, naming the
// failed operation and collection so the caller can surface a message
// without inspecting the cause.
type OperationError struct {
	Op         string
	Collection string
	Err        error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

func opErr(op, collection string, err error) *OperationError {
	return &OperationError{Op: op, Collection: collection, Err: err}
}
