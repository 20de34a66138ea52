package common

import (
	"errors"
	"fmt"
)

var (
	ErrStaleResponse = errors.New("response belongs to a superseded scope")
	ErrSessionClosed = errors.New("gallery session closed")
	ErrNotFound      = errors.New("document not found")
	ErrStopped       = errors.New("processor stopped")
)

// TransientFetchError wraps a network/backend failure while reading. Prior
// data stays in place so callers can offer a retry over it.
type TransientFetchError struct {
	Op  string
	Key string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// BatchFlushError is returned when processing a flushed batch fails. The
// batch buffer was already swapped, so nothing is processed twice.
type BatchFlushError struct {
	Name  string
	Items int
	Err   error
}

func (e *BatchFlushError) Error() string {
	return fmt.Sprintf("batch %s: failed to process %d items: %v", e.Name, e.Items, e.Err)
}

func (e *BatchFlushError) Unwrap() error { return e.Err }
