package catalog

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrNotFound is returned when no record exists for a key
	ErrNotFound = errors.New("record not found")

	// ErrInvalidVector is returned when an embedding has the wrong dimension or non-finite values
	ErrInvalidVector = errors.New("invalid vector")

	// ErrInvalidRecord is returned when a record lacks a key
	ErrInvalidRecord = errors.New("invalid record")

	// ErrClosed is returned when using a closed store
	ErrClosed = errors.New("store is closed")
)

// PersistenceError reports a failed write of a single record. It never
// affects other records of a batch.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting %s: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ConnectionError reports that the store could not be reached at all.
type ConnectionError struct {
	Location string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to catalog store %s: %v", e.Location, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
