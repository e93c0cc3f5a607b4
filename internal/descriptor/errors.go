package descriptor

import "fmt"

// ValidationError reports a descriptor that parsed but lacks a required field
// or repeats a key already seen in the batch.
type ValidationError struct {
	Source string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Source, e.Field, e.Reason)
}

// ParseError reports source content that could not be decoded into a
// descriptor.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Failure pairs a source with the reason it was rejected.
type Failure struct {
	Source string
	Err    error
}
