package dnn

import (
	"github.com/pkg/errors"
)

// Error is a wrapper for specific types of errors for which there is no additional information
// necessary. These errors are defined as global variables, and are wrapped with context (via
// github.com/pkg/errors) at the point where they are returned.
type Error struct{ string }

func (err Error) Error() string {
	return err.string
}

// These are the global errors that every failure in the module is classified as.
var (
	// ErrInvalidArgument is returned for malformed or inaccessible inputs: a dataset path that
	// can't be opened, a Network with fewer than 2 layers, buffers of the wrong size.
	ErrInvalidArgument = Error{"invalid argument"}

	// ErrInvalidOperation signals a broken calling contract, such as propagating through the input
	// layer or reading a dataset file before it was opened.
	ErrInvalidOperation = Error{"invalid operation"}
)

// IsInvalidArgument returns whether or not the root cause of err is ErrInvalidArgument.
func IsInvalidArgument(err error) bool {
	return errors.Cause(err) == ErrInvalidArgument
}

// IsInvalidOperation returns whether or not the root cause of err is ErrInvalidOperation.
func IsInvalidOperation(err error) bool {
	return errors.Cause(err) == ErrInvalidOperation
}
