// Package apperr defines the sentinel errors shared by the stores and their callers.
package apperr

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnavailable means the backing store could not be opened or has been
	// closed. It lets callers tell "no results" apart from "store is broken".
	ErrUnavailable = errors.New("store unavailable")
)
