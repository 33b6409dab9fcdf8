package models

import "errors"

var (
	// ErrShapeMismatch indicates an embedding of the wrong length.
	ErrShapeMismatch = errors.New("embedding shape mismatch")
	// ErrNotFound indicates an unknown identity.
	ErrNotFound = errors.New("not found")
	// ErrDatastoreUnavailable wraps transient infrastructure failures, timeouts included.
	ErrDatastoreUnavailable = errors.New("datastore unavailable")
	// ErrValidation indicates a malformed request.
	ErrValidation = errors.New("validation error")
	// ErrInvalidTransition indicates an administrative action not allowed in the current state.
	ErrInvalidTransition = errors.New("invalid transition")
)
