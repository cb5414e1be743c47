package storage

import "errors"

// Common storage errors
var (
	// ErrInvalidOperation indicates that operation cannot be stored (bad clock or reference)
	ErrInvalidOperation = errors.New("invalid operation")
)
