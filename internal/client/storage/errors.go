package storage

import "errors"

// Common client storage errors
var (
	// ErrOperationNotFound indicates that operation id is unknown to the log
	ErrOperationNotFound = errors.New("operation not found")

	// ErrEntityNotFound indicates that entity state was not found
	ErrEntityNotFound = errors.New("entity not found")

	// ErrConflictNotFound indicates that no conflict state exists for entity
	ErrConflictNotFound = errors.New("conflict state not found")

	// ErrMetadataNotFound indicates that metadata key was never written
	ErrMetadataNotFound = errors.New("metadata not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
