package storage

import (
	"context"

	"github.com/iudanet/tasksync/internal/models"
)

//go:generate moq -out entity_mock.go . EntityStorage

// EntityStorage defines interface for materialized entity state on client
type EntityStorage interface {
	// SaveEntity stores or updates entity state (tombstones included)
	SaveEntity(ctx context.Context, state *models.EntityState) error

	// GetEntity retrieves entity state by ref
	// Returns ErrEntityNotFound if entity was never stored
	GetEntity(ctx context.Context, ref models.EntityRef) (*models.EntityState, error)

	// ListEntities returns all entities, tombstones only if includeDeleted is set
	ListEntities(ctx context.Context, includeDeleted bool) ([]*models.EntityState, error)

	// ReplaceEntities atomically replaces the whole entity set
	ReplaceEntities(ctx context.Context, states []*models.EntityState) error
}

//go:generate moq -out conflict_mock.go . ConflictStorage

// ConflictStorage defines interface for per-entity conflict retry state
type ConflictStorage interface {
	// GetConflict returns ErrConflictNotFound if entity has no conflict history
	GetConflict(ctx context.Context, ref models.EntityRef) (*models.EntityConflictState, error)

	// SaveConflict stores or updates conflict state
	SaveConflict(ctx context.Context, state *models.EntityConflictState) error

	// DeleteConflict removes conflict state; deleting a missing state is not an error
	DeleteConflict(ctx context.Context, ref models.EntityRef) error

	// ListConflicts returns every entity currently in conflict
	ListConflicts(ctx context.Context) ([]*models.EntityConflictState, error)
}
