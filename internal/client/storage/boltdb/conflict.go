package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/tasksync/internal/client/storage"
	"github.com/iudanet/tasksync/internal/models"
)

// GetConflict returns conflict state for entity
func (s *Storage) GetConflict(ctx context.Context, ref models.EntityRef) (*models.EntityConflictState, error) {
	var state *models.EntityConflictState

	err := s.view(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketConflicts).Get(ref.Key())
		if data == nil {
			return storage.ErrConflictNotFound
		}

		state = &models.EntityConflictState{}
		return json.Unmarshal(data, state)
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

// SaveConflict stores or updates conflict state
func (s *Storage) SaveConflict(ctx context.Context, state *models.EntityConflictState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal conflict state: %w", err)
	}

	return s.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConflicts).Put(state.EntityRef.Key(), data)
	})
}

// DeleteConflict removes conflict state
func (s *Storage) DeleteConflict(ctx context.Context, ref models.EntityRef) error {
	return s.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConflicts).Delete(ref.Key())
	})
}

// ListConflicts returns every entity currently in conflict
func (s *Storage) ListConflicts(ctx context.Context) ([]*models.EntityConflictState, error) {
	var states []*models.EntityConflictState

	err := s.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConflicts).ForEach(func(k, v []byte) error {
			var state models.EntityConflictState
			if err := json.Unmarshal(v, &state); err != nil {
				return fmt.Errorf("failed to unmarshal conflict state: %w", err)
			}
			states = append(states, &state)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}

	return states, nil
}
