package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/tasksync/internal/client/storage"
	"github.com/iudanet/tasksync/internal/models"
)

// SaveEntity stores or updates entity state
func (s *Storage) SaveEntity(ctx context.Context, state *models.EntityState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	err = s.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntities).Put(state.Ref.Key(), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save entity %s: %w", state.Ref, err)
	}

	return nil
}

// GetEntity retrieves entity state by ref
func (s *Storage) GetEntity(ctx context.Context, ref models.EntityRef) (*models.EntityState, error) {
	var state *models.EntityState

	err := s.view(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEntities).Get(ref.Key())
		if data == nil {
			return storage.ErrEntityNotFound
		}

		state = &models.EntityState{}
		if err := json.Unmarshal(data, state); err != nil {
			return fmt.Errorf("failed to unmarshal entity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

// ListEntities returns all entities ordered by ref
func (s *Storage) ListEntities(ctx context.Context, includeDeleted bool) ([]*models.EntityState, error) {
	var states []*models.EntityState

	err := s.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntities).ForEach(func(k, v []byte) error {
			var state models.EntityState
			if err := json.Unmarshal(v, &state); err != nil {
				return fmt.Errorf("failed to unmarshal entity: %w", err)
			}
			if state.Deleted && !includeDeleted {
				return nil
			}
			states = append(states, &state)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	return states, nil
}

// ReplaceEntities atomically replaces the whole entity set
func (s *Storage) ReplaceEntities(ctx context.Context, states []*models.EntityState) error {
	err := s.update(func(tx *bbolt.Tx) error {
		// Удаляем bucket полностью и создаем заново
		if err := tx.DeleteBucket(bucketEntities); err != nil {
			return fmt.Errorf("failed to delete bucket: %w", err)
		}
		bucket, err := tx.CreateBucket(bucketEntities)
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}

		for _, state := range states {
			data, err := json.Marshal(state)
			if err != nil {
				return fmt.Errorf("failed to marshal entity: %w", err)
			}
			if err := bucket.Put(state.Ref.Key(), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace entities transaction failed: %w", err)
	}

	return nil
}
