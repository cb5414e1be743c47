package boltdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/tasksync/internal/client/storage"
	"github.com/iudanet/tasksync/internal/models"
)

// pendingBatchSize сколько операций читается за одну транзакцию при итерации
const pendingBatchSize = 64

// archivedOp запись архива журнала
type archivedOp struct {
	ArchivedAt time.Time         `json:"archived_at"`
	Op         *models.Operation `json:"op"`
	State      storage.OpState   `json:"state"`
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Append adds operation to the pending set
func (s *Storage) Append(ctx context.Context, op *models.Operation) error {
	if op.ID == "" {
		return fmt.Errorf("operation id is required")
	}

	err := s.update(func(tx *bbolt.Tx) error {
		index := tx.Bucket(bucketOpIndex)
		if index.Get([]byte(op.ID)) != nil || tx.Bucket(bucketArchive).Get([]byte(op.ID)) != nil {
			return fmt.Errorf("operation %s already exists", op.ID)
		}

		pending := tx.Bucket(bucketPending)
		seq, err := pending.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
		op.Seq = seq

		data, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("failed to marshal operation: %w", err)
		}

		if err := pending.Put(seqKey(seq), data); err != nil {
			return fmt.Errorf("failed to save operation: %w", err)
		}
		return index.Put([]byte(op.ID), seqKey(seq))
	})
	if err != nil {
		return fmt.Errorf("append transaction failed: %w", err)
	}

	return nil
}

// PendingSince returns pending operations with Seq > cursor in creation order.
// Operations are read in short transactions, so the caller may write to the log
// (mark accepted, append) while iterating.
func (s *Storage) PendingSince(ctx context.Context, cursor uint64) iter.Seq2[*models.Operation, error] {
	return func(yield func(*models.Operation, error) bool) {
		next := cursor + 1
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			batch, err := s.readPending(next, pendingBatchSize)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, op := range batch {
				if !yield(op, nil) {
					return
				}
			}

			if len(batch) < pendingBatchSize {
				return
			}
			next = batch[len(batch)-1].Seq + 1
		}
	}
}

func (s *Storage) readPending(from uint64, limit int) ([]*models.Operation, error) {
	var ops []*models.Operation

	err := s.view(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketPending).Cursor()
		for k, v := c.Seek(seqKey(from)); k != nil && len(ops) < limit; k, v = c.Next() {
			var op models.Operation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("failed to unmarshal operation: %w", err)
			}
			ops = append(ops, &op)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read pending operations: %w", err)
	}

	return ops, nil
}

// PendingForEntity returns pending operations touching ref
func (s *Storage) PendingForEntity(ctx context.Context, ref models.EntityRef) ([]*models.Operation, error) {
	var ops []*models.Operation
	for op, err := range s.PendingSince(ctx, 0) {
		if err != nil {
			return nil, err
		}
		if op.EntityRef == ref {
			ops = append(ops, op)
		}
	}
	return ops, nil
}

// PendingCount returns the number of pending operations
func (s *Storage) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.view(func(tx *bbolt.Tx) error {
		count = tx.Bucket(bucketPending).Stats().KeyN
		return nil
	})
	return count, err
}

// MarkAccepted archives an accepted operation
func (s *Storage) MarkAccepted(ctx context.Context, opID string) error {
	return s.archive(opID, storage.OpStateAccepted)
}

// MarkPermanentlyRejected drops operation from pending, entity state is not rolled back
func (s *Storage) MarkPermanentlyRejected(ctx context.Context, opID string) error {
	return s.archive(opID, storage.OpStateRejected)
}

// Supersede drops operation replaced by a newer one
func (s *Storage) Supersede(ctx context.Context, opID string) error {
	return s.archive(opID, storage.OpStateReplaced)
}

// archive переносит операцию из pending в архив с указанным состоянием.
// Повторный вызов для уже архивированной операции ничего не меняет.
func (s *Storage) archive(opID string, state storage.OpState) error {
	err := s.update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketArchive).Get([]byte(opID)) != nil {
			return nil
		}
		return s.archiveTx(tx, opID, state)
	})
	if err != nil {
		return fmt.Errorf("failed to mark %s %s: %w", opID, state, err)
	}
	return nil
}

func (s *Storage) archiveTx(tx *bbolt.Tx, opID string, state storage.OpState) error {
	index := tx.Bucket(bucketOpIndex)
	key := index.Get([]byte(opID))
	if key == nil {
		return storage.ErrOperationNotFound
	}
	key = bytes.Clone(key)

	pending := tx.Bucket(bucketPending)
	data := pending.Get(key)
	if data == nil {
		return storage.ErrOperationNotFound
	}

	var op models.Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return fmt.Errorf("failed to unmarshal operation: %w", err)
	}

	record, err := json.Marshal(archivedOp{ArchivedAt: s.now(), Op: &op, State: state})
	if err != nil {
		return fmt.Errorf("failed to marshal archive record: %w", err)
	}

	if err := tx.Bucket(bucketArchive).Put([]byte(opID), record); err != nil {
		return err
	}
	if err := pending.Delete(key); err != nil {
		return err
	}
	return index.Delete([]byte(opID))
}

// ClearPending supersedes every pending operation
func (s *Storage) ClearPending(ctx context.Context) error {
	err := s.update(func(tx *bbolt.Tx) error {
		var ids []string
		err := tx.Bucket(bucketPending).ForEach(func(k, v []byte) error {
			var op models.Operation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("failed to unmarshal operation: %w", err)
			}
			ids = append(ids, op.ID)
			return nil
		})
		if err != nil {
			return err
		}

		for _, id := range ids {
			if err := s.archiveTx(tx, id, storage.OpStateReplaced); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear pending transaction failed: %w", err)
	}
	return nil
}

// RecordApplied archives a remote operation applied to local state
func (s *Storage) RecordApplied(ctx context.Context, op *models.Operation) error {
	record, err := json.Marshal(archivedOp{ArchivedAt: s.now(), Op: op, State: storage.OpStateApplied})
	if err != nil {
		return fmt.Errorf("failed to marshal archive record: %w", err)
	}

	return s.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketArchive).Put([]byte(op.ID), record)
	})
}

// State returns the log state of the operation id
func (s *Storage) State(ctx context.Context, opID string) (storage.OpState, error) {
	var state storage.OpState

	err := s.view(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketOpIndex).Get([]byte(opID)) != nil {
			state = storage.OpStatePending
			return nil
		}

		data := tx.Bucket(bucketArchive).Get([]byte(opID))
		if data == nil {
			return storage.ErrOperationNotFound
		}

		var record archivedOp
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("failed to unmarshal archive record: %w", err)
		}
		state = record.State
		return nil
	})
	if err != nil {
		return "", err
	}

	return state, nil
}

// IsKnown reports whether the operation id is present in the log
func (s *Storage) IsKnown(ctx context.Context, opID string) (bool, error) {
	_, err := s.State(ctx, opID)
	if errors.Is(err, storage.ErrOperationNotFound) {
		return false, nil
	}
	return err == nil, err
}
