package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/tasksync/internal/client/storage"
	"github.com/iudanet/tasksync/internal/models"
)

const (
	keyCursor           = "cursor"
	keyClientID         = "client_id"
	keyEncryptionConfig = "encryption_config"
	keySyncState        = "sync_state"
)

// SaveCursor saves the latest server sequence observed by this device
func (s *Storage) SaveCursor(ctx context.Context, seq int64) error {
	// Конвертируем int64 в bytes
	seqBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBytes, uint64(seq))

	err := s.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put([]byte(keyCursor), seqBytes)
	})
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// GetCursor returns 0 if no sync has been performed yet
func (s *Storage) GetCursor(ctx context.Context) (int64, error) {
	var seq int64

	err := s.view(func(tx *bbolt.Tx) error {
		seqBytes := tx.Bucket(bucketMetadata).Get([]byte(keyCursor))
		if seqBytes == nil {
			// первая синхронизация
			return nil
		}
		seq = int64(binary.BigEndian.Uint64(seqBytes))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor: %w", err)
	}

	return seq, nil
}

// SaveClientID stores the device identifier
func (s *Storage) SaveClientID(ctx context.Context, clientID string) error {
	return s.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put([]byte(keyClientID), []byte(clientID))
	})
}

// GetClientID returns ErrMetadataNotFound if the device has no identifier yet
func (s *Storage) GetClientID(ctx context.Context) (string, error) {
	var clientID string

	err := s.view(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMetadata).Get([]byte(keyClientID))
		if data == nil {
			return storage.ErrMetadataNotFound
		}
		clientID = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}

	return clientID, nil
}

// SaveEncryptionConfig persists encryption settings
func (s *Storage) SaveEncryptionConfig(ctx context.Context, cfg *models.EncryptionConfig) error {
	return s.putJSON(keyEncryptionConfig, cfg)
}

// GetEncryptionConfig returns a disabled config if none was saved
func (s *Storage) GetEncryptionConfig(ctx context.Context) (*models.EncryptionConfig, error) {
	cfg := &models.EncryptionConfig{}
	if err := s.getJSON(keyEncryptionConfig, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveSyncState records the outcome of the last cycle
func (s *Storage) SaveSyncState(ctx context.Context, state *storage.SyncState) error {
	return s.putJSON(keySyncState, state)
}

// GetSyncState returns IDLE state if no cycle has run yet
func (s *Storage) GetSyncState(ctx context.Context) (*storage.SyncState, error) {
	state := &storage.SyncState{Status: models.SyncStatusIdle}
	if err := s.getJSON(keySyncState, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Storage) putJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	err = s.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// getJSON оставляет v без изменений, если ключ не сохранен
func (s *Storage) getJSON(key string, v any) error {
	err := s.view(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMetadata).Get([]byte(key))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, v)
	})
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	return nil
}
