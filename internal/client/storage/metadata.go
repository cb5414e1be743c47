package storage

import (
	"context"
	"time"

	"github.com/iudanet/tasksync/internal/models"
)

// SyncState последний известный результат синхронизации устройства
type SyncState struct {
	LastSyncAt time.Time         `json:"last_sync_at"`
	Status     models.SyncStatus `json:"status"`
	LastError  string            `json:"last_error,omitempty"`
}

//go:generate moq -out metadata_mock.go . MetadataStorage

// MetadataStorage defines interface for storing client metadata
type MetadataStorage interface {
	// SaveCursor saves the latest server sequence observed by this device
	SaveCursor(ctx context.Context, seq int64) error

	// GetCursor returns 0 if no sync has been performed yet
	GetCursor(ctx context.Context) (int64, error)

	// SaveClientID stores the device identifier used in clock vectors
	SaveClientID(ctx context.Context, clientID string) error

	// GetClientID returns ErrMetadataNotFound if the device has no identifier yet
	GetClientID(ctx context.Context) (string, error)

	// SaveEncryptionConfig persists encryption settings (never the key itself)
	SaveEncryptionConfig(ctx context.Context, cfg *models.EncryptionConfig) error

	// GetEncryptionConfig returns a disabled config if none was saved
	GetEncryptionConfig(ctx context.Context) (*models.EncryptionConfig, error)

	// SaveSyncState records the outcome of the last cycle
	SaveSyncState(ctx context.Context, state *SyncState) error

	// GetSyncState returns IDLE state if no cycle has run yet
	GetSyncState(ctx context.Context) (*SyncState, error)
}

// Store объединяет все хранилища устройства
type Store interface {
	OpLogStorage
	EntityStorage
	ConflictStorage
	MetadataStorage
}
