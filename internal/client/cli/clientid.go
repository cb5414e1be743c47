package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/tasksync/internal/client/storage"
	"github.com/iudanet/tasksync/internal/crdt"
	"github.com/iudanet/tasksync/internal/validation"
)

// ClientIDStore хранение идентификатора устройства
type ClientIDStore interface {
	GetClientID(ctx context.Context) (string, error)
	SaveClientID(ctx context.Context, clientID string) error
}

// resolveClientID возвращает идентификатор устройства для часов.
// override из конфигурации заменяет сохраненный; при первом запуске
// идентификатор генерируется и сохраняется.
func resolveClientID(ctx context.Context, store ClientIDStore, override string) (string, error) {
	if override != "" {
		if err := validation.ValidateIdentifier(override); err != nil {
			return "", fmt.Errorf("invalid client_id: %w", err)
		}
		if err := store.SaveClientID(ctx, override); err != nil {
			return "", fmt.Errorf("failed to save client id: %w", err)
		}
		return override, nil
	}

	clientID, err := store.GetClientID(ctx)
	if err == nil {
		return clientID, nil
	}
	if !errors.Is(err, storage.ErrMetadataNotFound) {
		return "", fmt.Errorf("failed to get client id: %w", err)
	}

	clientID = crdt.NewClientID()
	if err := store.SaveClientID(ctx, clientID); err != nil {
		return "", fmt.Errorf("failed to save client id: %w", err)
	}
	return clientID, nil
}
