package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/tasksync/internal/crdt"
	"github.com/iudanet/tasksync/internal/models"
)

// Причины full-state операций
const (
	ReasonImport             = "import"
	ReasonPasswordChange     = "password_change"
	ReasonEncryptionEnabled  = "encryption_enabled"
	ReasonEncryptionDisabled = "encryption_disabled"
	ReasonForceUpload        = "force_upload"
)

// DecryptRemedy способ выхода из ошибки расшифровки
type DecryptRemedy int

const (
	// RemedyResync установить пароль и повторить синхронизацию
	RemedyResync DecryptRemedy = iota
	// RemedyForceUpload установить пароль и перезаписать удаленное состояние локальным
	RemedyForceUpload
)

// EnqueueFullState ставит в очередь full-state операцию с текущим локальным состоянием.
// Все ожидающие операции заменяются ею. Вызывать внутри RunWithSyncBlocked.
func (e *Engine) EnqueueFullState(ctx context.Context, reason string) (*models.Operation, error) {
	entities, err := e.store.ListEntities(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	payload, err := json.Marshal(models.FullStatePayload{Reason: reason, Entities: entities})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal full state: %w", err)
	}

	if err := e.store.ClearPending(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear pending operations: %w", err)
	}
	if err := e.clearConflicts(ctx); err != nil {
		return nil, err
	}

	now := e.now()
	op := &models.Operation{
		CreatedAt: now,
		// часы full-state операции информативны: сервер принимает ее без сравнения
		Clock:     crdt.VectorClock{e.cfg.ClientID: now.UnixMilli()},
		EntityRef: models.FullStateRef,
		ID:        uuid.New().String(),
		ClientID:  e.cfg.ClientID,
		Kind:      models.OpFullState,
		Payload:   payload,
	}
	if err := e.store.Append(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to append full-state operation: %w", err)
	}

	e.logger.Info("Full-state operation queued", "reason", reason, "entities", len(entities), "op_id", op.ID)
	return op, nil
}

// EnableEncryption включает шифрование с новым паролем.
// Удаленное состояние перезаписывается зашифрованной копией локального.
func (e *Engine) EnableEncryption(ctx context.Context, password string) error {
	return e.RunWithSyncBlocked(ctx, func(ctx context.Context) error {
		if err := e.enc.Rotate(ctx, password); err != nil {
			return fmt.Errorf("failed to enable encryption: %w", err)
		}
		_, err := e.EnqueueFullState(ctx, ReasonEncryptionEnabled)
		return err
	})
}

// ChangePassword устанавливает новый пароль со свежей солью.
// Данные под старым ключом заменяются full-state операцией.
func (e *Engine) ChangePassword(ctx context.Context, password string) error {
	return e.RunWithSyncBlocked(ctx, func(ctx context.Context) error {
		if err := e.enc.Rotate(ctx, password); err != nil {
			return fmt.Errorf("failed to change password: %w", err)
		}
		_, err := e.EnqueueFullState(ctx, ReasonPasswordChange)
		return err
	})
}

// DisableEncryption выключает шифрование и перезаписывает удаленное состояние открытым
func (e *Engine) DisableEncryption(ctx context.Context) error {
	return e.RunWithSyncBlocked(ctx, func(ctx context.Context) error {
		if err := e.enc.Disable(ctx); err != nil {
			return fmt.Errorf("failed to disable encryption: %w", err)
		}
		_, err := e.EnqueueFullState(ctx, ReasonEncryptionDisabled)
		return err
	})
}

// ResolveDecryptError устанавливает пароль, введенный пользователем после ошибки
// расшифровки, и запускает новый цикл.
func (e *Engine) ResolveDecryptError(ctx context.Context, password string, remedy DecryptRemedy) (*CycleResult, error) {
	err := e.RunWithSyncBlocked(ctx, func(ctx context.Context) error {
		if err := e.enc.SetPassword(ctx, password); err != nil {
			return fmt.Errorf("failed to set password: %w", err)
		}
		if remedy == RemedyForceUpload {
			if _, err := e.EnqueueFullState(ctx, ReasonForceUpload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return e.RunSyncCycle(ctx)
}
