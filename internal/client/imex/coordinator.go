// Package imex импорт и экспорт полного состояния устройства.
//
// Импорт заменяет локальное состояние состоянием бэкапа и ставит в очередь
// full-state операцию. Если флаг шифрования бэкапа отличается от текущего,
// перед импортом нужно явное подтверждение пользователя.
package imex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/iudanet/tasksync/internal/client/sync"
	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/internal/validation"
)

var (
	// ErrImportCancelled пользователь не подтвердил импорт
	ErrImportCancelled = errors.New("import cancelled by user")

	// ErrInvalidBackup файл бэкапа поврежден или имеет неподдерживаемую версию
	ErrInvalidBackup = errors.New("invalid backup")
)

// Decision результат сравнения флагов шифрования
type Decision int

const (
	// NoChange флаги совпадают, импорт выполняется сразу
	NoChange Decision = iota
	// RequiresConfirmation флаги различаются, нужно подтверждение
	RequiresConfirmation
)

func (d Decision) String() string {
	switch d {
	case NoChange:
		return "NO_CHANGE"
	case RequiresConfirmation:
		return "REQUIRES_CONFIRMATION"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// EvaluateImport сравнивает текущий флаг шифрования с флагом бэкапа
func EvaluateImport(currentEncryptionEnabled, backupEncryptionEnabled bool) Decision {
	if currentEncryptionEnabled == backupEncryptionEnabled {
		return NoChange
	}
	return RequiresConfirmation
}

//go:generate moq -out confirmer_mock.go . Confirmer

// Confirmer запрашивает у пользователя подтверждение смены режима шифрования
type Confirmer interface {
	ConfirmImport(ctx context.Context, currentEncrypted, backupEncrypted bool) (bool, error)
}

// ConfirmFunc адаптер функции к Confirmer
type ConfirmFunc func(ctx context.Context, currentEncrypted, backupEncrypted bool) (bool, error)

// ConfirmImport вызывает f
func (f ConfirmFunc) ConfirmImport(ctx context.Context, currentEncrypted, backupEncrypted bool) (bool, error) {
	return f(ctx, currentEncrypted, backupEncrypted)
}

// Store хранилище сущностей устройства
type Store interface {
	ListEntities(ctx context.Context, includeDeleted bool) ([]*models.EntityState, error)
	ReplaceEntities(ctx context.Context, states []*models.EntityState) error
}

// Gateway состояние шифрования
type Gateway interface {
	IsEnabled() bool
	Invalidate(ctx context.Context, enabled bool) error
}

// Engine движок синхронизации: блокировка циклов и full-state операции
type Engine interface {
	RunWithSyncBlocked(ctx context.Context, fn func(ctx context.Context) error) error
	EnqueueFullState(ctx context.Context, reason string) (*models.Operation, error)
}

var _ Engine = (*sync.Engine)(nil)

// ImportResult итог импорта
type ImportResult struct {
	OpID     string
	Entities int
	Decision Decision
	// NeedsPassword бэкап зашифрован: до следующего цикла нужно установить пароль
	NeedsPassword bool
}

// Coordinator выполняет импорт и экспорт
type Coordinator struct {
	store   Store
	gateway Gateway
	engine  Engine
	logger  *slog.Logger
	now     func() time.Time
}

// NewCoordinator создает координатор
func NewCoordinator(store Store, gateway Gateway, engine Engine, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:   store,
		gateway: gateway,
		engine:  engine,
		logger:  logger,
		now:     time.Now,
	}
}

// Import заменяет локальное состояние бэкапом.
// Прежняя конфигурация шифрования сбрасывается: флаг берется из бэкапа,
// ключ нужно установить заново. Циклы синхронизации на время импорта блокируются.
func (c *Coordinator) Import(ctx context.Context, backup *models.Backup, confirmer Confirmer) (*ImportResult, error) {
	if err := ValidateBackup(backup); err != nil {
		return nil, err
	}

	result := &ImportResult{
		Entities:      len(backup.Entities),
		NeedsPassword: backup.IsEncryptionEnabled,
	}

	err := c.engine.RunWithSyncBlocked(ctx, func(ctx context.Context) error {
		current := c.gateway.IsEnabled()
		result.Decision = EvaluateImport(current, backup.IsEncryptionEnabled)

		if result.Decision == RequiresConfirmation {
			if confirmer == nil {
				return ErrImportCancelled
			}
			ok, err := confirmer.ConfirmImport(ctx, current, backup.IsEncryptionEnabled)
			if err != nil {
				return fmt.Errorf("failed to confirm import: %w", err)
			}
			if !ok {
				return ErrImportCancelled
			}
		}

		entities := make([]*models.EntityState, 0, len(backup.Entities))
		for _, e := range backup.Entities {
			entities = append(entities, e.Clone())
		}
		if err := c.store.ReplaceEntities(ctx, entities); err != nil {
			return fmt.Errorf("failed to replace entities: %w", err)
		}

		if err := c.gateway.Invalidate(ctx, backup.IsEncryptionEnabled); err != nil {
			return err
		}

		op, err := c.engine.EnqueueFullState(ctx, sync.ReasonImport)
		if err != nil {
			return err
		}
		result.OpID = op.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Backup imported",
		"entities", result.Entities,
		"decision", result.Decision.String(),
		"encrypted", backup.IsEncryptionEnabled,
	)
	return result, nil
}

// Export возвращает снимок текущего состояния (без tombstone)
func (c *Coordinator) Export(ctx context.Context) (*models.Backup, error) {
	entities, err := c.store.ListEntities(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	return &models.Backup{
		ExportedAt:          c.now().UTC(),
		Entities:            entities,
		Version:             models.BackupVersion,
		IsEncryptionEnabled: c.gateway.IsEnabled(),
	}, nil
}

// ValidateBackup проверяет версию и содержимое бэкапа
func ValidateBackup(backup *models.Backup) error {
	if backup == nil {
		return fmt.Errorf("%w: empty backup", ErrInvalidBackup)
	}
	if backup.Version != models.BackupVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidBackup, backup.Version)
	}

	seen := make(map[models.EntityRef]bool, len(backup.Entities))
	for i, e := range backup.Entities {
		if e == nil {
			return fmt.Errorf("%w: entity #%d is empty", ErrInvalidBackup, i)
		}
		if err := validation.ValidateEntityType(string(e.Ref.Type)); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidBackup, e.Ref, err)
		}
		if err := validation.ValidateIdentifier(e.Ref.ID); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidBackup, e.Ref, err)
		}
		if !e.Deleted {
			if err := validation.ValidateEntityData(e.Data); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidBackup, e.Ref, err)
			}
		}
		if seen[e.Ref] {
			return fmt.Errorf("%w: duplicate entity %s", ErrInvalidBackup, e.Ref)
		}
		seen[e.Ref] = true
	}
	return nil
}

// WriteBackup пишет бэкап в формате JSON
func WriteBackup(w io.Writer, backup *models.Backup) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(backup); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	return nil
}

// ReadBackup читает и проверяет бэкап
func ReadBackup(r io.Reader) (*models.Backup, error) {
	var backup models.Backup
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBackup, err)
	}
	if err := ValidateBackup(&backup); err != nil {
		return nil, err
	}
	return &backup, nil
}
