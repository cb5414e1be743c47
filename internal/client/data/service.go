package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/tasksync/internal/client/storage"
	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/internal/validation"
)

// ErrNotFound сущность не существует или удалена
var ErrNotFound = errors.New("entity not found")

//go:generate moq -out service_mock.go . Service

// Service локальные изменения сущностей. Каждое изменение записывает
// новое состояние сущности и операцию в журнал.
type Service interface {
	Put(ctx context.Context, ref models.EntityRef, data json.RawMessage) (*models.EntityState, error)
	Delete(ctx context.Context, ref models.EntityRef) error
	Get(ctx context.Context, ref models.EntityRef) (*models.EntityState, error)
	List(ctx context.Context, entityType models.EntityType) ([]*models.EntityState, error)
}

// Store хранилища, нужные сервису
type Store interface {
	SaveEntity(ctx context.Context, state *models.EntityState) error
	GetEntity(ctx context.Context, ref models.EntityRef) (*models.EntityState, error)
	ListEntities(ctx context.Context, includeDeleted bool) ([]*models.EntityState, error)
	Append(ctx context.Context, op *models.Operation) error
}

// Serializer не дает изменениям пересекаться с циклом синхронизации
type Serializer interface {
	RunWithSyncBlocked(ctx context.Context, fn func(ctx context.Context) error) error
}

type service struct {
	store    Store
	serial   Serializer
	now      func() time.Time
	clientID string
}

// NewService creates a new data service. serial может быть nil.
func NewService(store Store, clientID string, serial Serializer) Service {
	return &service{
		store:    store,
		serial:   serial,
		now:      time.Now,
		clientID: clientID,
	}
}

func (s *service) serialized(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.serial == nil {
		return fn(ctx)
	}
	return s.serial.RunWithSyncBlocked(ctx, fn)
}

func validateRef(ref models.EntityRef) error {
	if err := validation.ValidateEntityType(string(ref.Type)); err != nil {
		return err
	}
	return validation.ValidateIdentifier(ref.ID)
}

// Put создает или обновляет сущность
func (s *service) Put(ctx context.Context, ref models.EntityRef, data json.RawMessage) (*models.EntityState, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	if err := validation.ValidateEntityData(data); err != nil {
		return nil, err
	}

	var state *models.EntityState
	err := s.serialized(ctx, func(ctx context.Context) error {
		kind := models.OpUpdate
		current, err := s.store.GetEntity(ctx, ref)
		switch {
		case errors.Is(err, storage.ErrEntityNotFound):
			kind = models.OpCreate
			current = &models.EntityState{Ref: ref}
		case err != nil:
			return fmt.Errorf("failed to get entity %s: %w", ref, err)
		case current.Deleted:
			kind = models.OpCreate
		}

		state = &models.EntityState{
			UpdatedAt: s.now(),
			Clock:     current.Clock.Increment(s.clientID),
			Ref:       ref,
			Data:      data,
		}
		return s.record(ctx, state, kind, data)
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

// Delete помечает сущность удаленной (tombstone)
func (s *service) Delete(ctx context.Context, ref models.EntityRef) error {
	if err := validateRef(ref); err != nil {
		return err
	}

	return s.serialized(ctx, func(ctx context.Context) error {
		current, err := s.store.GetEntity(ctx, ref)
		if errors.Is(err, storage.ErrEntityNotFound) || (err == nil && current.Deleted) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get entity %s: %w", ref, err)
		}

		state := &models.EntityState{
			UpdatedAt: s.now(),
			Clock:     current.Clock.Increment(s.clientID),
			Ref:       ref,
			Deleted:   true,
		}
		return s.record(ctx, state, models.OpDelete, nil)
	})
}

func (s *service) record(ctx context.Context, state *models.EntityState, kind models.OpKind, payload []byte) error {
	if err := s.store.SaveEntity(ctx, state); err != nil {
		return fmt.Errorf("failed to save entity %s: %w", state.Ref, err)
	}

	op := &models.Operation{
		CreatedAt: state.UpdatedAt,
		Clock:     state.Clock.Clone(),
		EntityRef: state.Ref,
		ID:        uuid.New().String(),
		ClientID:  s.clientID,
		Kind:      kind,
		Payload:   payload,
	}
	if err := s.store.Append(ctx, op); err != nil {
		return fmt.Errorf("failed to append operation: %w", err)
	}
	return nil
}

// Get возвращает сущность, ErrNotFound для отсутствующих и удаленных
func (s *service) Get(ctx context.Context, ref models.EntityRef) (*models.EntityState, error) {
	state, err := s.store.GetEntity(ctx, ref)
	if errors.Is(err, storage.ErrEntityNotFound) || (err == nil && state.Deleted) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity %s: %w", ref, err)
	}
	return state, nil
}

// List возвращает неудаленные сущности типа entityType (все типы, если пусто),
// отсортированные по ссылке
func (s *service) List(ctx context.Context, entityType models.EntityType) ([]*models.EntityState, error) {
	all, err := s.store.ListEntities(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	out := make([]*models.EntityState, 0, len(all))
	for _, state := range all {
		if entityType == "" || state.Ref.Type == entityType {
			out = append(out, state)
		}
	}
	slices.SortFunc(out, func(a, b *models.EntityState) int {
		return strings.Compare(a.Ref.String(), b.Ref.String())
	})
	return out, nil
}
