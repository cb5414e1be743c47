// Package resolver реализует ограниченное по числу попыток разрешение
// конфликтов CONFLICT_CONCURRENT для отдельных сущностей.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/tasksync/internal/client/storage"
	"github.com/iudanet/tasksync/internal/crdt"
	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/pkg/api"
)

// DefaultMaxAttempts сколько раз подряд сущность может получить CONFLICT_CONCURRENT,
// прежде чем ее операции будут окончательно отклонены
const DefaultMaxAttempts = 3

// Outcome результат обработки отказа сервера
type Outcome int

const (
	// OutcomeLeftPending код ошибки не поддается разрешению в этом цикле, операция остается в очереди
	OutcomeLeftPending Outcome = iota
	// OutcomeMerged часы объединены с серверными, в очередь поставлена новая операция
	OutcomeMerged
	// OutcomePermanentlyRejected лимит попыток превышен, операции сущности отброшены
	OutcomePermanentlyRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLeftPending:
		return "left_pending"
	case OutcomeMerged:
		return "merged"
	case OutcomePermanentlyRejected:
		return "permanently_rejected"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Store хранилища, которые нужны резолверу
type Store interface {
	Append(ctx context.Context, op *models.Operation) error
	PendingForEntity(ctx context.Context, ref models.EntityRef) ([]*models.Operation, error)
	MarkPermanentlyRejected(ctx context.Context, opID string) error
	Supersede(ctx context.Context, opID string) error

	GetEntity(ctx context.Context, ref models.EntityRef) (*models.EntityState, error)
	SaveEntity(ctx context.Context, state *models.EntityState) error

	GetConflict(ctx context.Context, ref models.EntityRef) (*models.EntityConflictState, error)
	SaveConflict(ctx context.Context, state *models.EntityConflictState) error
	DeleteConflict(ctx context.Context, ref models.EntityRef) error
}

// Result результат Resolve
type Result struct {
	// Requeued новая операция, поставленная в очередь при OutcomeMerged
	Requeued *models.Operation
	// RejectedOpIDs операции, отброшенные при OutcomePermanentlyRejected
	RejectedOpIDs []string
	Outcome       Outcome
	RetryCount    int
}

// Resolver ведет конечный автомат конфликта для каждой сущности:
// CLEAN -> CONFLICTED -> {RESOLVED, PERMANENTLY_REJECTED}
type Resolver struct {
	store       Store
	logger      *slog.Logger
	now         func() time.Time
	clientID    string
	maxAttempts int
}

// New создает резолвер. maxAttempts <= 0 означает DefaultMaxAttempts.
func New(store Store, clientID string, maxAttempts int, logger *slog.Logger) *Resolver {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Resolver{
		store:       store,
		logger:      logger,
		now:         time.Now,
		clientID:    clientID,
		maxAttempts: maxAttempts,
	}
}

// MaxAttempts возвращает действующий лимит попыток
func (r *Resolver) MaxAttempts() int {
	return r.maxAttempts
}

// Accepted сервер принял операцию по сущности: история конфликта очищается
func (r *Resolver) Accepted(ctx context.Context, ref models.EntityRef) error {
	if err := r.store.DeleteConflict(ctx, ref); err != nil {
		return fmt.Errorf("failed to clear conflict state for %s: %w", ref, err)
	}
	return nil
}

// Resolve обрабатывает отказ сервера по операции op.
// Вызывается не больше одного раза за цикл для каждой сущности.
func (r *Resolver) Resolve(ctx context.Context, op *models.Operation, result api.OpResult) (*Result, error) {
	if result.ErrorCode != api.ErrorCodeConflictConcurrent {
		r.logger.Warn("Operation rejected, left pending",
			"op_id", op.ID, "entity", op.EntityRef, "error_code", result.ErrorCode, "error", result.Error)
		return &Result{Outcome: OutcomeLeftPending}, nil
	}

	ref := op.EntityRef
	serverClock := crdt.VectorClock(result.ExistingClock)

	state, err := r.store.GetConflict(ctx, ref)
	switch {
	case errors.Is(err, storage.ErrConflictNotFound):
		state = &models.EntityConflictState{EntityRef: ref, RetryCount: 1}
	case err != nil:
		return nil, fmt.Errorf("failed to get conflict state for %s: %w", ref, err)
	default:
		state.RetryCount++
	}
	state.LastErrorCode = string(result.ErrorCode)
	state.LastKnownServerClock = serverClock.Clone()
	state.UpdatedAt = r.now()

	if state.RetryCount > r.maxAttempts {
		return r.reject(ctx, ref, state.RetryCount)
	}

	if err := r.store.SaveConflict(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save conflict state for %s: %w", ref, err)
	}

	requeued, err := r.merge(ctx, op, serverClock)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Concurrent modification merged",
		"entity", ref, "retry", state.RetryCount, "max", r.maxAttempts, "clock", requeued.Clock)

	return &Result{Outcome: OutcomeMerged, Requeued: requeued, RetryCount: state.RetryCount}, nil
}

// reject окончательно отбрасывает все ожидающие операции сущности.
// Локальное состояние сущности не трогается.
func (r *Resolver) reject(ctx context.Context, ref models.EntityRef, retryCount int) (*Result, error) {
	pending, err := r.store.PendingForEntity(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending operations for %s: %w", ref, err)
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		if err := r.store.MarkPermanentlyRejected(ctx, p.ID); err != nil {
			return nil, fmt.Errorf("failed to reject operation %s: %w", p.ID, err)
		}
		ids = append(ids, p.ID)
	}

	if err := r.store.DeleteConflict(ctx, ref); err != nil {
		return nil, fmt.Errorf("failed to clear conflict state for %s: %w", ref, err)
	}

	r.logger.Error("Entity permanently rejected after repeated concurrent modifications",
		"entity", ref, "attempts", retryCount, "rejected_ops", len(ids))

	return &Result{Outcome: OutcomePermanentlyRejected, RejectedOpIDs: ids, RetryCount: retryCount}, nil
}

// merge объединяет часы локальной сущности с серверными и ставит в очередь
// свежую операцию с локальным состоянием. Новые часы доминируют над серверными.
func (r *Resolver) merge(ctx context.Context, op *models.Operation, serverClock crdt.VectorClock) (*models.Operation, error) {
	ref := op.EntityRef
	kind := models.OpUpdate
	var payload []byte

	var merged crdt.VectorClock
	if ref.IsFullState() {
		// full-state операция не материализуется в сущность
		merged = op.Clock.Merge(serverClock).Increment(r.clientID)
		kind = models.OpFullState
		payload = op.Payload
	} else {
		entity, err := r.store.GetEntity(ctx, ref)
		switch {
		case errors.Is(err, storage.ErrEntityNotFound):
			// локального состояния нет, восстанавливаем его из отклоненной операции
			entity = &models.EntityState{
				Clock:   op.Clock.Clone(),
				Ref:     ref,
				Data:    op.Payload,
				Deleted: op.Kind == models.OpDelete,
			}
		case err != nil:
			return nil, fmt.Errorf("failed to get entity %s: %w", ref, err)
		}

		merged = entity.Clock.Merge(op.Clock).Merge(serverClock).Increment(r.clientID)
		entity.Clock = merged
		entity.UpdatedAt = r.now()
		if err := r.store.SaveEntity(ctx, entity); err != nil {
			return nil, fmt.Errorf("failed to save merged entity %s: %w", ref, err)
		}

		if entity.Deleted {
			kind = models.OpDelete
		} else {
			payload = entity.Data
		}
	}

	pending, err := r.store.PendingForEntity(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending operations for %s: %w", ref, err)
	}
	for _, p := range pending {
		if err := r.store.Supersede(ctx, p.ID); err != nil {
			return nil, fmt.Errorf("failed to supersede operation %s: %w", p.ID, err)
		}
	}

	requeued := &models.Operation{
		CreatedAt: r.now(),
		Clock:     merged.Clone(),
		EntityRef: ref,
		ID:        uuid.New().String(),
		ClientID:  r.clientID,
		Kind:      kind,
		Payload:   payload,
	}
	if err := r.store.Append(ctx, requeued); err != nil {
		return nil, fmt.Errorf("failed to requeue operation for %s: %w", ref, err)
	}

	return requeued, nil
}
