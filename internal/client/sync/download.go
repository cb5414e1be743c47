package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/tasksync/internal/client/storage"
	"github.com/iudanet/tasksync/internal/crdt"
	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/pkg/api"
)

// download загружает удаленные операции постранично начиная с cursor.
// Страница сначала целиком расшифровывается и только потом применяется,
// поэтому ошибка расшифровки не меняет локальное состояние и курсор.
func (e *Engine) download(ctx context.Context, cursor int64, res *CycleResult) error {
	since := cursor
	// После чужой full-state операции собственные операции, принятые сервером позже нее,
	// применяются заново: замена состояния стерла их локально.
	exclude, replayOwn := e.cfg.ClientID, false
	for {
		resp, err := e.transport.DownloadOps(ctx, since, exclude, e.cfg.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrCycleCancelled, err)
			}
			return transportError("download", err)
		}

		ops := make([]*models.Operation, 0, len(resp.Ops))
		for _, remote := range resp.Ops {
			op, err := e.fromWire(remote)
			if err != nil {
				return err
			}
			ops = append(ops, op)
		}
		res.Downloaded += len(ops)

		for _, op := range ops {
			if err := e.applyRemote(ctx, op, replayOwn, res); err != nil {
				return err
			}
			if op.EntityRef.IsFullState() && op.ClientID != e.cfg.ClientID {
				exclude, replayOwn = "", true
			}
		}

		prev := since
		if resp.LatestSeq > since {
			since = resp.LatestSeq
			if err := e.store.SaveCursor(ctx, since); err != nil {
				return fmt.Errorf("failed to save cursor: %w", err)
			}
		}
		if resp.LatestSeq > res.LatestSeq {
			res.LatestSeq = resp.LatestSeq
		}

		// страница могла состоять только из наших операций: продолжаем, пока курсор движется
		if !resp.HasMore || since == prev {
			return nil
		}
	}
}

func (e *Engine) fromWire(remote api.RemoteOp) (*models.Operation, error) {
	payload := remote.Payload
	if remote.Encrypted {
		plain, err := e.enc.Decrypt(remote.Payload)
		if err != nil {
			e.logger.Error("Failed to decrypt remote operation",
				"op_id", remote.ID, "client_id", remote.ClientID, "error", err)
			return nil, fmt.Errorf("remote operation %s: %w", remote.ID, err)
		}
		payload = plain
	}

	return &models.Operation{
		CreatedAt: remote.CreatedAt,
		Clock:     crdt.VectorClock(remote.Clock).Clone(),
		EntityRef: models.EntityRef{Type: models.EntityType(remote.EntityRef.Type), ID: remote.EntityRef.ID},
		ID:        remote.ID,
		ClientID:  remote.ClientID,
		Kind:      models.OpKind(remote.Kind),
		Payload:   payload,
		Seq:       uint64(remote.Seq),
	}, nil
}

// applyRemote применяет удаленную операцию к локальному состоянию.
// Конкурентная операция не перезаписывает локальную версию: локальное состояние
// ставится в очередь заново под объединенными часами.
// replayOwn: собственные уже известные операции применяются повторно.
func (e *Engine) applyRemote(ctx context.Context, op *models.Operation, replayOwn bool, res *CycleResult) error {
	known, err := e.store.IsKnown(ctx, op.ID)
	if err != nil {
		return fmt.Errorf("failed to check operation %s: %w", op.ID, err)
	}
	if known && !(replayOwn && op.ClientID == e.cfg.ClientID) {
		return nil
	}

	if op.EntityRef.IsFullState() {
		if err := e.applyFullState(ctx, op); err != nil {
			return err
		}
		res.Applied++
		return e.store.RecordApplied(ctx, op)
	}

	local, err := e.store.GetEntity(ctx, op.EntityRef)
	exists := err == nil
	if err != nil && !errors.Is(err, storage.ErrEntityNotFound) {
		return fmt.Errorf("failed to get entity %s: %w", op.EntityRef, err)
	}

	var localClock crdt.VectorClock
	if exists {
		localClock = local.Clock
	}

	decision := crdt.Decide(localClock, op.Clock, exists)
	e.logger.Debug("Remote operation", "op", op, "decision", decision)

	switch decision {
	case crdt.ApplyIncoming:
		state := &models.EntityState{
			UpdatedAt: e.now(),
			Clock:     op.Clock.Merge(localClock),
			Ref:       op.EntityRef,
			Deleted:   op.Kind == models.OpDelete,
		}
		if !state.Deleted {
			state.Data = op.Payload
		}
		if err := e.store.SaveEntity(ctx, state); err != nil {
			return fmt.Errorf("failed to apply %s: %w", op.EntityRef, err)
		}
		res.Applied++

	case crdt.KeepLocal:
		if err := e.requeueLocal(ctx, local, op.Clock); err != nil {
			return err
		}
		res.Requeued++
	}

	return e.store.RecordApplied(ctx, op)
}

// requeueLocal объединяет часы локальной сущности с удаленными
// и ставит локальное состояние в очередь новой операцией
func (e *Engine) requeueLocal(ctx context.Context, local *models.EntityState, remote crdt.VectorClock) error {
	merged := local.Clock.Merge(remote).Increment(e.cfg.ClientID)
	local.Clock = merged
	local.UpdatedAt = e.now()
	if err := e.store.SaveEntity(ctx, local); err != nil {
		return fmt.Errorf("failed to save entity %s: %w", local.Ref, err)
	}

	pending, err := e.store.PendingForEntity(ctx, local.Ref)
	if err != nil {
		return fmt.Errorf("failed to list pending operations for %s: %w", local.Ref, err)
	}
	for _, p := range pending {
		if err := e.store.Supersede(ctx, p.ID); err != nil {
			return fmt.Errorf("failed to supersede %s: %w", p.ID, err)
		}
	}

	kind := models.OpUpdate
	payload := []byte(local.Data)
	if local.Deleted {
		kind = models.OpDelete
		payload = nil
	}

	op := &models.Operation{
		CreatedAt: e.now(),
		Clock:     merged.Clone(),
		EntityRef: local.Ref,
		ID:        uuid.New().String(),
		ClientID:  e.cfg.ClientID,
		Kind:      kind,
		Payload:   payload,
	}
	if err := e.store.Append(ctx, op); err != nil {
		return fmt.Errorf("failed to requeue %s: %w", local.Ref, err)
	}

	e.logger.Info("Concurrent remote edit, local version requeued", "entity", local.Ref, "clock", merged)
	return nil
}

// applyFullState заменяет все локальное состояние содержимым full-state операции.
// Ожидающие локальные операции и история конфликтов отбрасываются.
func (e *Engine) applyFullState(ctx context.Context, op *models.Operation) error {
	var payload models.FullStatePayload
	if err := json.Unmarshal(op.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode full-state operation %s: %w", op.ID, err)
	}

	if err := e.store.ReplaceEntities(ctx, payload.Entities); err != nil {
		return fmt.Errorf("failed to replace entities: %w", err)
	}
	if err := e.store.ClearPending(ctx); err != nil {
		return fmt.Errorf("failed to clear pending operations: %w", err)
	}
	if err := e.clearConflicts(ctx); err != nil {
		return err
	}

	e.logger.Info("Full state replaced from remote",
		"op_id", op.ID, "client_id", op.ClientID, "reason", payload.Reason, "entities", len(payload.Entities))
	return nil
}

func (e *Engine) clearConflicts(ctx context.Context) error {
	conflicts, err := e.store.ListConflicts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conflicts: %w", err)
	}
	for _, c := range conflicts {
		if err := e.store.DeleteConflict(ctx, c.EntityRef); err != nil {
			return fmt.Errorf("failed to clear conflict %s: %w", c.EntityRef, err)
		}
	}
	return nil
}
