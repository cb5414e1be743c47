package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/tasksync/internal/crdt"
	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/internal/server/storage"
	"github.com/iudanet/tasksync/pkg/api"
)

const fullStateKind = string(models.OpFullState)

// AppendOp stores the operation if its clock dominates the current entity clock
func (s *Storage) AppendOp(ctx context.Context, userID string, op api.Op) (result *storage.AppendResult, err error) {
	fullState := op.Kind == fullStateKind
	if !fullState && len(op.Clock) == 0 {
		return nil, fmt.Errorf("%w: empty clock", storage.ErrInvalidOperation)
	}

	clockJSON, err := json.Marshal(op.Clock)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidOperation, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Повторная отправка уже сохраненной операции
	var seq int64
	err = tx.QueryRowContext(ctx, `SELECT seq FROM ops WHERE user_id = ? AND id = ?`, userID, op.ID).Scan(&seq)
	switch {
	case err == nil:
		return &storage.AppendResult{Seq: seq, Accepted: true, Duplicate: true}, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to check duplicate: %w", err)
	}

	if !fullState {
		existing, err := entityClock(ctx, tx, userID, op.EntityRef)
		if err != nil {
			return nil, err
		}
		if existing != nil && !crdt.VectorClock(op.Clock).Dominates(existing) {
			return &storage.AppendResult{ExistingClock: existing}, tx.Commit()
		}
	}

	now := time.Now().UnixMilli()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO ops (
			id, user_id, entity_type, entity_id, kind, client_id,
			clock, payload, encrypted, created_at, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, userID, op.EntityRef.Type, op.EntityRef.ID, op.Kind, op.ClientID,
		string(clockJSON), op.Payload, boolToInt(op.Encrypted), op.CreatedAt.UnixMilli(), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert operation: %w", err)
	}
	seq, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get sequence: %w", err)
	}

	if fullState {
		// Полное состояние заменяет все сущности: старые часы больше не действуют
		_, err = tx.ExecContext(ctx, `DELETE FROM entity_clocks WHERE user_id = ?`, userID)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO entity_clocks (user_id, entity_type, entity_id, clock, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_id, entity_type, entity_id)
			DO UPDATE SET clock = excluded.clock, updated_at = excluded.updated_at`,
			userID, op.EntityRef.Type, op.EntityRef.ID, string(clockJSON), now,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update entity clocks: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit operation: %w", err)
	}

	return &storage.AppendResult{Seq: seq, Accepted: true}, nil
}

func entityClock(ctx context.Context, tx *sql.Tx, userID string, ref api.EntityRef) (crdt.VectorClock, error) {
	var raw string
	err := tx.QueryRowContext(ctx,
		`SELECT clock FROM entity_clocks WHERE user_id = ? AND entity_type = ? AND entity_id = ?`,
		userID, ref.Type, ref.ID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity clock: %w", err)
	}

	var clock crdt.VectorClock
	if err := json.Unmarshal([]byte(raw), &clock); err != nil {
		return nil, fmt.Errorf("failed to decode entity clock: %w", err)
	}
	return clock, nil
}

// OpsSince returns up to limit records after sinceSeq
func (s *Storage) OpsSince(ctx context.Context, userID string, sinceSeq int64, excludeClient string, limit int) (*storage.OpsPage, error) {
	start := sinceSeq

	// Записи до последней full-state операции не отдаются:
	// она уже содержит их результат
	var (
		fullSeq    int64
		fullClient string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT seq, client_id FROM ops WHERE user_id = ? AND kind = ? ORDER BY seq DESC LIMIT 1`,
		userID, fullStateKind,
	).Scan(&fullSeq, &fullClient)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to find full-state operation: %w", err)
	case fullSeq-1 > start:
		start = fullSeq - 1
	}

	// Клиент еще не видел чужую full-state операцию: его собственные записи после нее
	// отдаются, чтобы он применил их поверх замененного состояния
	replay := fullSeq > sinceSeq && fullClient != excludeClient

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, entity_type, entity_id, kind, client_id,
		       clock, payload, encrypted, created_at
		FROM ops
		WHERE user_id = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?`,
		userID, start, limit+1,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	page := &storage.OpsPage{LatestSeq: sinceSeq, Ops: []api.RemoteOp{}}
	scanned := 0
	for rows.Next() {
		if scanned == limit {
			page.HasMore = true
			break
		}
		scanned++

		op, err := scanOp(rows)
		if err != nil {
			return nil, err
		}
		page.LatestSeq = op.Seq
		if op.ClientID != excludeClient || (replay && op.Seq > fullSeq) {
			page.Ops = append(page.Ops, *op)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return page, nil
}

func scanOp(rows *sql.Rows) (*api.RemoteOp, error) {
	var (
		op        api.RemoteOp
		clockJSON string
		encrypted int
		createdAt int64
	)
	err := rows.Scan(
		&op.Seq,
		&op.ID,
		&op.EntityRef.Type,
		&op.EntityRef.ID,
		&op.Kind,
		&op.ClientID,
		&clockJSON,
		&op.Payload,
		&encrypted,
		&createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan operation: %w", err)
	}

	if err := json.Unmarshal([]byte(clockJSON), &op.Clock); err != nil {
		return nil, fmt.Errorf("failed to decode clock of %s: %w", op.ID, err)
	}
	op.Encrypted = intToBool(encrypted)
	op.CreatedAt = time.UnixMilli(createdAt).UTC()

	return &op, nil
}

// LatestSeq returns the newest sequence of the user's log
func (s *Storage) LatestSeq(ctx context.Context, userID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM ops WHERE user_id = ?`, userID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest sequence: %w", err)
	}
	return seq, nil
}

// Helper functions for bool/int conversion
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}
