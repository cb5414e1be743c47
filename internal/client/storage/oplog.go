package storage

import (
	"context"
	"iter"

	"github.com/iudanet/tasksync/internal/models"
)

// OpState состояние операции в журнале
type OpState string

// OpState константы
const (
	OpStatePending  OpState = "pending"
	OpStateAccepted OpState = "accepted"
	OpStateRejected OpState = "rejected"   // окончательно отклонена, на сервер не попадет
	OpStateReplaced OpState = "superseded" // заменена новой операцией (merge, full-state)
	OpStateApplied  OpState = "applied"    // удаленная операция, примененная локально
)

//go:generate moq -out oplog_mock.go . OpLogStorage

// OpLogStorage defines the per-device operation log.
// Pending operations are kept in creation order; acknowledged ones are archived.
type OpLogStorage interface {
	// Append adds operation to the pending set and assigns its creation sequence (op.Seq)
	Append(ctx context.Context, op *models.Operation) error

	// PendingSince returns a lazy sequence of pending operations with Seq > cursor,
	// in creation order. The sequence may be iterated again to restart from cursor.
	PendingSince(ctx context.Context, cursor uint64) iter.Seq2[*models.Operation, error]

	// PendingForEntity returns pending operations touching ref, in creation order
	PendingForEntity(ctx context.Context, ref models.EntityRef) ([]*models.Operation, error)

	// PendingCount returns the number of pending operations
	PendingCount(ctx context.Context) (int, error)

	// MarkAccepted moves operation from pending to the archive.
	// Marking an already accepted operation is a no-op.
	// Returns ErrOperationNotFound if the id was never appended.
	MarkAccepted(ctx context.Context, opID string) error

	// MarkPermanentlyRejected drops operation from pending without touching entity state.
	MarkPermanentlyRejected(ctx context.Context, opID string) error

	// Supersede drops operation from pending because a newer operation replaces it
	Supersede(ctx context.Context, opID string) error

	// ClearPending supersedes every pending operation
	ClearPending(ctx context.Context) error

	// RecordApplied archives a downloaded remote operation so it is not applied twice
	RecordApplied(ctx context.Context, op *models.Operation) error

	// State returns the log state of the operation id.
	// Returns ErrOperationNotFound for unknown ids.
	State(ctx context.Context, opID string) (OpState, error)

	// IsKnown reports whether the operation id is present in the log (pending or archived)
	IsKnown(ctx context.Context, opID string) (bool, error)
}
