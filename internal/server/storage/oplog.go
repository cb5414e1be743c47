package storage

import (
	"context"

	"github.com/iudanet/tasksync/internal/crdt"
	"github.com/iudanet/tasksync/pkg/api"
)

// AppendResult outcome of appending one operation to the user's log
type AppendResult struct {
	// ExistingClock current entity clock when the operation was refused
	ExistingClock crdt.VectorClock
	Seq           int64
	Accepted      bool
	// Duplicate operation with this id was already stored, nothing written
	Duplicate bool
}

// OpsPage page of the user's log returned for download
type OpsPage struct {
	Ops       []api.RemoteOp
	LatestSeq int64
	HasMore   bool
}

// OpLogStorage defines interface for the remote operation log
type OpLogStorage interface {
	// AppendOp stores the operation if its clock dominates the entity clock
	// (or the entity has no clock yet). Full-state operations are always stored
	// and reset all entity clocks of the user.
	// Re-submitted operation ids are reported as accepted duplicates.
	AppendOp(ctx context.Context, userID string, op api.Op) (*AppendResult, error)

	// OpsSince returns up to limit log records after sinceSeq, skipping records
	// older than the latest full-state operation. Records of excludeClient are
	// counted in LatestSeq but not returned, except records after another client's
	// full-state operation that sinceSeq has not reached yet.
	OpsSince(ctx context.Context, userID string, sinceSeq int64, excludeClient string, limit int) (*OpsPage, error)

	// LatestSeq returns the sequence of the newest record of the user (0 if none)
	LatestSeq(ctx context.Context, userID string) (int64, error)

	// Ping checks database availability
	Ping(ctx context.Context) error
}
