package models

import (
	"encoding/json"
	"time"

	"github.com/iudanet/tasksync/internal/crdt"
)

// EntityState материализованное локальное состояние сущности.
// Удаленные сущности хранятся как tombstone (Deleted = true), чтобы не терять часы.
type EntityState struct {
	UpdatedAt time.Time        `json:"updated_at"`
	Clock     crdt.VectorClock `json:"clock"`
	Ref       EntityRef        `json:"ref"`
	Data      json.RawMessage  `json:"data,omitempty"`
	Deleted   bool             `json:"deleted"`
}

// Clone создает глубокую копию состояния
func (e *EntityState) Clone() *EntityState {
	var data json.RawMessage
	if e.Data != nil {
		data = make(json.RawMessage, len(e.Data))
		copy(data, e.Data)
	}

	return &EntityState{
		UpdatedAt: e.UpdatedAt,
		Clock:     e.Clock.Clone(),
		Ref:       e.Ref,
		Data:      data,
		Deleted:   e.Deleted,
	}
}

// EntityConflictState счетчик попыток разрешения CONFLICT_CONCURRENT для одной сущности.
// Создается при первом конфликте, удаляется при принятии операции сервером
// или при окончательном отклонении. RetryCount только растет.
type EntityConflictState struct {
	UpdatedAt            time.Time        `json:"updated_at"`
	LastKnownServerClock crdt.VectorClock `json:"last_known_server_clock"`
	EntityRef            EntityRef        `json:"entity_ref"`
	LastErrorCode        string           `json:"last_error_code"`
	RetryCount           int              `json:"retry_count"`
}

// FullStatePayload содержимое full-state операции: полный набор сущностей.
type FullStatePayload struct {
	Reason   string         `json:"reason"` // import, password_change, force_upload, ...
	Entities []*EntityState `json:"entities"`
}
