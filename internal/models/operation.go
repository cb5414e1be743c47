package models

import (
	"fmt"
	"time"

	"github.com/iudanet/tasksync/internal/crdt"
)

// EntityType тип синхронизируемой сущности
type EntityType string

// EntityType константы для типов сущностей
const (
	EntityTypeTask    EntityType = "task"
	EntityTypeTag     EntityType = "tag"
	EntityTypeProject EntityType = "project"
	EntityTypeConfig  EntityType = "config"

	// EntityTypeSyncImport зарезервированный тип для full-state операций
	// (импорт бэкапа, смена пароля шифрования, force upload)
	EntityTypeSyncImport EntityType = "sync_import"
)

// FullStateRef единственная сущность, к которой относятся full-state операции.
var FullStateRef = EntityRef{Type: EntityTypeSyncImport, ID: "state"}

// EntityRef ссылка на сущность: (тип, идентификатор)
type EntityRef struct {
	Type EntityType `json:"type"`
	ID   string     `json:"id"`
}

// String возвращает ссылку в формате "type/id"
func (r EntityRef) String() string {
	return string(r.Type) + "/" + r.ID
}

// Key возвращает ключ для хранилища
func (r EntityRef) Key() []byte {
	return []byte(r.String())
}

// IsFullState сообщает, относится ли ссылка к full-state операциям
func (r EntityRef) IsFullState() bool {
	return r.Type == EntityTypeSyncImport
}

// OpKind вид операции
type OpKind string

// OpKind константы
const (
	OpCreate    OpKind = "create"
	OpUpdate    OpKind = "update"
	OpDelete    OpKind = "delete"
	OpFullState OpKind = "full_state"
)

// Operation представляет одну операцию в журнале устройства.
// Операция неизменяема после создания. Payload хранится локально в открытом виде
// и шифруется только при отправке на сервер.
type Operation struct {
	CreatedAt time.Time        `json:"created_at"`
	Clock     crdt.VectorClock `json:"clock"`
	EntityRef EntityRef        `json:"entity_ref"`
	ID        string           `json:"id"`
	ClientID  string           `json:"client_id"`
	Kind      OpKind           `json:"kind"`
	Payload   []byte           `json:"payload"`
	Seq       uint64           `json:"seq"` // Seq порядковый номер создания на устройстве
}

// Clone создает глубокую копию операции
func (o *Operation) Clone() *Operation {
	payload := make([]byte, len(o.Payload))
	copy(payload, o.Payload)

	return &Operation{
		CreatedAt: o.CreatedAt,
		Clock:     o.Clock.Clone(),
		EntityRef: o.EntityRef,
		ID:        o.ID,
		ClientID:  o.ClientID,
		Kind:      o.Kind,
		Payload:   payload,
		Seq:       o.Seq,
	}
}

// String короткое описание для логов и ошибок
func (o *Operation) String() string {
	return fmt.Sprintf("%s %s %s %s", o.ID, o.Kind, o.EntityRef, o.Clock)
}
