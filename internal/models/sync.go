package models

import "time"

// SyncStatus статус синхронизации устройства
type SyncStatus string

// SyncStatus константы
const (
	SyncStatusIdle    SyncStatus = "IDLE"
	SyncStatusSyncing SyncStatus = "SYNCING"
	SyncStatusSuccess SyncStatus = "SUCCESS"
	SyncStatusError   SyncStatus = "ERROR"
)

// EncryptionConfig настройки шифрования устройства.
// Сам ключ никогда не сохраняется: KeyMaterialRef - отпечаток ключа,
// Salt - соль для деривации ключа из пароля.
type EncryptionConfig struct {
	LastVerifiedAt time.Time `json:"last_verified_at"`
	KeyMaterialRef string    `json:"key_material_ref,omitempty"`
	Salt           []byte    `json:"salt,omitempty"`
	IsEnabled      bool      `json:"is_enabled"`
}

// BackupVersion текущая версия формата файла бэкапа
const BackupVersion = 1

// Backup снимок полного состояния для экспорта/импорта.
type Backup struct {
	ExportedAt          time.Time      `json:"exported_at"`
	Entities            []*EntityState `json:"entities"`
	Version             int            `json:"version"`
	IsEncryptionEnabled bool           `json:"isEncryptionEnabled"`
}
