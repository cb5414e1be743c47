// Package validation проверяет пользовательский ввод до записи в журнал операций.
package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
)

// IdentifierPattern допустимый формат идентификатора сущности и subject токена:
// латинские буквы, цифры, '_', '-', '.', длина 1-64
var IdentifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_.\-]{1,64}$`)

// MinPasswordLen минимальная длина пароля шифрования
const MinPasswordLen = 12

// MaxPayloadSize максимальный размер данных одной сущности
const MaxPayloadSize = 256 * 1024

// EntityTypes типы сущностей, доступные для изменения пользователем
var EntityTypes = []string{"task", "tag", "project", "config"}

// ValidateEntityType проверяет, что тип известен
func ValidateEntityType(entityType string) error {
	if !slices.Contains(EntityTypes, entityType) {
		return fmt.Errorf("unknown entity type %q, expected one of %v", entityType, EntityTypes)
	}
	return nil
}

// ValidateIdentifier проверяет идентификатор сущности
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if !IdentifierPattern.MatchString(id) {
		return fmt.Errorf("identifier %q can only contain letters, numbers, '_', '-', '.' (max 64)", id)
	}
	return nil
}

// ValidateEntityData проверяет, что данные сущности - JSON объект допустимого размера
func ValidateEntityData(data []byte) error {
	if len(data) > MaxPayloadSize {
		return fmt.Errorf("entity data exceeds %d bytes", MaxPayloadSize)
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("entity data must be a JSON object: %w", err)
	}
	return nil
}

// ValidatePassword проверяет минимальные требования к паролю шифрования.
// Оценка сложности пароля не выполняется.
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	}

	return nil
}
