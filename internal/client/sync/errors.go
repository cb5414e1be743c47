package sync

import (
	"errors"
	"fmt"
)

// ErrPermanentRejection операции хотя бы одной сущности окончательно отклонены в этом цикле.
// Локальные данные сущности сохраняются.
var ErrPermanentRejection = errors.New("operations permanently rejected")

// ErrCycleCancelled цикл прерван до получения ответа сервера
var ErrCycleCancelled = errors.New("sync cycle cancelled")

// TransportError сетевая ошибка или ответ сервера без результатов по операциям.
// Все операции остаются в очереди до следующего цикла.
type TransportError struct {
	Err        error
	Op         string // upload или download
	StatusCode int    // 0, если ответа не было
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
