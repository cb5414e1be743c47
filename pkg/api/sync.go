package api

import (
	"encoding/json"
	"time"
)

// EntityRef ссылка на сущность в формате протокола
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Op представляет одну операцию в запросе на загрузку
type Op struct {
	CreatedAt time.Time        `json:"createdAt"`
	Clock     map[string]int64 `json:"clock"`
	EntityRef EntityRef        `json:"entityRef"`
	ID        string           `json:"id"`
	Kind      string           `json:"kind"`
	ClientID  string           `json:"clientId"`
	Payload   []byte           `json:"payload"` // base64 в JSON; зашифрован, если Encrypted
	Encrypted bool             `json:"encrypted"`
}

// UploadOpsRequest тело POST /sync/ops
type UploadOpsRequest struct {
	Ops []Op `json:"ops"`
}

// OpResult результат обработки одной операции сервером
type OpResult struct {
	ExistingClock map[string]int64 `json:"existingClock,omitempty"`
	OpID          string           `json:"opId"`
	Error         string           `json:"error,omitempty"`
	ErrorCode     ErrorCode        `json:"errorCode,omitempty"`
	Accepted      bool             `json:"accepted"`
}

// UploadOpsResponse ответ на POST /sync/ops
type UploadOpsResponse struct {
	Results   []OpResult `json:"results"`
	LatestSeq int64      `json:"latestSeq"`
}

// RemoteOp операция из удаленного журнала с серверным порядковым номером
type RemoteOp struct {
	Op
	Seq int64 `json:"seq"`
}

// DownloadOpsResponse ответ на GET /sync/ops?sinceSeq=N
type DownloadOpsResponse struct {
	Ops       []RemoteOp `json:"ops"`
	LatestSeq int64      `json:"latestSeq"`
	HasMore   bool       `json:"hasMore"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}

// ErrorCode код отказа в принятии операции.
// Известные коды перечислены константами, любой другой код при декодировании
// превращается в ErrorCodeUnrecognized.
type ErrorCode string

// ErrorCode константы
const (
	ErrorCodeNone               ErrorCode = ""
	ErrorCodeConflictConcurrent ErrorCode = "CONFLICT_CONCURRENT"
	ErrorCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrorCodeDuplicate          ErrorCode = "DUPLICATE_OPERATION"
	ErrorCodeStorage            ErrorCode = "STORAGE_ERROR"
	ErrorCodeUnrecognized       ErrorCode = "UNRECOGNIZED"
)

// ParseErrorCode сопоставляет строку с известным кодом
func ParseErrorCode(s string) ErrorCode {
	switch code := ErrorCode(s); code {
	case ErrorCodeNone, ErrorCodeConflictConcurrent, ErrorCodeValidation,
		ErrorCodeDuplicate, ErrorCodeStorage, ErrorCodeUnrecognized:
		return code
	default:
		return ErrorCodeUnrecognized
	}
}

// UnmarshalJSON декодирует код, сводя неизвестные значения к ErrorCodeUnrecognized
func (c *ErrorCode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = ParseErrorCode(s)
	return nil
}
