package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/internal/server/storage"
	"github.com/iudanet/tasksync/internal/validation"
	"github.com/iudanet/tasksync/pkg/api"
)

// contextKey тип для ключей контекста
type contextKey string

// UserIDKey ключ для хранения user_id в контексте
const UserIDKey contextKey = "user_id"

// Ограничения страницы загрузки
const (
	DefaultDownloadLimit = 500
	MaxDownloadLimit     = 1000
)

// GetUserID извлекает user_id из контекста запроса
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// WithUserID возвращает контекст с user_id
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// OpLogStorage определяет интерфейс для работы с журналом операций
type OpLogStorage interface {
	AppendOp(ctx context.Context, userID string, op api.Op) (*storage.AppendResult, error)
	OpsSince(ctx context.Context, userID string, sinceSeq int64, excludeClient string, limit int) (*storage.OpsPage, error)
	LatestSeq(ctx context.Context, userID string) (int64, error)
}

// SyncHandler handles operation log upload and download
type SyncHandler struct {
	logger  *slog.Logger
	storage OpLogStorage
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(logger *slog.Logger, storage OpLogStorage) *SyncHandler {
	return &SyncHandler{
		logger:  logger,
		storage: storage,
	}
}

// HandleSync обрабатывает GET и POST /sync/ops
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	// Получаем user_id из контекста (установлен AuthMiddleware)
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.logger.Error("User ID not found in context")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleDownload(w, r, userID)
	case http.MethodPost:
		h.handleUpload(w, r, userID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleUpload обрабатывает POST /sync/ops.
// Каждая операция получает собственный результат; отказ одной не прерывает остальные.
func (h *SyncHandler) handleUpload(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()

	var req api.UploadOpsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Failed to decode upload request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp := api.UploadOpsResponse{Results: make([]api.OpResult, 0, len(req.Ops))}
	accepted, conflicts := 0, 0

	for _, op := range req.Ops {
		if err := validateOp(op); err != nil {
			h.logger.Warn("Operation rejected", "op_id", op.ID, "error", err)
			resp.Results = append(resp.Results, api.OpResult{
				OpID:      op.ID,
				Error:     err.Error(),
				ErrorCode: api.ErrorCodeValidation,
			})
			continue
		}

		res, err := h.storage.AppendOp(ctx, userID, op)
		switch {
		case errors.Is(err, storage.ErrInvalidOperation):
			resp.Results = append(resp.Results, api.OpResult{
				OpID:      op.ID,
				Error:     err.Error(),
				ErrorCode: api.ErrorCodeValidation,
			})
		case err != nil:
			h.logger.Error("Failed to store operation", "op_id", op.ID, "user_id", userID, "error", err)
			resp.Results = append(resp.Results, api.OpResult{
				OpID:      op.ID,
				Error:     "storage error",
				ErrorCode: api.ErrorCodeStorage,
			})
		case res.Accepted:
			accepted++
			resp.Results = append(resp.Results, api.OpResult{OpID: op.ID, Accepted: true})
		default:
			conflicts++
			h.logger.Debug("Concurrent modification", "op_id", op.ID, "entity", op.EntityRef, "existing", res.ExistingClock)
			resp.Results = append(resp.Results, api.OpResult{
				OpID:          op.ID,
				Error:         "Concurrent modification detected",
				ErrorCode:     api.ErrorCodeConflictConcurrent,
				ExistingClock: res.ExistingClock,
			})
		}
	}

	latest, err := h.storage.LatestSeq(ctx, userID)
	if err != nil {
		h.logger.Error("Failed to get latest sequence", "user_id", userID, "error", err)
	}
	resp.LatestSeq = latest

	writeJSON(w, h.logger, http.StatusOK, resp)

	h.logger.Info("Upload completed",
		"user_id", userID,
		"ops", len(req.Ops),
		"accepted", accepted,
		"conflicts", conflicts,
		"latest_seq", latest)
}

// handleDownload обрабатывает GET /sync/ops?sinceSeq=N&excludeClient=ID&limit=L
func (h *SyncHandler) handleDownload(w http.ResponseWriter, r *http.Request, userID string) {
	query := r.URL.Query()

	since, err := parseInt(query.Get("sinceSeq"), 0)
	if err != nil || since < 0 {
		h.logger.Warn("Invalid sinceSeq parameter", "since", query.Get("sinceSeq"))
		writeError(w, http.StatusBadRequest, "invalid sinceSeq parameter")
		return
	}

	limit, err := parseInt(query.Get("limit"), DefaultDownloadLimit)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "invalid limit parameter")
		return
	}
	limit = min(limit, MaxDownloadLimit)

	page, err := h.storage.OpsSince(r.Context(), userID, since, query.Get("excludeClient"), int(limit))
	if err != nil {
		h.logger.Error("Failed to read operations", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, api.DownloadOpsResponse{
		Ops:       page.Ops,
		LatestSeq: page.LatestSeq,
		HasMore:   page.HasMore,
	})

	h.logger.Debug("Download completed", "user_id", userID, "since", since, "ops", len(page.Ops), "latest_seq", page.LatestSeq)
}

func validateOp(op api.Op) error {
	if op.ID == "" {
		return errors.New("operation id is required")
	}
	if op.ClientID == "" {
		return errors.New("client id is required")
	}

	// full-state операция несет весь набор сущностей: ее ограничивает только размер тела запроса
	if op.Kind == string(models.OpFullState) {
		if op.EntityRef.Type != string(models.FullStateRef.Type) {
			return errors.New("full-state operation must reference sync_import")
		}
		return nil
	}

	if len(op.Payload) > validation.MaxPayloadSize {
		return errors.New("payload too large")
	}

	switch models.OpKind(op.Kind) {
	case models.OpCreate, models.OpUpdate, models.OpDelete:
	default:
		return errors.New("unknown operation kind")
	}
	if err := validation.ValidateEntityType(op.EntityRef.Type); err != nil {
		return err
	}
	return validation.ValidateIdentifier(op.EntityRef.ID)
}

func parseInt(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: message})
}
