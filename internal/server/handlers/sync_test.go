package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tasksync/internal/server/storage"
	"github.com/iudanet/tasksync/internal/server/storage/sqlite"
	"github.com/iudanet/tasksync/internal/validation"
	"github.com/iudanet/tasksync/pkg/api"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	}
	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}

func setupSyncHandler(t *testing.T) *SyncHandler {
	t.Helper()
	s, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewSyncHandler(setupTestLogger(), s)
}

func testOp(clientID, entityID string, clock map[string]int64) api.Op {
	return api.Op{
		CreatedAt: time.Now(),
		Clock:     clock,
		EntityRef: api.EntityRef{Type: "task", ID: entityID},
		ID:        uuid.NewString(),
		Kind:      "update",
		ClientID:  clientID,
		Payload:   []byte(`{"title":"t"}`),
	}
}

func upload(t *testing.T, h *SyncHandler, userID string, ops ...api.Op) api.UploadOpsResponse {
	t.Helper()
	body, err := json.Marshal(api.UploadOpsRequest{Ops: ops})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/sync/ops", bytes.NewReader(body))
	req = req.WithContext(WithUserID(req.Context(), userID))
	w := httptest.NewRecorder()
	h.HandleSync(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.UploadOpsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func download(t *testing.T, h *SyncHandler, userID, query string) (*httptest.ResponseRecorder, api.DownloadOpsResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/sync/ops?"+query, nil)
	req = req.WithContext(WithUserID(req.Context(), userID))
	w := httptest.NewRecorder()
	h.HandleSync(w, req)

	var resp api.DownloadOpsResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	}
	return w, resp
}

func TestSyncHandler_MethodNotAllowed(t *testing.T) {
	h := setupSyncHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/sync/ops", nil)
	req = req.WithContext(WithUserID(req.Context(), "user123"))
	w := httptest.NewRecorder()
	h.HandleSync(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestSyncHandler_Unauthorized(t *testing.T) {
	h := setupSyncHandler(t)

	w := httptest.NewRecorder()
	h.HandleSync(w, httptest.NewRequest(http.MethodGet, "/sync/ops", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSyncHandler_Upload_Results(t *testing.T) {
	h := setupSyncHandler(t)

	first := testOp("A", "t1", map[string]int64{"A": 1})
	resp := upload(t, h, "user1", first)
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].Accepted)
	assert.Equal(t, int64(1), resp.LatestSeq)

	stale := testOp("B", "t1", map[string]int64{"B": 1})
	newer := testOp("A", "t2", map[string]int64{"A": 1})
	invalid := testOp("A", "bad/id", map[string]int64{"A": 1})
	big := testOp("A", "t3", map[string]int64{"A": 1})
	big.Payload = bytes.Repeat([]byte("x"), validation.MaxPayloadSize+1)

	resp = upload(t, h, "user1", stale, newer, invalid, big, first)
	require.Len(t, resp.Results, 5)

	assert.False(t, resp.Results[0].Accepted)
	assert.Equal(t, api.ErrorCodeConflictConcurrent, resp.Results[0].ErrorCode)
	assert.Equal(t, map[string]int64{"A": 1}, resp.Results[0].ExistingClock)

	assert.True(t, resp.Results[1].Accepted)

	assert.Equal(t, api.ErrorCodeValidation, resp.Results[2].ErrorCode)
	assert.Equal(t, api.ErrorCodeValidation, resp.Results[3].ErrorCode)

	// повторная отправка принимается без новой записи
	assert.True(t, resp.Results[4].Accepted)
	assert.Equal(t, int64(2), resp.LatestSeq)
}

func TestSyncHandler_Upload_FullStateAlwaysAccepted(t *testing.T) {
	h := setupSyncHandler(t)

	upload(t, h, "user1", testOp("A", "t1", map[string]int64{"A": 10}))

	full := testOp("B", "state", map[string]int64{"B": 1})
	full.Kind = "full_state"
	full.EntityRef.Type = "sync_import"
	resp := upload(t, h, "user1", full)
	assert.True(t, resp.Results[0].Accepted)

	badFull := testOp("B", "t1", map[string]int64{"B": 1})
	badFull.Kind = "full_state"
	resp = upload(t, h, "user1", badFull)
	assert.Equal(t, api.ErrorCodeValidation, resp.Results[0].ErrorCode)
}

func TestSyncHandler_Upload_LargeFullState(t *testing.T) {
	h := setupSyncHandler(t)

	big := bytes.Repeat([]byte("x"), validation.MaxPayloadSize+1)

	full := testOp("A", "state", map[string]int64{"A": 1})
	full.Kind = "full_state"
	full.EntityRef.Type = "sync_import"
	full.Payload = big

	entity := testOp("A", "t1", map[string]int64{"A": 1})
	entity.Payload = big

	resp := upload(t, h, "user1", full, entity)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].Accepted)
	assert.Equal(t, api.ErrorCodeValidation, resp.Results[1].ErrorCode)
}

func TestSyncHandler_Upload_InvalidBody(t *testing.T) {
	h := setupSyncHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/sync/ops", strings.NewReader("{not json"))
	req = req.WithContext(WithUserID(req.Context(), "user1"))
	w := httptest.NewRecorder()
	h.HandleSync(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncHandler_Download(t *testing.T) {
	h := setupSyncHandler(t)

	opA := testOp("A", "t1", map[string]int64{"A": 1})
	opB := testOp("B", "t2", map[string]int64{"B": 1})
	upload(t, h, "user1", opA, opB)
	upload(t, h, "user2", testOp("A", "t9", map[string]int64{"A": 1}))

	w, resp := download(t, h, "user1", "sinceSeq=0&excludeClient=A")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp.Ops, 1)
	assert.Equal(t, opB.ID, resp.Ops[0].ID)
	assert.Equal(t, int64(2), resp.LatestSeq)
	assert.False(t, resp.HasMore)

	_, resp = download(t, h, "user1", "sinceSeq=0&limit=1")
	require.Len(t, resp.Ops, 1)
	assert.Equal(t, opA.ID, resp.Ops[0].ID)
	assert.True(t, resp.HasMore)
	assert.Equal(t, int64(1), resp.LatestSeq)
}

func TestSyncHandler_Download_BadParams(t *testing.T) {
	h := setupSyncHandler(t)

	for _, query := range []string{"sinceSeq=abc", "sinceSeq=-1", "limit=0", "limit=x"} {
		t.Run(query, func(t *testing.T) {
			w, _ := download(t, h, "user1", query)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

// failingStorage хранилище, которое всегда возвращает ошибку
type failingStorage struct{}

func (failingStorage) AppendOp(ctx context.Context, userID string, op api.Op) (*storage.AppendResult, error) {
	return nil, errors.New("disk I/O error")
}

func (failingStorage) OpsSince(ctx context.Context, userID string, sinceSeq int64, excludeClient string, limit int) (*storage.OpsPage, error) {
	return nil, errors.New("disk I/O error")
}

func (failingStorage) LatestSeq(ctx context.Context, userID string) (int64, error) {
	return 0, errors.New("disk I/O error")
}

func TestSyncHandler_StorageErrors(t *testing.T) {
	h := NewSyncHandler(setupTestLogger(), failingStorage{})

	resp := upload(t, h, "user1", testOp("A", "t1", map[string]int64{"A": 1}))
	require.Len(t, resp.Results, 1)
	assert.False(t, resp.Results[0].Accepted)
	assert.Equal(t, api.ErrorCodeStorage, resp.Results[0].ErrorCode)

	w, _ := download(t, h, "user1", "sinceSeq=0")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
