package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iudanet/tasksync/internal/server/handlers"
)

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		handler       http.HandlerFunc
		name          string
		method        string
		expectedLevel string
		status        int
	}{
		{
			name:   "GET with 200 OK",
			method: http.MethodGet,
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("success"))
			},
			status:        http.StatusOK,
			expectedLevel: "level=INFO",
		},
		{
			name:   "POST with 400",
			method: http.MethodPost,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			},
			status:        http.StatusBadRequest,
			expectedLevel: "level=WARN",
		},
		{
			name:   "POST with 500",
			method: http.MethodPost,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			status:        http.StatusInternalServerError,
			expectedLevel: "level=ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			handler := LoggingMiddleware(logger)(tt.handler)
			req := httptest.NewRequest(tt.method, "/sync/ops", nil)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			out := buf.String()
			assert.Contains(t, out, "HTTP request")
			assert.Contains(t, out, tt.expectedLevel)
			assert.Contains(t, out, "method="+tt.method)
			assert.Contains(t, out, "path=/sync/ops")
		})
	}
}

func TestLoggingMiddleware_CapturesResponseMetrics(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("0123456789"))
	}))

	// user_id из контекста попадает в лог
	req := httptest.NewRequest(http.MethodPost, "/sync/ops", nil)
	req = req.WithContext(handlers.WithUserID(req.Context(), "alice"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, "status=201")
	assert.Contains(t, out, "bytes_written=10")
	assert.Contains(t, out, "duration_ms=")
	assert.Contains(t, out, "user_id=alice")
}

func TestLoggingMiddleware_SkipPaths(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := LoggingMiddleware(logger, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, buf.String())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sync/ops", nil))
	assert.Contains(t, buf.String(), "path=/sync/ops")
}

func TestResponseWriter_DefaultsToOK(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	n, err := rw.Write([]byte("hello"))

	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.Equal(t, int64(5), rw.written)

	rw.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, rw.statusCode)
}
