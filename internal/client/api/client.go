package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/iudanet/tasksync/pkg/api"
)

// StatusError сервер ответил кодом вне диапазона 2xx
type StatusError struct {
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Option настраивает Client
type Option func(*Client)

// WithToken задает bearer токен для всех запросов
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient подменяет HTTP клиент
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient создает новый API клиент
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadOps отправляет пачку операций. Тело запроса сжимается gzip.
// Ответ с кодом вне 2xx, но с результатами по операциям, ошибкой не считается.
func (c *Client) UploadOps(ctx context.Context, req api.UploadOpsRequest) (*api.UploadOpsResponse, error) {
	var resp api.UploadOpsResponse
	err := c.doRequest(ctx, http.MethodPost, "/sync/ops", req, &resp)

	var statusErr *StatusError
	if errors.As(err, &statusErr) && len(resp.Results) > 0 {
		return &resp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("upload ops request failed: %w", err)
	}
	return &resp, nil
}

// DownloadOps получает операции с серверным номером больше sinceSeq,
// исключая операции клиента excludeClient
func (c *Client) DownloadOps(ctx context.Context, sinceSeq int64, excludeClient string, limit int) (*api.DownloadOpsResponse, error) {
	q := url.Values{}
	q.Set("sinceSeq", strconv.FormatInt(sinceSeq, 10))
	if excludeClient != "" {
		q.Set("excludeClient", excludeClient)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp api.DownloadOpsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/sync/ops?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("download ops request failed: %w", err)
	}
	return &resp, nil
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) error {
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, nil); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// doRequest выполняет HTTP запрос. При ответе вне 2xx тело все равно
// декодируется в result (если это возможно) и возвращается *StatusError.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		compressed, err := gzipJSON(body)
		if err != nil {
			return err
		}
		bodyReader = compressed
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Content-Encoding", "gzip")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(respBody))}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			statusErr.Message = errResp.Error
			if errResp.Message != "" {
				statusErr.Message += ": " + errResp.Message
			}
		}
		if result != nil {
			_ = json.Unmarshal(respBody, result)
		}
		return statusErr
	}

	// Декодируем успешный ответ
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func gzipJSON(body any) (io.Reader, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(body); err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress request body: %w", err)
	}
	return &buf, nil
}
