package sync

import (
	"context"
	"errors"

	httpClient "github.com/iudanet/tasksync/internal/client/api"
	"github.com/iudanet/tasksync/pkg/api"
)

//go:generate moq -out transport_mock.go . Transport

// Transport доступ к удаленному журналу операций
type Transport interface {
	UploadOps(ctx context.Context, req api.UploadOpsRequest) (*api.UploadOpsResponse, error)
	DownloadOps(ctx context.Context, sinceSeq int64, excludeClient string, limit int) (*api.DownloadOpsResponse, error)
}

var _ Transport = (*httpClient.Client)(nil)

func transportError(op string, err error) *TransportError {
	te := &TransportError{Op: op, Err: err}
	var statusErr *httpClient.StatusError
	if errors.As(err, &statusErr) {
		te.StatusCode = statusErr.StatusCode
	}
	return te
}
