package sync_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tasksync/internal/client/api"
	"github.com/iudanet/tasksync/internal/client/data"
	"github.com/iudanet/tasksync/internal/client/encryption"
	"github.com/iudanet/tasksync/internal/client/storage/boltdb"
	"github.com/iudanet/tasksync/internal/client/sync"
	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/internal/server"
	"github.com/iudanet/tasksync/internal/server/jwt"
	"github.com/iudanet/tasksync/internal/server/storage/sqlite"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startServer(t *testing.T, cfg server.Config) *api.Client {
	t.Helper()

	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tokens := jwt.NewService([]byte("sync-test-secret"), time.Hour)
	srv := server.New(discardLogger(), store, tokens, cfg)
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	token, err := tokens.GenerateToken("alice")
	require.NoError(t, err)
	return api.NewClient(ts.URL, api.WithToken(token))
}

func openEngine(t *testing.T, cfg sync.Config, transport sync.Transport) (*sync.Engine, data.Service) {
	t.Helper()
	ctx := context.Background()

	store, err := boltdb.New(ctx, filepath.Join(t.TempDir(), cfg.ClientID+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	gw := encryption.New(store, discardLogger())
	require.NoError(t, gw.Load(ctx))

	engine := sync.NewEngine(store, transport, gw, cfg, discardLogger())
	return engine, data.NewService(store, cfg.ClientID, engine)
}

func TestEngine_BatchesFitServerBodyLimit(t *testing.T) {
	ctx := context.Background()

	cfg := server.DefaultConfig()
	cfg.MaxBodyBytes = 8 << 10
	client := startServer(t, cfg)

	body := json.RawMessage(fmt.Sprintf(`{"title":%q}`, strings.Repeat("x", 300)))
	put := func(svc data.Service) {
		for i := range 20 {
			ref := models.EntityRef{Type: models.EntityTypeTask, ID: fmt.Sprintf("t%02d", i)}
			_, err := svc.Put(ctx, ref, body)
			require.NoError(t, err)
		}
	}

	// одним запросом 20 операций не помещаются в лимит тела
	whole, wholeData := openEngine(t, sync.Config{ClientID: "client-whole"}, client)
	put(wholeData)
	res, err := whole.RunSyncCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, res.Status)
	assert.Zero(t, res.Accepted)

	a, aData := openEngine(t, sync.Config{ClientID: "client-a", BatchSize: 5}, client)
	put(aData)
	res, err = a.RunSyncCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, models.SyncStatusSuccess, res.Status, "cycle error: %v", res.Err)
	assert.Equal(t, 20, res.Uploaded)
	assert.Equal(t, 20, res.Accepted)

	b, bData := openEngine(t, sync.Config{ClientID: "client-b", BatchSize: 5}, client)
	res, err = b.RunSyncCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, models.SyncStatusSuccess, res.Status, "cycle error: %v", res.Err)
	assert.Equal(t, 20, res.Applied)

	states, err := bData.List(ctx, models.EntityTypeTask)
	require.NoError(t, err)
	assert.Len(t, states, 20)
}
