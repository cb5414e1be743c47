package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tasksync/internal/client/resolver"
	"github.com/iudanet/tasksync/internal/client/scheduler"
	"github.com/iudanet/tasksync/internal/client/storage"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(newViper())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.Server)
	assert.Equal(t, "tasksync.db", cfg.DBPath)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.Equal(t, scheduler.DefaultInterval, cfg.SyncInterval)
	assert.Equal(t, resolver.DefaultMaxAttempts, cfg.MaxResolutionAttempts)
	assert.False(t, cfg.OtelEnabled)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("TASKSYNC_SERVER", "https://sync.example.com/")
	t.Setenv("TASKSYNC_SYNC_INTERVAL", "5s")
	t.Setenv("TASKSYNC_SYNC_MAX_CONCURRENT_RESOLUTION_ATTEMPTS", "5")
	t.Setenv("TASKSYNC_LOG_LEVEL", "debug")
	t.Setenv("TASKSYNC_OTEL_ENABLED", "true")

	cfg, err := loadConfig(newViper())
	require.NoError(t, err)

	assert.Equal(t, "https://sync.example.com", cfg.Server)
	assert.Equal(t, 5*time.Second, cfg.SyncInterval)
	assert.Equal(t, 5, cfg.MaxResolutionAttempts)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.OtelEnabled)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server: http://files.example.com
db: /tmp/from-file.db
sync:
  batch_size: 50
`), 0o600))

	v := newViper()
	require.NoError(t, readConfigFile(v, path))
	cfg, err := loadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "http://files.example.com", cfg.Server)
	assert.Equal(t, "/tmp/from-file.db", cfg.DBPath)
	assert.Equal(t, 50, cfg.BatchSize)
}

func TestReadConfigFile_MissingExplicitFile(t *testing.T) {
	err := readConfigFile(newViper(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"log level", keyLogLevel, "loud"},
		{"attempts", keyMaxAttempts, 0},
		{"interval", keySyncInterval, "-1s"},
		{"db", keyDB, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			v.Set(tt.key, tt.val)
			_, err := loadConfig(v)
			assert.Error(t, err)
		})
	}
}

type memClientIDStore struct {
	id string
}

func (s *memClientIDStore) GetClientID(ctx context.Context) (string, error) {
	if s.id == "" {
		return "", storage.ErrMetadataNotFound
	}
	return s.id, nil
}

func (s *memClientIDStore) SaveClientID(ctx context.Context, clientID string) error {
	s.id = clientID
	return nil
}

func TestResolveClientID(t *testing.T) {
	ctx := context.Background()
	store := &memClientIDStore{}

	// первый запуск генерирует и сохраняет идентификатор
	first, err := resolveClientID(ctx, store, "")
	require.NoError(t, err)
	assert.NotEmpty(t, first)
	assert.Equal(t, first, store.id)

	again, err := resolveClientID(ctx, store, "")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	override, err := resolveClientID(ctx, store, "laptop-1")
	require.NoError(t, err)
	assert.Equal(t, "laptop-1", override)
	assert.Equal(t, "laptop-1", store.id)

	_, err = resolveClientID(ctx, store, "bad id!")
	assert.Error(t, err)
}
