package imex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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
	"github.com/iudanet/tasksync/internal/crdt"
	"github.com/iudanet/tasksync/internal/crypto"
	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/internal/server"
	"github.com/iudanet/tasksync/internal/server/jwt"
	"github.com/iudanet/tasksync/internal/server/storage/sqlite"
	"github.com/iudanet/tasksync/internal/validation"
)

const testPassword = "correct horse battery staple"

var fastKDF = crypto.KDFParams{Time: 1, Memory: 8 * 1024, Threads: 1}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type device struct {
	store  *boltdb.Storage
	gw     *encryption.Gateway
	engine *sync.Engine
	data   data.Service
	imex   *Coordinator
}

func newDevice(t *testing.T, clientID string, transport sync.Transport) *device {
	t.Helper()
	ctx := context.Background()

	store, err := boltdb.New(ctx, filepath.Join(t.TempDir(), clientID+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := testLogger()
	gw := encryption.New(store, logger, encryption.WithKDFParams(fastKDF))
	require.NoError(t, gw.Load(ctx))

	engine := sync.NewEngine(store, transport, gw, sync.Config{ClientID: clientID}, logger)
	return &device{
		store:  store,
		gw:     gw,
		engine: engine,
		data:   data.NewService(store, clientID, engine),
		imex:   NewCoordinator(store, gw, engine, logger),
	}
}

// offlineDevice устройство, которому синхронизация в тесте не нужна
func offlineDevice(t *testing.T, clientID string) *device {
	return newDevice(t, clientID, &sync.TransportMock{})
}

func (d *device) put(t *testing.T, typ models.EntityType, id, body string) {
	t.Helper()
	_, err := d.data.Put(context.Background(), models.EntityRef{Type: typ, ID: id}, json.RawMessage(body))
	require.NoError(t, err)
}

func (d *device) refs(t *testing.T) []string {
	t.Helper()
	states, err := d.data.List(context.Background(), "")
	require.NoError(t, err)
	out := make([]string, 0, len(states))
	for _, s := range states {
		out = append(out, s.Ref.String())
	}
	return out
}

func (d *device) sync(t *testing.T) *sync.CycleResult {
	t.Helper()
	res, err := d.engine.RunSyncCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.SyncStatusSuccess, res.Status, "cycle error: %v", res.Err)
	return res
}

func testBackup(encrypted bool) *models.Backup {
	clock := crdt.VectorClock{"backup-device": 1}
	return &models.Backup{
		ExportedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Entities: []*models.EntityState{
			{Ref: models.EntityRef{Type: models.EntityTypeTask, ID: "b1"}, Clock: clock, Data: json.RawMessage(`{"title":"from backup"}`)},
			{Ref: models.EntityRef{Type: models.EntityTypeTag, ID: "b2"}, Clock: clock, Data: json.RawMessage(`{"name":"home"}`)},
		},
		Version:             models.BackupVersion,
		IsEncryptionEnabled: encrypted,
	}
}

func TestEvaluateImport(t *testing.T) {
	tests := []struct {
		current  bool
		backup   bool
		expected Decision
	}{
		{current: true, backup: true, expected: NoChange},
		{current: false, backup: false, expected: NoChange},
		{current: true, backup: false, expected: RequiresConfirmation},
		{current: false, backup: true, expected: RequiresConfirmation},
	}

	for _, tt := range tests {
		got := EvaluateImport(tt.current, tt.backup)
		assert.Equal(t, tt.expected, got, "current=%v backup=%v", tt.current, tt.backup)
	}

	assert.Equal(t, "NO_CHANGE", NoChange.String())
	assert.Equal(t, "REQUIRES_CONFIRMATION", RequiresConfirmation.String())
}

func TestCoordinator_ImportNoChange(t *testing.T) {
	ctx := context.Background()
	d := offlineDevice(t, "client-a")
	d.put(t, models.EntityTypeTask, "old", `{"title":"old"}`)

	confirmer := &ConfirmerMock{
		ConfirmImportFunc: func(ctx context.Context, currentEncrypted, backupEncrypted bool) (bool, error) {
			return false, nil
		},
	}

	res, err := d.imex.Import(ctx, testBackup(false), confirmer)
	require.NoError(t, err)

	assert.Equal(t, NoChange, res.Decision)
	assert.Equal(t, 2, res.Entities)
	assert.False(t, res.NeedsPassword)
	assert.NotEmpty(t, res.OpID)
	assert.Empty(t, confirmer.ConfirmImportCalls())

	assert.Equal(t, []string{"tag/b2", "task/b1"}, d.refs(t))

	// в очереди только full-state операция импорта
	pending, err := d.store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
	ops, err := d.store.PendingForEntity(ctx, models.FullStateRef)
	require.NoError(t, err)
	require.Len(t, ops, 1)

	var payload models.FullStatePayload
	require.NoError(t, json.Unmarshal(ops[0].Payload, &payload))
	assert.Equal(t, sync.ReasonImport, payload.Reason)
	assert.Len(t, payload.Entities, 2)
}

func TestCoordinator_ImportRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	errDialog := errors.New("dialog closed")

	tests := []struct {
		confirmer   Confirmer
		expectedErr error
		name        string
		imported    bool
	}{
		{
			name: "confirmed",
			confirmer: ConfirmFunc(func(ctx context.Context, current, backup bool) (bool, error) {
				return true, nil
			}),
			imported: true,
		},
		{
			name: "declined",
			confirmer: ConfirmFunc(func(ctx context.Context, current, backup bool) (bool, error) {
				return false, nil
			}),
			expectedErr: ErrImportCancelled,
		},
		{
			name:        "no confirmer",
			confirmer:   nil,
			expectedErr: ErrImportCancelled,
		},
		{
			name: "confirmer error",
			confirmer: ConfirmFunc(func(ctx context.Context, current, backup bool) (bool, error) {
				return false, errDialog
			}),
			expectedErr: errDialog,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := offlineDevice(t, "client-a")
			d.put(t, models.EntityTypeTask, "old", `{"title":"old"}`)

			res, err := d.imex.Import(ctx, testBackup(true), tt.confirmer)

			if !tt.imported {
				require.ErrorIs(t, err, tt.expectedErr)
				assert.Nil(t, res)
				// локальное состояние и конфигурация не тронуты
				assert.Equal(t, []string{"task/old"}, d.refs(t))
				assert.False(t, d.gw.IsEnabled())
				ops, err := d.store.PendingForEntity(ctx, models.FullStateRef)
				require.NoError(t, err)
				assert.Empty(t, ops)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, RequiresConfirmation, res.Decision)
			assert.True(t, res.NeedsPassword)
			assert.Equal(t, []string{"tag/b2", "task/b1"}, d.refs(t))

			// флаг взят из бэкапа, ключа пока нет
			assert.True(t, d.gw.IsEnabled())
			assert.True(t, d.gw.NeedsPassword())
		})
	}
}

func TestCoordinator_ImportInvalidatesKey(t *testing.T) {
	ctx := context.Background()
	d := offlineDevice(t, "client-a")
	require.NoError(t, d.engine.EnableEncryption(ctx, testPassword))
	require.True(t, d.gw.HasKey())

	res, err := d.imex.Import(ctx, testBackup(true), nil)
	require.NoError(t, err)
	assert.Equal(t, NoChange, res.Decision)

	// прежний ключ считается недействительным
	assert.True(t, d.gw.IsEnabled())
	assert.False(t, d.gw.HasKey())

	_, err = d.engine.RunSyncCycle(ctx)
	require.ErrorIs(t, err, encryption.ErrEncryptionUnavailable)
}

func TestCoordinator_ExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := offlineDevice(t, "client-a")
	src.put(t, models.EntityTypeTask, "t1", `{"title":"one"}`)
	src.put(t, models.EntityTypeProject, "p1", `{"name":"work"}`)
	src.put(t, models.EntityTypeTask, "gone", `{"title":"tmp"}`)
	require.NoError(t, src.data.Delete(ctx, models.EntityRef{Type: models.EntityTypeTask, ID: "gone"}))

	backup, err := src.imex.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BackupVersion, backup.Version)
	assert.False(t, backup.IsEncryptionEnabled)
	assert.Len(t, backup.Entities, 2)

	var buf bytes.Buffer
	require.NoError(t, WriteBackup(&buf, backup))
	assert.Contains(t, buf.String(), `"isEncryptionEnabled": false`)

	restored, err := ReadBackup(&buf)
	require.NoError(t, err)

	dst := offlineDevice(t, "client-b")
	res, err := dst.imex.Import(ctx, restored, nil)
	require.NoError(t, err)
	assert.Equal(t, NoChange, res.Decision)
	assert.Equal(t, src.refs(t), dst.refs(t))

	got, err := dst.data.Get(ctx, models.EntityRef{Type: models.EntityTypeTask, ID: "t1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"one"}`, string(got.Data))
}

func TestValidateBackup(t *testing.T) {
	valid := testBackup(false)

	dup := testBackup(false)
	dup.Entities = append(dup.Entities, dup.Entities[0].Clone())

	badVersion := testBackup(false)
	badVersion.Version = 99

	reserved := testBackup(false)
	reserved.Entities[0].Ref = models.FullStateRef

	badData := testBackup(false)
	badData.Entities[0].Data = json.RawMessage(`[1,2]`)

	tombstone := testBackup(false)
	tombstone.Entities[0].Data = nil
	tombstone.Entities[0].Deleted = true

	tests := []struct {
		backup  *models.Backup
		name    string
		wantErr bool
	}{
		{name: "valid", backup: valid},
		{name: "tombstone without data", backup: tombstone},
		{name: "nil", backup: nil, wantErr: true},
		{name: "unsupported version", backup: badVersion, wantErr: true},
		{name: "duplicate entity", backup: dup, wantErr: true},
		{name: "reserved type", backup: reserved, wantErr: true},
		{name: "data not an object", backup: badData, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBackup(tt.backup)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidBackup)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := ReadBackup(bytes.NewBufferString("{not json"))
	assert.ErrorIs(t, err, ErrInvalidBackup)
}

// setupServer поднимает сервер синхронизации на SQLite в памяти
func setupServer(t *testing.T) (string, string) {
	t.Helper()

	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tokens := jwt.NewService([]byte("imex-test-secret"), time.Hour)
	srv := server.New(testLogger(), store, tokens, server.DefaultConfig())
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	token, err := tokens.GenerateToken("alice")
	require.NoError(t, err)
	return ts.URL, token
}

func TestImport_TwoDevicesEncryptedBackup(t *testing.T) {
	ctx := context.Background()
	url, token := setupServer(t)

	a := newDevice(t, "client-a", api.NewClient(url, api.WithToken(token)))
	b := newDevice(t, "client-b", api.NewClient(url, api.WithToken(token)))

	// оба устройства включают шифрование одним паролем
	require.NoError(t, a.engine.EnableEncryption(ctx, testPassword))
	a.sync(t)
	require.NoError(t, b.engine.EnableEncryption(ctx, testPassword))
	b.sync(t)
	a.sync(t)

	a.put(t, models.EntityTypeTask, "old", `{"title":"before import"}`)
	a.sync(t)
	b.sync(t)
	require.Equal(t, []string{"task/old"}, b.refs(t))

	confirmer := &ConfirmerMock{
		ConfirmImportFunc: func(ctx context.Context, currentEncrypted, backupEncrypted bool) (bool, error) {
			return false, nil
		},
	}
	res, err := a.imex.Import(ctx, testBackup(true), confirmer)
	require.NoError(t, err)
	assert.Equal(t, NoChange, res.Decision)
	assert.Empty(t, confirmer.ConfirmImportCalls())
	assert.Equal(t, []string{"tag/b2", "task/b1"}, a.refs(t))

	// ключ нужно установить заново до следующего цикла
	require.True(t, res.NeedsPassword)
	require.NoError(t, a.gw.SetPassword(ctx, testPassword))
	a.sync(t)

	res2 := b.sync(t)
	assert.Zero(t, res2.PermanentlyRejected)
	assert.Equal(t, []string{"tag/b2", "task/b1"}, b.refs(t))

	got, err := b.data.Get(ctx, models.EntityRef{Type: models.EntityTypeTask, ID: "b1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"from backup"}`, string(got.Data))

	// после импорта обычные изменения продолжают синхронизироваться
	b.put(t, models.EntityTypeTask, "b1", `{"title":"edited on b"}`)
	b.sync(t)
	a.sync(t)
	got, err = a.data.Get(ctx, models.EntityRef{Type: models.EntityTypeTask, ID: "b1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"edited on b"}`, string(got.Data))
}

func TestImport_OwnEditAfterForeignImport(t *testing.T) {
	ctx := context.Background()
	url, token := setupServer(t)

	a := newDevice(t, "client-a", api.NewClient(url, api.WithToken(token)))
	b := newDevice(t, "client-b", api.NewClient(url, api.WithToken(token)))

	a.put(t, models.EntityTypeTask, "old", `{"title":"before import"}`)
	a.sync(t)
	b.sync(t)

	_, err := a.imex.Import(ctx, testBackup(false), nil)
	require.NoError(t, err)
	a.sync(t)

	// B еще не видел импорт: его правка уходит на сервер раньше загрузки full-state операции
	b.put(t, models.EntityTypeTask, "mine", `{"title":"mine"}`)
	res := b.sync(t)
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, []string{"tag/b2", "task/b1", "task/mine"}, b.refs(t))

	a.sync(t)
	assert.Equal(t, b.refs(t), a.refs(t))

	b.sync(t)
	assert.Equal(t, []string{"tag/b2", "task/b1", "task/mine"}, b.refs(t))
}

func TestImport_LargeBackupSyncs(t *testing.T) {
	ctx := context.Background()
	url, token := setupServer(t)

	a := newDevice(t, "client-a", api.NewClient(url, api.WithToken(token)))
	b := newDevice(t, "client-b", api.NewClient(url, api.WithToken(token)))

	backup := testBackup(false)
	backup.Entities = backup.Entities[:0]
	title := strings.Repeat("t", 200)
	for i := range 1200 {
		backup.Entities = append(backup.Entities, &models.EntityState{
			Ref:   models.EntityRef{Type: models.EntityTypeTask, ID: fmt.Sprintf("task-%04d", i)},
			Clock: crdt.VectorClock{"backup-device": 1},
			Data:  json.RawMessage(fmt.Sprintf(`{"title":"%s-%d"}`, title, i)),
		})
	}

	_, err := a.imex.Import(ctx, backup, nil)
	require.NoError(t, err)

	ops, err := a.store.PendingForEntity(ctx, models.FullStateRef)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Greater(t, len(ops[0].Payload), validation.MaxPayloadSize)

	res := a.sync(t)
	assert.Equal(t, 1, res.Accepted)
	assert.Zero(t, res.PermanentlyRejected)

	b.sync(t)
	assert.Len(t, b.refs(t), 1200)
	assert.Equal(t, a.refs(t), b.refs(t))
}
