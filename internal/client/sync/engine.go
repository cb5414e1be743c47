// Package sync реализует цикл синхронизации журнала операций устройства
// с удаленным хранилищем.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	gosync "sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/iudanet/tasksync/internal/client/encryption"
	"github.com/iudanet/tasksync/internal/client/resolver"
	"github.com/iudanet/tasksync/internal/client/storage"
	"github.com/iudanet/tasksync/internal/models"
	"github.com/iudanet/tasksync/internal/telemetry"
	"github.com/iudanet/tasksync/pkg/api"
)

// DefaultBatchSize размер пачки при отправке и страницы при загрузке операций
const DefaultBatchSize = 500

// Encryptor шифрование payload и управление ключом
type Encryptor interface {
	Encrypt(plain []byte) ([]byte, error)
	Decrypt(payload []byte) ([]byte, error)
	IsEnabled() bool
	NeedsPassword() bool
	SetPassword(ctx context.Context, password string) error
	Rotate(ctx context.Context, password string) error
	Disable(ctx context.Context) error
}

var _ Encryptor = (*encryption.Gateway)(nil)

// Config параметры движка
type Config struct {
	ClientID string
	// MaxResolutionAttempts лимит попыток разрешения CONFLICT_CONCURRENT на сущность
	MaxResolutionAttempts int
	BatchSize             int
}

// CycleResult итог одного цикла синхронизации
type CycleResult struct {
	Err                 error
	Status              models.SyncStatus
	Uploaded            int
	Accepted            int
	Conflicts           int
	Merged              int
	LeftPending         int
	PermanentlyRejected int // число сущностей
	Downloaded          int
	Applied             int
	Requeued            int // удаленные операции, конкурентные с локальными
	LatestSeq           int64
	Duration            time.Duration
}

// Engine выполняет один ограниченный цикл синхронизации за вызов.
// Повторы и расписание - забота вызывающей стороны (см. scheduler).
type Engine struct {
	store     storage.Store
	transport Transport
	enc       Encryptor
	resolver  *resolver.Resolver
	metrics   *telemetry.SyncMetrics
	logger    *slog.Logger
	now       func() time.Time
	// gate допускает один цикл (или одну блокирующую синхронизацию операцию) за раз
	gate    *semaphore.Weighted
	lastErr error
	cfg     Config
	status  models.SyncStatus
	mu      gosync.RWMutex
}

// Option настраивает Engine
type Option func(*Engine)

// WithMetrics подключает метрики
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine создает движок синхронизации
func NewEngine(store storage.Store, transport Transport, enc Encryptor, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	e := &Engine{
		store:     store,
		transport: transport,
		enc:       enc,
		resolver:  resolver.New(store, cfg.ClientID, cfg.MaxResolutionAttempts, logger),
		metrics:   telemetry.NoopSyncMetrics(),
		logger:    logger,
		now:       time.Now,
		gate:      semaphore.NewWeighted(1),
		cfg:       cfg,
		status:    models.SyncStatusIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ClientID идентификатор устройства в векторных часах
func (e *Engine) ClientID() string {
	return e.cfg.ClientID
}

// Status возвращает текущий статус синхронизации
func (e *Engine) Status() models.SyncStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// LastError ошибка последнего неуспешного цикла
func (e *Engine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

func (e *Engine) setStatus(status models.SyncStatus, err error) {
	e.mu.Lock()
	e.status = status
	e.lastErr = err
	e.mu.Unlock()
}

// RunWithSyncBlocked выполняет fn, пока ни один цикл синхронизации не может начаться.
// Блокировка снимается при любом исходе fn, включая panic.
func (e *Engine) RunWithSyncBlocked(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := e.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to block sync: %w", err)
	}
	defer e.gate.Release(1)

	return fn(ctx)
}

// RunSyncCycle выполняет один цикл: upload ожидающих операций, обработка результатов,
// download удаленных операций. Параллельный вызов ждет завершения текущего цикла.
//
// Ошибка возвращается только если нужны действия пользователя
// (encryption.ErrDecryptionFailed, encryption.ErrEncryptionUnavailable) или цикл отменен.
// Остальные сбои отражаются в CycleResult.Err и статусе ERROR.
func (e *Engine) RunSyncCycle(ctx context.Context) (*CycleResult, error) {
	if err := e.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCycleCancelled, err)
	}
	defer e.gate.Release(1)

	return e.runCycleLocked(ctx)
}

func (e *Engine) runCycleLocked(ctx context.Context) (*CycleResult, error) {
	start := e.now()
	previous, previousErr := e.Status(), e.LastError()
	e.setStatus(models.SyncStatusSyncing, nil)
	e.logger.Info("Starting sync cycle", "client_id", e.cfg.ClientID)

	res := &CycleResult{}
	err := e.cycle(ctx, res)
	res.Duration = e.now().Sub(start)

	// Отмена до ответа сервера не меняет итоговый статус
	if errors.Is(err, ErrCycleCancelled) {
		e.setStatus(previous, previousErr)
		res.Status = previous
		res.Err = err
		e.logger.Info("Sync cycle cancelled", "error", err)
		return res, err
	}

	if res.PermanentlyRejected > 0 {
		err = errors.Join(err, fmt.Errorf("%w: %d entities", ErrPermanentRejection, res.PermanentlyRejected))
	}

	res.Err = err
	res.Status = models.SyncStatusSuccess
	if err != nil {
		res.Status = models.SyncStatusError
	}
	e.setStatus(res.Status, err)
	e.persistState(context.WithoutCancel(ctx), res)

	e.metrics.RecordCycle(ctx, string(res.Status), res.Duration)
	e.metrics.AddUploaded(ctx, res.Uploaded)
	e.metrics.AddConflicts(ctx, res.Conflicts)
	e.metrics.AddPermanentRejections(ctx, res.PermanentlyRejected)

	if err != nil {
		e.logger.Error("Sync cycle failed", "status", res.Status, "error", err)
	} else {
		e.logger.Info("Sync cycle completed",
			"uploaded", res.Uploaded,
			"accepted", res.Accepted,
			"merged", res.Merged,
			"downloaded", res.Downloaded,
			"applied", res.Applied,
			"latest_seq", res.LatestSeq,
			"duration", res.Duration)
	}

	if errors.Is(err, encryption.ErrDecryptionFailed) || errors.Is(err, encryption.ErrEncryptionUnavailable) {
		return res, err
	}
	return res, nil
}

func (e *Engine) persistState(ctx context.Context, res *CycleResult) {
	state := &storage.SyncState{LastSyncAt: e.now(), Status: res.Status}
	if res.Err != nil {
		state.LastError = res.Err.Error()
	}
	if err := e.store.SaveSyncState(ctx, state); err != nil {
		e.logger.Warn("Failed to save sync state", "error", err)
	}
}

func (e *Engine) cycle(ctx context.Context, res *CycleResult) error {
	// Без ключа нельзя ни зашифровать, ни отправить открытым текстом
	if e.enc.IsEnabled() && e.enc.NeedsPassword() {
		return encryption.ErrEncryptionUnavailable
	}

	cursor, err := e.store.GetCursor(ctx)
	if err != nil {
		return fmt.Errorf("failed to get cursor: %w", err)
	}

	if err := e.upload(ctx, res); err != nil {
		return err
	}

	return e.download(ctx, cursor, res)
}

// upload отправляет ожидающие операции пачками по BatchSize в порядке создания
// и применяет результаты каждой пачки. Первый сбой транспорта прерывает отправку.
// После получения ответа результаты применяются даже при отмене ctx.
func (e *Engine) upload(ctx context.Context, res *CycleResult) error {
	var pending []*models.Operation
	for op, err := range e.store.PendingSince(ctx, 0) {
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrCycleCancelled, err)
			}
			return fmt.Errorf("failed to read pending operations: %w", err)
		}
		pending = append(pending, op)
	}

	if len(pending) == 0 {
		e.logger.Debug("Nothing to upload")
		return nil
	}

	encrypted := e.enc.IsEnabled()
	e.logger.Info("Uploading operations", "count", len(pending), "batch_size", e.cfg.BatchSize, "encrypted", encrypted)

	// отказ по сущности уже разрешен в этом цикле: ее остальные операции ждут следующего
	rejectedRefs := make(map[models.EntityRef]struct{})
	for batch := range slices.Chunk(pending, e.cfg.BatchSize) {
		batch = slices.DeleteFunc(slices.Clone(batch), func(op *models.Operation) bool {
			_, skip := rejectedRefs[op.EntityRef]
			return skip
		})
		if len(batch) == 0 {
			continue
		}

		wire := make([]api.Op, 0, len(batch))
		for _, op := range batch {
			payload, err := e.enc.Encrypt(op.Payload)
			if err != nil {
				return fmt.Errorf("failed to encrypt operation %s: %w", op.ID, err)
			}
			wire = append(wire, toWire(op, payload, encrypted))
		}

		resp, err := e.transport.UploadOps(ctx, api.UploadOpsRequest{Ops: wire})
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrCycleCancelled, err)
			}
			return transportError("upload", err)
		}
		res.Uploaded += len(batch)
		res.LatestSeq = resp.LatestSeq

		if err := e.applyUploadResults(context.WithoutCancel(ctx), batch, resp.Results, rejectedRefs, res); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrCycleCancelled, ctx.Err())
		}
	}
	return nil
}

// applyUploadResults помечает принятые операции и передает отказы резолверу,
// не более одного отказа на сущность за цикл.
func (e *Engine) applyUploadResults(
	ctx context.Context,
	pending []*models.Operation,
	results []api.OpResult,
	rejectedRefs map[models.EntityRef]struct{},
	res *CycleResult,
) error {
	byID := make(map[string]*models.Operation, len(pending))
	for _, op := range pending {
		byID[op.ID] = op
	}

	type rejection struct {
		op     *models.Operation
		result api.OpResult
	}
	var (
		order    []models.EntityRef
		rejected = make(map[models.EntityRef]rejection)
		accepted = make(map[models.EntityRef]struct{})
		errs     []error
	)

	for _, result := range results {
		op, ok := byID[result.OpID]
		if !ok {
			e.logger.Warn("Server returned result for unknown operation", "op_id", result.OpID)
			continue
		}
		delete(byID, result.OpID)

		if result.Accepted {
			if err := e.store.MarkAccepted(ctx, op.ID); err != nil {
				errs = append(errs, fmt.Errorf("failed to mark %s accepted: %w", op.ID, err))
				continue
			}
			res.Accepted++
			accepted[op.EntityRef] = struct{}{}
			continue
		}

		if result.ErrorCode == api.ErrorCodeConflictConcurrent {
			res.Conflicts++
		}

		prev, seen := rejected[op.EntityRef]
		if !seen {
			order = append(order, op.EntityRef)
		}
		// CONFLICT_CONCURRENT важнее прочих кодов: только он двигает счетчик попыток
		if !seen || result.ErrorCode == api.ErrorCodeConflictConcurrent ||
			prev.result.ErrorCode != api.ErrorCodeConflictConcurrent {
			rejected[op.EntityRef] = rejection{op: op, result: result}
		}
	}

	for id := range byID {
		e.logger.Warn("Server returned no result for operation, left pending", "op_id", id)
	}

	// Принятая операция очищает историю конфликта сущности
	for ref := range accepted {
		if _, isRejected := rejected[ref]; isRejected {
			continue
		}
		if err := e.resolver.Accepted(ctx, ref); err != nil {
			errs = append(errs, err)
		}
	}

	for _, ref := range order {
		r := rejected[ref]
		rejectedRefs[ref] = struct{}{}
		outcome, err := e.resolver.Resolve(ctx, r.op, r.result)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to resolve rejection for %s: %w", ref, err))
			continue
		}

		switch outcome.Outcome {
		case resolver.OutcomeMerged:
			res.Merged++
		case resolver.OutcomePermanentlyRejected:
			res.PermanentlyRejected++
		case resolver.OutcomeLeftPending:
			res.LeftPending++
		}
	}

	return errors.Join(errs...)
}

func toWire(op *models.Operation, payload []byte, encrypted bool) api.Op {
	return api.Op{
		CreatedAt: op.CreatedAt,
		Clock:     op.Clock.Clone(),
		EntityRef: api.EntityRef{Type: string(op.EntityRef.Type), ID: op.EntityRef.ID},
		ID:        op.ID,
		Kind:      string(op.Kind),
		ClientID:  op.ClientID,
		Payload:   payload,
		Encrypted: encrypted,
	}
}
