// Package scheduler периодически запускает циклы синхронизации.
//
// Движок выполняет ровно один цикл за вызов; повторы после сетевых ошибок
// с экспоненциальной задержкой живут здесь.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/iudanet/tasksync/internal/client/encryption"
	"github.com/iudanet/tasksync/internal/client/sync"
)

// DefaultInterval пауза между успешными циклами
const DefaultInterval = 30 * time.Second

// Runner выполняет один цикл синхронизации
type Runner interface {
	RunSyncCycle(ctx context.Context) (*sync.CycleResult, error)
}

var _ Runner = (*sync.Engine)(nil)

// Config параметры расписания
type Config struct {
	Interval time.Duration
	// MaxBackoff верхняя граница задержки после сетевых ошибок
	MaxBackoff time.Duration
	// OnCycle вызывается после каждого завершенного цикла (может быть nil)
	OnCycle func(res *sync.CycleResult)
}

// Scheduler запускает циклы до отмены контекста или до ошибки,
// требующей действия пользователя.
type Scheduler struct {
	runner     Runner
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
	trigger    chan struct{}
	cfg        Config
}

// New создает планировщик
func New(runner Runner, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}

	s := &Scheduler{
		runner:  runner,
		logger:  logger,
		trigger: make(chan struct{}, 1),
		cfg:     cfg,
	}
	s.newBackOff = func() backoff.BackOff {
		// экземпляры BackOff хранят состояние, поэтому каждый раз новый
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = time.Second
		bo.MaxInterval = cfg.MaxBackoff
		bo.MaxElapsedTime = 0
		return bo
	}
	return s
}

// Trigger запускает цикл немедленно, не дожидаясь интервала
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run выполняет циклы до отмены ctx. Возвращает ошибку, если цикл
// завершился ErrDecryptionFailed или ErrEncryptionUnavailable: без пароля
// повторять бессмысленно.
func (s *Scheduler) Run(ctx context.Context) error {
	bo := s.newBackOff()

	for {
		res, err := s.runner.RunSyncCycle(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if res != nil && s.cfg.OnCycle != nil {
			s.cfg.OnCycle(res)
		}
		if errors.Is(err, encryption.ErrDecryptionFailed) || errors.Is(err, encryption.ErrEncryptionUnavailable) {
			s.logger.Warn("Scheduler stopped: user action required", "error", err)
			return fmt.Errorf("sync stopped: %w", err)
		}

		wait := s.cfg.Interval
		if isRetryable(res, err) {
			wait = bo.NextBackOff()
			if wait == backoff.Stop {
				wait = s.cfg.Interval
			}
			s.logger.Warn("Sync cycle failed, retrying", "retry_in", wait, "error", cycleErr(res, err))
		} else {
			bo.Reset()
		}

		if !s.wait(ctx, wait) {
			return nil
		}
	}
}

// wait ждет интервал или Trigger. false - контекст отменен.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-s.trigger:
		return true
	case <-timer.C:
		return true
	}
}

// isRetryable сетевые ошибки повторяются с задержкой
func isRetryable(res *sync.CycleResult, err error) bool {
	var te *sync.TransportError
	return errors.As(cycleErr(res, err), &te)
}

func cycleErr(res *sync.CycleResult, err error) error {
	if err != nil {
		return err
	}
	if res != nil {
		return res.Err
	}
	return nil
}
