package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	gosync "sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tasksync/internal/client/encryption"
	"github.com/iudanet/tasksync/internal/client/sync"
	"github.com/iudanet/tasksync/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type runnerFunc func(ctx context.Context) (*sync.CycleResult, error)

func (f runnerFunc) RunSyncCycle(ctx context.Context) (*sync.CycleResult, error) {
	return f(ctx)
}

// recordingBackOff фиксирует обращения к политике повторов
type recordingBackOff struct {
	next   int
	resets int
	mu     gosync.Mutex
}

func (b *recordingBackOff) NextBackOff() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	return time.Millisecond
}

func (b *recordingBackOff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resets++
}

func runAsync(s *Scheduler, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
		return nil
	}
}

func TestScheduler_StopsOnUserActionErrors(t *testing.T) {
	tests := []struct {
		err  error
		name string
	}{
		{name: "decryption failed", err: fmt.Errorf("download: %w", encryption.ErrDecryptionFailed)},
		{name: "encryption unavailable", err: encryption.ErrEncryptionUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			runner := runnerFunc(func(ctx context.Context) (*sync.CycleResult, error) {
				calls++
				return &sync.CycleResult{Status: models.SyncStatusError, Err: tt.err}, tt.err
			})

			s := New(runner, Config{Interval: time.Millisecond}, testLogger())
			err := waitDone(t, runAsync(s, context.Background()))

			require.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestScheduler_BacksOffOnTransportErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	runner := runnerFunc(func(ctx context.Context) (*sync.CycleResult, error) {
		calls++
		if calls <= 3 {
			return &sync.CycleResult{
				Status: models.SyncStatusError,
				Err:    &sync.TransportError{Op: "upload", Err: errors.New("connection refused")},
			}, nil
		}
		return &sync.CycleResult{Status: models.SyncStatusSuccess}, nil
	})

	var statuses []models.SyncStatus
	cfg := Config{
		Interval: time.Hour,
		OnCycle: func(res *sync.CycleResult) {
			statuses = append(statuses, res.Status)
			if res.Status == models.SyncStatusSuccess {
				cancel()
			}
		},
	}

	bo := &recordingBackOff{}
	s := New(runner, cfg, testLogger())
	s.newBackOff = func() backoff.BackOff { return bo }

	require.NoError(t, waitDone(t, runAsync(s, ctx)))

	assert.Equal(t, 4, calls)
	assert.Equal(t, []models.SyncStatus{
		models.SyncStatusError, models.SyncStatusError, models.SyncStatusError, models.SyncStatusSuccess,
	}, statuses)
	assert.Equal(t, 3, bo.next)
}

func TestScheduler_PermanentRejectionUsesInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	runner := runnerFunc(func(ctx context.Context) (*sync.CycleResult, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return &sync.CycleResult{
			Status: models.SyncStatusError,
			Err:    sync.ErrPermanentRejection,
		}, nil
	})

	bo := &recordingBackOff{}
	s := New(runner, Config{Interval: time.Millisecond}, testLogger())
	s.newBackOff = func() backoff.BackOff { return bo }

	require.NoError(t, waitDone(t, runAsync(s, ctx)))
	assert.Zero(t, bo.next)
	assert.Equal(t, 1, bo.resets)
}

func TestScheduler_Trigger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ran := make(chan struct{}, 4)
	runner := runnerFunc(func(ctx context.Context) (*sync.CycleResult, error) {
		ran <- struct{}{}
		return &sync.CycleResult{Status: models.SyncStatusSuccess}, nil
	})

	s := New(runner, Config{Interval: time.Hour}, testLogger())
	done := runAsync(s, ctx)

	<-ran
	s.Trigger()
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("trigger did not start a cycle")
	}

	cancel()
	require.NoError(t, waitDone(t, done))
}

func TestScheduler_CancelledCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	runner := runnerFunc(func(ctx context.Context) (*sync.CycleResult, error) {
		cancel()
		return nil, fmt.Errorf("%w: %w", sync.ErrCycleCancelled, ctx.Err())
	})

	s := New(runner, Config{}, testLogger())
	assert.NoError(t, waitDone(t, runAsync(s, ctx)))
	assert.Equal(t, DefaultInterval, s.cfg.Interval)
}
