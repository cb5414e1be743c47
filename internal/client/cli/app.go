package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/iudanet/tasksync/internal/client/api"
	"github.com/iudanet/tasksync/internal/client/data"
	"github.com/iudanet/tasksync/internal/client/encryption"
	"github.com/iudanet/tasksync/internal/client/imex"
	"github.com/iudanet/tasksync/internal/client/storage/boltdb"
	"github.com/iudanet/tasksync/internal/client/sync"
	"github.com/iudanet/tasksync/internal/telemetry"
)

var initTelemetry = telemetry.Init

// app зависимости клиента на время одной команды
type app struct {
	store             *boltdb.Storage
	gateway           *encryption.Gateway
	engine            *sync.Engine
	data              data.Service
	imex              *imex.Coordinator
	shutdownTelemetry func(context.Context) error
}

// openApp открывает локальное хранилище и собирает сервисы
func openApp(ctx context.Context, cfg *Config, logger *slog.Logger, metricsOut io.Writer) (a *app, err error) {
	store, err := boltdb.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local storage: %w", err)
	}
	defer func() {
		if err != nil {
			_ = store.Close()
		}
	}()

	clientID, err := resolveClientID(ctx, store, cfg.ClientID)
	if err != nil {
		return nil, err
	}

	shutdown, err := initTelemetry(ctx, telemetry.Config{
		Output:      metricsOut,
		ServiceName: "tasksync",
		Enabled:     cfg.OtelEnabled,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = shutdown(context.WithoutCancel(ctx))
		}
	}()
	metrics, err := telemetry.NewSyncMetrics(telemetry.Meter(""))
	if err != nil {
		return nil, err
	}

	gw := encryption.New(store, logger)
	if err := gw.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load encryption config: %w", err)
	}

	client := api.NewClient(cfg.Server, api.WithToken(cfg.Token))
	engine := sync.NewEngine(store, client, gw, sync.Config{
		ClientID:              clientID,
		MaxResolutionAttempts: cfg.MaxResolutionAttempts,
		BatchSize:             cfg.BatchSize,
	}, logger, sync.WithMetrics(metrics))

	return &app{
		store:             store,
		gateway:           gw,
		engine:            engine,
		data:              data.NewService(store, clientID, engine),
		imex:              imex.NewCoordinator(store, gw, engine, logger),
		shutdownTelemetry: shutdown,
	}, nil
}

func (a *app) Close(ctx context.Context) error {
	return errors.Join(a.shutdownTelemetry(ctx), a.store.Close())
}
