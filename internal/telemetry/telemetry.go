// Package telemetry подключает метрики OpenTelemetry.
//
// По умолчанию телеметрия выключена и используется no-op провайдер.
// При включении метрики периодически пишутся в stderr через stdoutmetric.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const instrumentationScope = "github.com/iudanet/tasksync"

// Config параметры телеметрии
type Config struct {
	Output      io.Writer
	ServiceName string
	Interval    time.Duration
	Enabled     bool
}

// Init устанавливает глобальный MeterProvider и возвращает функцию завершения,
// которая сбрасывает накопленные метрики.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return func(context.Context) error { return nil }, nil
	}

	opts := []stdoutmetric.Option{}
	if cfg.Output != nil {
		opts = append(opts, stdoutmetric.WithWriter(cfg.Output))
	}
	exp, err := stdoutmetric.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}

// Meter returns a meter with the given instrumentation name (or the global scope).
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}
