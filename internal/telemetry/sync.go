package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

// SyncMetrics счетчики циклов синхронизации
type SyncMetrics struct {
	cycles              metric.Int64Counter
	uploaded            metric.Int64Counter
	conflicts           metric.Int64Counter
	permanentRejections metric.Int64Counter
	duration            metric.Float64Histogram
}

// NewSyncMetrics регистрирует инструменты на meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	var (
		m   SyncMetrics
		err error
	)

	if m.cycles, err = meter.Int64Counter("tasksync.sync.cycles",
		metric.WithDescription("Completed sync cycles by resulting status")); err != nil {
		return nil, fmt.Errorf("telemetry: cycles counter: %w", err)
	}
	if m.uploaded, err = meter.Int64Counter("tasksync.sync.ops.uploaded",
		metric.WithDescription("Operations submitted to the remote store")); err != nil {
		return nil, fmt.Errorf("telemetry: uploaded counter: %w", err)
	}
	if m.conflicts, err = meter.Int64Counter("tasksync.sync.conflicts",
		metric.WithDescription("CONFLICT_CONCURRENT rejections received")); err != nil {
		return nil, fmt.Errorf("telemetry: conflicts counter: %w", err)
	}
	if m.permanentRejections, err = meter.Int64Counter("tasksync.sync.permanent_rejections",
		metric.WithDescription("Entities whose operations were permanently rejected")); err != nil {
		return nil, fmt.Errorf("telemetry: rejections counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("tasksync.sync.cycle.duration",
		metric.WithDescription("Sync cycle duration"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("telemetry: duration histogram: %w", err)
	}

	return &m, nil
}

// NoopSyncMetrics метрики, которые никуда не пишутся
func NoopSyncMetrics() *SyncMetrics {
	m, _ := NewSyncMetrics(metricnoop.NewMeterProvider().Meter(instrumentationScope))
	return m
}

// RecordCycle учитывает завершенный цикл
func (m *SyncMetrics) RecordCycle(ctx context.Context, status string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.cycles.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}

// AddUploaded учитывает отправленные операции
func (m *SyncMetrics) AddUploaded(ctx context.Context, n int) {
	m.uploaded.Add(ctx, int64(n))
}

// AddConflicts учитывает отказы CONFLICT_CONCURRENT
func (m *SyncMetrics) AddConflicts(ctx context.Context, n int) {
	m.conflicts.Add(ctx, int64(n))
}

// AddPermanentRejections учитывает окончательно отклоненные сущности
func (m *SyncMetrics) AddPermanentRejections(ctx context.Context, n int) {
	m.permanentRejections.Add(ctx, int64(n))
}
