package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type appMetrics struct {
	callbackCounter    metric.Int64Counter
	gateDenyCounter    metric.Int64Counter
	dispatchCounter    metric.Int64Counter
	persistenceCounter metric.Int64Counter
	refreshCounter     metric.Int64Counter
}

var (
	metricsMu sync.RWMutex
	metrics   *appMetrics
)

func registerAppMetrics(mp *sdkmetric.MeterProvider) error {
	meter := mp.Meter("guildgate")
	callback, err := meter.Int64Counter("auth.callback.attempts")
	if err != nil {
		return err
	}
	gateDeny, err := meter.Int64Counter("auth.gate.denials")
	if err != nil {
		return err
	}
	dispatch, err := meter.Int64Counter("dispatch.user.outcomes")
	if err != nil {
		return err
	}
	persistence, err := meter.Int64Counter("persistence.operations")
	if err != nil {
		return err
	}
	refresh, err := meter.Int64Counter("auth.token.refreshes")
	if err != nil {
		return err
	}

	metricsMu.Lock()
	metrics = &appMetrics{
		callbackCounter:    callback,
		gateDenyCounter:    gateDeny,
		dispatchCounter:    dispatch,
		persistenceCounter: persistence,
		refreshCounter:     refresh,
	}
	metricsMu.Unlock()
	return nil
}

func current() *appMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return metrics
}

func RecordCallback(ctx context.Context, status string) {
	m := current()
	if m == nil {
		return
	}
	m.callbackCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordGateDenial(ctx context.Context, reason string) {
	m := current()
	if m == nil {
		return
	}
	m.gateDenyCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func RecordDispatchOutcome(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.dispatchCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordPersistenceOperation(ctx context.Context, backend, op, status string) {
	m := current()
	if m == nil {
		return
	}
	m.persistenceCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("op", op),
		attribute.String("status", status),
	))
}

func RecordTokenRefresh(ctx context.Context, status string) {
	m := current()
	if m == nil {
		return
	}
	m.refreshCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
