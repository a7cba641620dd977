package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "github.com/hackgods/hospital-capacity-scheduling"

// Metrics holds the scheduling instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Admissions       metric.Int64Counter
	Allocations      metric.Int64Counter
	Conflicts        metric.Int64Counter
	SlotTransitions  metric.Int64Counter
	Materializations metric.Int64Counter
	OracleLatency    metric.Float64Histogram
}

// SetupMetrics installs an OTLP gRPC meter provider when an endpoint is given.
// Without one the global no-op provider stays in place.
func SetupMetrics(ctx context.Context, serviceName, endpoint string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}

// InitMetrics creates the instruments on the global meter provider.
func InitMetrics() (*Metrics, error) {
	return NewMetrics(otel.GetMeterProvider())
}

func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)

	admissions, err := meter.Int64Counter(
		"scheduling.admissions",
		metric.WithDescription("Slot booking attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	allocations, err := meter.Int64Counter(
		"scheduling.bed_allocations",
		metric.WithDescription("Bed allocation requests by outcome"),
	)
	if err != nil {
		return nil, err
	}

	conflicts, err := meter.Int64Counter(
		"scheduling.version_conflicts",
		metric.WithDescription("Optimistic concurrency conflicts by entity"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"scheduling.slot_transitions",
		metric.WithDescription("Slot flag transitions applied by the refresh tick"),
	)
	if err != nil {
		return nil, err
	}

	materializations, err := meter.Int64Counter(
		"scheduling.materializations",
		metric.WithDescription("Recurring consultation occurrences created"),
	)
	if err != nil {
		return nil, err
	}

	oracleLatency, err := meter.Float64Histogram(
		"scheduling.oracle.duration",
		metric.WithDescription("Priority oracle call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Admissions:       admissions,
		Allocations:      allocations,
		Conflicts:        conflicts,
		SlotTransitions:  transitions,
		Materializations: materializations,
		OracleLatency:    oracleLatency,
	}, nil
}

func (m *Metrics) RecordAdmission(ctx context.Context, outcome string, online bool) {
	if m == nil {
		return
	}
	m.Admissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("online", online),
	))
}

func (m *Metrics) RecordAllocation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Allocations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordConflict(ctx context.Context, entity string) {
	if m == nil {
		return
	}
	m.Conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity)))
}

func (m *Metrics) RecordTransition(ctx context.Context, kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.SlotTransitions.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordMaterialization(ctx context.Context, frequency string) {
	if m == nil {
		return
	}
	m.Materializations.Add(ctx, 1, metric.WithAttributes(attribute.String("frequency", frequency)))
}

func (m *Metrics) RecordOracleCall(ctx context.Context, endpoint string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.OracleLatency.Record(ctx, float64(took.Microseconds())/1000, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.Bool("error", err != nil),
	))
}
