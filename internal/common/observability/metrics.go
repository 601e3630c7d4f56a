// internal/common/observability/metrics.go
package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Observability owns the OTel meter provider bridged to the Prometheus
// exporter, so OTel measurements surface on /metrics next to the
// promauto vectors the workers record directly.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	workerGauge   otelmetric.Int64UpDownCounter
}

// New registers the global meter provider. A failed exporter leaves a
// no-op Observability rather than blocking worker startup.
func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		res = resource.Default()
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	workerGauge, _ := meter.Int64UpDownCounter(
		"workers.registered",
		otelmetric.WithDescription("Job workers currently subscribed to the broker"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		workerGauge:   workerGauge,
	}
}

// WorkerStarted records a new broker subscription for taskType.
func (o *Observability) WorkerStarted(ctx context.Context, taskType string) {
	if o.workerGauge != nil {
		o.workerGauge.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("taskType", taskType),
		))
	}
}

// WorkerStopped records that the subscription for taskType has drained.
func (o *Observability) WorkerStopped(ctx context.Context, taskType string) {
	if o.workerGauge != nil {
		o.workerGauge.Add(ctx, -1, otelmetric.WithAttributes(
			attribute.String("taskType", taskType),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
