package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"

	"cadio-client/internal/common/logger"
)

// Observability records run-level outcomes through an OTel meter exported to Prometheus.
type Observability struct {
	meterProvider *metric.MeterProvider
	runCounter    otelmetric.Int64Counter
	runDuration   otelmetric.Float64Histogram
}

// New builds the meter. A nil registerer uses the Prometheus default registry.
// If the exporter cannot be created the returned value records nothing.
func New(serviceName string, registerer prometheus.Registerer, log logger.Logger) *Observability {
	var opts []otelprom.Option
	if registerer != nil {
		opts = append(opts, otelprom.WithRegisterer(registerer))
	}
	exporter, err := otelprom.New(opts...)
	if err != nil {
		log.Warn("Failed to create Prometheus exporter", map[string]interface{}{"error": err.Error()})
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	runCounter, _ := meter.Int64Counter(
		"cadio.runs",
		otelmetric.WithDescription("Number of completed runs"),
	)

	runDuration, _ := meter.Float64Histogram(
		"cadio.run.duration",
		otelmetric.WithDescription("End-to-end run duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider: provider,
		runCounter:    runCounter,
		runDuration:   runDuration,
	}
}

// RecordRun records one finished run. status is the work item status or an error code.
func (o *Observability) RecordRun(ctx context.Context, activityID, status string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("activity", activityID),
		attribute.String("status", status),
	)
	if o.runCounter != nil {
		o.runCounter.Add(ctx, 1, attrs)
	}
	if o.runDuration != nil {
		o.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.meterProvider.Shutdown(ctx)
	}
}
