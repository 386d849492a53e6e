package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OtlpEndpoint string
	OtlpInsecure bool
}

// Setup wires an OTel meter provider with a Prometheus reader and, when an endpoint is
// given, an OTLP/HTTP reader. It returns the recorder, the /metrics handler (nil when
// disabled) and a shutdown func.
func Setup(ctx context.Context, cfg TelemetryConfig) (*Recorder, http.Handler, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return NewRecorder(), nil, noop, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "ovpfh"
	}

	reg := prometheus.NewRegistry()
	promExp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, nil, nil, err
	}
	opts := []sdkmetric.Option{sdkmetric.WithReader(promExp)}

	if cfg.OtlpEndpoint != "" {
		otlpOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.OtlpEndpoint)}
		if cfg.OtlpInsecure {
			otlpOpts = append(otlpOpts, otlpmetrichttp.WithInsecure())
		}
		exp, err := otlpmetrichttp.New(ctx, otlpOpts...)
		if err != nil {
			return nil, nil, nil, err
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second))))
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, nil, nil, err
	}
	opts = append(opts, sdkmetric.WithResource(res))

	provider := sdkmetric.NewMeterProvider(opts...)
	inst, err := newOtelInstruments(provider)
	if err != nil {
		return nil, nil, nil, err
	}
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return newRecorder(inst), handler, provider.Shutdown, nil
}

type otelInstruments struct {
	ctx           context.Context
	requests      metric.Int64Counter
	requestMs     metric.Float64Histogram
	feedCycles    metric.Int64Counter
	feedErrors    metric.Int64Counter
	feedMs        metric.Float64Histogram
	filterPasses  metric.Int64Counter
	filterVisible metric.Int64Histogram
}

func newOtelInstruments(provider metric.MeterProvider) (*otelInstruments, error) {
	meter := provider.Meter("ovpfh")
	o := &otelInstruments{ctx: context.Background()}
	var err error
	if o.requests, err = meter.Int64Counter("http_requests_total"); err != nil {
		return nil, err
	}
	if o.requestMs, err = meter.Float64Histogram("http_request_duration_ms"); err != nil {
		return nil, err
	}
	if o.feedCycles, err = meter.Int64Counter("feed_cycles_total"); err != nil {
		return nil, err
	}
	if o.feedErrors, err = meter.Int64Counter("feed_errors_total"); err != nil {
		return nil, err
	}
	if o.feedMs, err = meter.Float64Histogram("feed_cycle_duration_ms"); err != nil {
		return nil, err
	}
	if o.filterPasses, err = meter.Int64Counter("filter_passes_total"); err != nil {
		return nil, err
	}
	if o.filterVisible, err = meter.Int64Histogram("filter_visible_matches"); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *otelInstruments) recordHTTPRequest(method, route string, status int, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(AttrMethod, method),
		attribute.String(AttrRoute, route),
		attribute.Int(AttrStatus, status),
	)
	o.requests.Add(o.ctx, 1, attrs)
	o.requestMs.Record(o.ctx, float64(d.Milliseconds()), attrs)
}

func (o *otelInstruments) recordFeed(d time.Duration, err error) {
	o.feedCycles.Add(o.ctx, 1)
	o.feedMs.Record(o.ctx, float64(d.Milliseconds()))
	if err != nil {
		o.feedErrors.Add(o.ctx, 1)
	}
}

func (o *otelInstruments) recordFilter(visible int) {
	o.filterPasses.Add(o.ctx, 1)
	o.filterVisible.Record(o.ctx, int64(visible))
}
