// Package mirrormetrics exports the §3/§4.6 progress counters as
// OTel/Prometheus instruments, adapted from the teacher's metrics package:
// same exporter wiring (Prometheus exporter behind an OTel meter
// provider), counters reshaped around the mirror's phases instead of
// depot's upload/download/access-log split.
package mirrormetrics

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the instruments the downloader and orchestrator report
// through.
type Metrics struct {
	FilesTotal   metric.Int64Counter
	FilesSuccess metric.Int64Counter
	FilesSkipped metric.Int64Counter
	FilesFailed  metric.Int64Counter
	BytesSuccess metric.Int64Counter
}

// New wires a Prometheus exporter behind an OTel meter provider and
// registers this repo's counters on it.
func New() (m Metrics, err error) {
	exporter, err := prometheus.New()
	if err != nil {
		return Metrics{}, fmt.Errorf("mirrormetrics: creating prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("github.com/a-h/npmmirror")

	if m.FilesTotal, err = meter.Int64Counter("mirror_files_total", metric.WithDescription("Total files queued for download, by phase")); err != nil {
		return Metrics{}, fmt.Errorf("mirrormetrics: creating mirror_files_total counter: %w", err)
	}
	if m.FilesSuccess, err = meter.Int64Counter("mirror_files_success_total", metric.WithDescription("Files successfully downloaded, by phase")); err != nil {
		return Metrics{}, fmt.Errorf("mirrormetrics: creating mirror_files_success_total counter: %w", err)
	}
	if m.FilesSkipped, err = meter.Int64Counter("mirror_files_skipped_total", metric.WithDescription("Files skipped (cache hit or 404), by phase")); err != nil {
		return Metrics{}, fmt.Errorf("mirrormetrics: creating mirror_files_skipped_total counter: %w", err)
	}
	if m.FilesFailed, err = meter.Int64Counter("mirror_files_failed_total", metric.WithDescription("Files that failed permanently, by phase")); err != nil {
		return Metrics{}, fmt.Errorf("mirrormetrics: creating mirror_files_failed_total counter: %w", err)
	}
	if m.BytesSuccess, err = meter.Int64Counter("mirror_bytes_success_total", metric.WithDescription("Bytes successfully downloaded, by phase")); err != nil {
		return Metrics{}, fmt.Errorf("mirrormetrics: creating mirror_bytes_success_total counter: %w", err)
	}

	return m, nil
}

// ListenAndServe serves /metrics on addr, matching the teacher's
// metrics.ListenAndServe.
func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())
	return http.ListenAndServe(addr, mux)
}

// ObserveFile records one file's outcome for a phase.
func (m Metrics) ObserveFile(ctx context.Context, phase, outcome string, bytes int64) {
	if m.FilesTotal == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("phase", phase))
	m.FilesTotal.Add(ctx, 1, attrs)
	switch outcome {
	case "success":
		m.FilesSuccess.Add(ctx, 1, attrs)
		m.BytesSuccess.Add(ctx, bytes, attrs)
	case "skipped":
		m.FilesSkipped.Add(ctx, 1, attrs)
	case "failed":
		m.FilesFailed.Add(ctx, 1, attrs)
	}
}
