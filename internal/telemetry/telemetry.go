// Package telemetry records session and transcription metrics with
// OpenTelemetry.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rbright/askvoice/internal/failure"
	"github.com/rbright/askvoice/internal/fsm"
	"github.com/rbright/askvoice/internal/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "github.com/rbright/askvoice"

// Recorder owns the askvoice instruments. It implements session.Observer.
type Recorder struct {
	transitions metric.Int64Counter
	failures    metric.Int64Counter
	dispatches  metric.Int64Counter
	latency     metric.Float64Histogram
	elapsed     metric.Int64Histogram

	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader
}

// New builds a Recorder on an in-process meter provider with a manual
// reader; Snapshot reads it back.
func New() (*Recorder, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", "askvoice"))),
	)
	r, err := newRecorder(provider.Meter(meterName))
	if err != nil {
		return nil, err
	}
	r.provider = provider
	r.reader = reader
	return r, nil
}

// Noop returns a Recorder whose instruments discard every measurement.
func Noop() *Recorder {
	r, _ := newRecorder(noop.NewMeterProvider().Meter(meterName))
	return r
}

func newRecorder(meter metric.Meter) (*Recorder, error) {
	var errs []error
	transitions, err := meter.Int64Counter("askvoice.session.transitions",
		metric.WithDescription("Session state transitions by target state"))
	errs = append(errs, err)
	failures, err := meter.Int64Counter("askvoice.session.failures",
		metric.WithDescription("Session and dispatch failures by kind"))
	errs = append(errs, err)
	dispatches, err := meter.Int64Counter("askvoice.transcription.requests",
		metric.WithDescription("Transcription dispatches by outcome"))
	errs = append(errs, err)
	latency, err := meter.Float64Histogram("askvoice.transcription.duration",
		metric.WithDescription("Transcription dispatch latency"), metric.WithUnit("s"))
	errs = append(errs, err)
	elapsed, err := meter.Int64Histogram("askvoice.recording.elapsed",
		metric.WithDescription("Recorded seconds per stopped session"), metric.WithUnit("s"))
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}

	return &Recorder{
		transitions: transitions,
		failures:    failures,
		dispatches:  dispatches,
		latency:     latency,
		elapsed:     elapsed,
	}, nil
}

// Observe implements session.Observer.
func (r *Recorder) Observe(tr session.Transition) {
	ctx := context.Background()
	r.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", string(tr.To))))
	if tr.To == fsm.StateFailed {
		r.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kindLabel(tr.Err))))
	}
}

// RecordArtifact records the recorded duration of a stopped session.
func (r *Recorder) RecordArtifact(artifact session.Artifact) {
	r.elapsed.Record(context.Background(), int64(artifact.Elapsed))
}

// RecordDispatch records one dispatch outcome and its latency.
func (r *Recorder) RecordDispatch(took time.Duration, err error) {
	ctx := context.Background()
	outcome := "ok"
	if err != nil {
		outcome = "error"
		r.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kindLabel(err))))
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	r.dispatches.Add(ctx, 1, attrs)
	r.latency.Record(ctx, took.Seconds(), attrs)
}

// Snapshot collects current sums keyed by "instrument{attr=value}". Histograms
// report their sample count. A Noop recorder returns nil.
func (r *Recorder) Snapshot(ctx context.Context) (map[string]int64, error) {
	if r.reader == nil {
		return nil, nil
	}
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	out := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[seriesKey(m.Name, dp.Attributes)] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out[seriesKey(m.Name, dp.Attributes)] += int64(dp.Count)
				}
			case metricdata.Histogram[int64]:
				for _, dp := range data.DataPoints {
					out[seriesKey(m.Name, dp.Attributes)] += int64(dp.Count)
				}
			}
		}
	}
	return out, nil
}

// Shutdown flushes and stops the meter provider.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r.provider == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}

func kindLabel(err error) string {
	if kind := failure.KindOf(err); kind != "" {
		return string(kind)
	}
	return "untagged"
}

func seriesKey(name string, set attribute.Set) string {
	attrs := set.ToSlice()
	if len(attrs) == 0 {
		return name
	}
	parts := make([]string, 0, len(attrs))
	for _, kv := range attrs {
		parts = append(parts, string(kv.Key)+"="+kv.Value.Emit())
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}
