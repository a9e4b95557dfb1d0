package metrics

import (
	"time"

	"github.com/marmos91/fragments/pkg/errs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FragmentMetrics provides observability for the store facade and the
// conversion engine.
//
// This interface is optional: pass nil to the facade or engine and a no-op
// implementation is used.
//
// Example usage:
//
//	m := metrics.NewFragmentMetrics()
//	facade := store.New(meta, blobs, m)
type FragmentMetrics interface {
	// RecordOperation records a completed storage operation.
	//
	// Parameters:
	//   - operation: Facade operation name (e.g., "WriteBlob", "ListIDs")
	//   - duration: Time taken to complete the operation
	//   - err: Error if the operation failed, nil if successful
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordBytes records payload bytes moved to or from the blob store.
	//
	// Parameters:
	//   - direction: "read" or "write"
	//   - bytes: Payload length
	RecordBytes(direction string, bytes int)

	// RecordConversion records a conversion attempt between two MIME types.
	RecordConversion(source, target string, duration time.Duration, err error)
}

// outcome maps an error to a bounded label value.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := errs.CodeOf(err); code != 0 {
		return code.String()
	}
	return "error"
}

// fragmentMetrics is the Prometheus implementation of FragmentMetrics.
type fragmentMetrics struct {
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	bytesTotal         *prometheus.CounterVec
	conversionsTotal   *prometheus.CounterVec
	conversionDuration *prometheus.HistogramVec
}

// NewFragmentMetrics creates a Prometheus-backed FragmentMetrics registered on
// the global registry.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not
// called).
func NewFragmentMetrics() FragmentMetrics {
	if !IsEnabled() {
		return NewNoopFragmentMetrics()
	}
	return NewFragmentMetricsWith(GetRegistry())
}

// NewFragmentMetricsWith registers the collectors on reg.
func NewFragmentMetricsWith(reg prometheus.Registerer) FragmentMetrics {
	return &fragmentMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fragments_store_operations_total",
				Help: "Total number of storage operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "fragments_store_operation_duration_milliseconds",
				Help: "Duration of storage operations in milliseconds",
				Buckets: []float64{
					0.1, // 100µs
					1,   // 1ms
					10,  // 10ms
					100, // 100ms
					1000,
				},
			},
			[]string{"operation"},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fragments_payload_bytes_total",
				Help: "Total payload bytes read from or written to the blob store",
			},
			[]string{"direction"},
		),
		conversionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fragments_conversions_total",
				Help: "Total number of conversions by source type, target type and outcome",
			},
			[]string{"source", "target", "outcome"},
		),
		conversionDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fragments_conversion_duration_milliseconds",
				Help:    "Duration of conversions in milliseconds",
				Buckets: []float64{1, 10, 100, 1000, 10000},
			},
			[]string{"source", "target"},
		),
	}
}

func (m *fragmentMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(operation, outcome(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(float64(duration.Microseconds()) / 1000)
}

func (m *fragmentMetrics) RecordBytes(direction string, bytes int) {
	m.bytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

func (m *fragmentMetrics) RecordConversion(source, target string, duration time.Duration, err error) {
	m.conversionsTotal.WithLabelValues(source, target, outcome(err)).Inc()
	m.conversionDuration.WithLabelValues(source, target).Observe(float64(duration.Microseconds()) / 1000)
}

// noopFragmentMetrics discards everything.
type noopFragmentMetrics struct{}

// NewNoopFragmentMetrics returns a FragmentMetrics that records nothing.
func NewNoopFragmentMetrics() FragmentMetrics {
	return noopFragmentMetrics{}
}

func (noopFragmentMetrics) RecordOperation(string, time.Duration, error)           {}
func (noopFragmentMetrics) RecordBytes(string, int)                                {}
func (noopFragmentMetrics) RecordConversion(string, string, time.Duration, error) {}
