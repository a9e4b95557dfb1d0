// Package metrics provides Prometheus metrics collection for the fragment
// service.
//
// All metrics are optional: until InitRegistry runs, constructors return
// no-op implementations, so the store facade and HTTP adapter run the same
// code with or without metrics.
//
// Usage:
//
//	metrics.InitRegistry()
//	_ = metrics.SetBuildInfo(version, commit)
//
//	storeMetrics := metrics.NewFragmentMetrics()
//	httpMetrics := metrics.NewHTTPMetrics()
//
//	// nil means no metrics
//	facade := store.New(meta, blobs, nil)
package metrics

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is written once by InitRegistry and read everywhere else
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the global registry, preloaded with the Go runtime
// and process collectors. Later calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = newRegistry()
	})
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// GetRegistry returns the global registry, or nil while metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has run.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// SetBuildInfo publishes fragments_build_info{version,commit,goversion} = 1.
// Does nothing while metrics are disabled.
func SetBuildInfo(version, commit string) error {
	reg := GetRegistry()
	if reg == nil {
		return nil
	}
	return registerBuildInfo(reg, version, commit)
}

func registerBuildInfo(reg prometheus.Registerer, version, commit string) error {
	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fragments_build_info",
		Help: "Build information of the running fragments binary",
		ConstLabels: prometheus.Labels{
			"version":   version,
			"commit":    commit,
			"goversion": runtime.Version(),
		},
	})
	info.Set(1)
	return reg.Register(info)
}
