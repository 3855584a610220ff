package mtl

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/gogogo1024/campus-desk/internal/observability"
)

var (
	Registry *prometheus.Registry
	regOnce  sync.Once
)

// InitMetrics creates the process-wide prometheus Registry with the process collector and the
// queue collectors. The HTTP server tracer serves it and adds the Go runtime collector.
func InitMetrics() *prometheus.Registry {
	regOnce.Do(func() {
		Registry = prometheus.NewRegistry()
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		observability.RegisterCollectors(Registry)
	})
	return Registry
}
