package mtl

import (
	"context"

	"github.com/cloudwego/kitex/pkg/klog"
	provider "github.com/kitex-contrib/obs-opentelemetry/provider"

	"github.com/gogogo1024/campus-desk/internal/observability"
)

// InitTracing installs the OTLP exporting provider (metrics disabled because the prometheus
// registry covers them). In the dev env spans stay in process instead.
func InitTracing(serviceName, env string) func(context.Context) error {
	if env == "dev" {
		closer, err := observability.InitTracing(serviceName)
		if err != nil {
			klog.Warnf("local tracing init failed: %v", err)
			return func(context.Context) error { return nil }
		}
		return closer
	}
	p := provider.NewOpenTelemetryProvider(
		provider.WithServiceName(serviceName),
		provider.WithInsecure(),
		provider.WithEnableMetrics(false),
	)
	klog.Infof("tracing initialized service=%s exporter=otlp", serviceName)
	return p.Shutdown
}
