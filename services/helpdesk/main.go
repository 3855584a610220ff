package main

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/cloudwego/hertz/pkg/app/server"
	prom "github.com/hertz-contrib/monitor-prometheus"
	"go.uber.org/zap"

	"github.com/gogogo1024/campus-desk/common/mtl"
	"github.com/gogogo1024/campus-desk/internal/common"
	"github.com/gogogo1024/campus-desk/services/helpdesk/internal/router"
)

// the prometheus tracer registers /metrics on the default mux, so only the first server gets it
var promOnce sync.Once

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	h, err := BuildServer(cfg)
	if err != nil {
		common.L().Fatal("build server", zap.Error(err))
	}
	deregister, err := mtl.Register(common.ProjectName, cfg.HTTPAddr, cfg.MetricsAddr, cfg.RegistryAddr)
	if err != nil {
		common.L().Warn("service registration failed", zap.Error(err))
	} else {
		h.OnShutdown = append(h.OnShutdown, func(context.Context) { deregister() })
	}
	if cfg.Tracing {
		shutdown := mtl.InitTracing(common.ProjectName, cfg.Env)
		h.OnShutdown = append(h.OnShutdown, func(ctx context.Context) { _ = shutdown(ctx) })
	}
	common.L().Info("campus-desk listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Env))
	h.Spin()
}

// BuildServer assembles the Hertz server with all routes for reuse in tests.
func BuildServer(cfg *common.Config) (*server.Hertz, error) {
	common.InitLogger(cfg.LogLevel)
	common.InitHertzLogger(cfg.LogLevel)

	comps, err := buildComponents(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	var h *server.Hertz
	if cfg.MetricsAddr != "" && os.Getenv("PROM_DISABLE") != "1" {
		promOnce.Do(func() {
			h = server.Default(
				server.WithHostPorts(cfg.HTTPAddr),
				server.WithTracer(prom.NewServerTracer(cfg.MetricsAddr, "/metrics",
					prom.WithEnableGoCollector(true),
					prom.WithRegistry(mtl.InitMetrics()),
				)),
			)
		})
	}
	if h == nil {
		h = server.Default(server.WithHostPorts(cfg.HTTPAddr))
	}
	for _, m := range common.Middlewares() {
		h.Use(m)
	}
	router.RegisterAll(h, comps.deps)
	h.OnShutdown = append(h.OnShutdown, comps.close)
	return h, nil
}
