package router

import (
	"context"
	"net/http"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"github.com/gogogo1024/campus-desk/internal/observability"
)

const readyTimeout = 400 * time.Millisecond

// RegisterHealth registers /health, /ready and the domain metrics snapshot. Every check runs
// on /ready; one failure turns the answer into 503 degraded.
func RegisterHealth(h *server.Hertz, checks []Check) {
	h.GET(PathHealth, func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(http.StatusOK, map[string]any{"status": "ok"})
	})
	h.GET(PathReady, func(c context.Context, ctx *app.RequestContext) {
		pingCtx, cancel := context.WithTimeout(c, readyTimeout)
		defer cancel()
		status, code := "ready", http.StatusOK
		results := make(map[string]string, len(checks))
		for _, ch := range checks {
			if err := ch.Ping(pingCtx); err != nil {
				results[ch.Name] = err.Error()
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			results[ch.Name] = "ok"
		}
		ctx.JSON(code, map[string]any{"status": status, "checks": results})
	})
	// domain metrics snapshot under separate path to avoid polluting standard prometheus namespace
	h.GET(PathDomainMetrics, func(c context.Context, ctx *app.RequestContext) {
		ctx.Response.Header.Set("Content-Type", "text/plain; charset=utf-8")
		ctx.Write([]byte(observability.Snapshot()))
	})
}
