package router

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"github.com/gogogo1024/campus-desk/internal/common"
	"github.com/gogogo1024/campus-desk/internal/queue"
)

// RegisterQueues registers the admin queue views and the operations that move tickets in them.
func RegisterQueues(h *server.Hertz, d Deps) {
	m := d.Queues

	h.GET(PathAdminQueues, d.admin(func(c context.Context, ctx *app.RequestContext) {
		rows, err := m.StatsAll(c)
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, map[string]any{"offices": rows})
	})...)

	// ?status=Pending,In Review narrows the view; the default is the active set
	h.GET(PathAdminQueue, d.admin(func(c context.Context, ctx *app.RequestContext) {
		statuses := queryList(ctx, "status")
		for _, s := range statuses {
			if !common.IsValidStatus(s) {
				common.WriteDomainError(c, ctx, common.Invalid("status", "unknown status %q", s))
				return
			}
		}
		v, err := m.GetQueue(c, ctx.Param("officeId"), statuses)
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, v)
	})...)

	h.PUT(PathAdminQueueOrder, d.admin(func(c context.Context, ctx *app.RequestContext) {
		var req struct {
			TicketOrders []queue.Order `json:"ticket_orders"`
		}
		if !bindBody(c, ctx, &req, false) {
			return
		}
		ts, err := m.Reorder(c, ctx.Param("officeId"), req.TicketOrders)
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, map[string]any{"tickets": ts})
	})...)

	h.POST(PathAdminQueueRenumber, d.admin(func(c context.Context, ctx *app.RequestContext) {
		res, err := m.Renumber(c, ctx.Param("officeId"))
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, res)
	})...)

	h.PUT(PathAdminTicketDequeue, d.admin(func(c context.Context, ctx *app.RequestContext) {
		p, ok := principal(c, ctx)
		if !ok {
			return
		}
		t, err := m.RemoveFromQueue(c, ctx.Param("id"), p.UserID)
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, t)
	})...)

	h.PUT(PathAdminTicketEnqueue, d.admin(func(c context.Context, ctx *app.RequestContext) {
		p, ok := principal(c, ctx)
		if !ok {
			return
		}
		t, err := m.Enqueue(c, ctx.Param("id"), p.UserID)
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, t)
	})...)
}
