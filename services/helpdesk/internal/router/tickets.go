package router

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"github.com/gogogo1024/campus-desk/internal/common"
	"github.com/gogogo1024/campus-desk/internal/helpdesk"
)

// RegisterTickets registers the ticket routes students and admins share, plus the admin status
// change and statistics.
func RegisterTickets(h *server.Hertz, d Deps) {
	svc := d.Tickets

	h.POST(PathTickets, d.user(func(c context.Context, ctx *app.RequestContext) {
		p, ok := principal(c, ctx)
		if !ok {
			return
		}
		var in helpdesk.CreateInput
		if !bindBody(c, ctx, &in, false) {
			return
		}
		t, _, err := svc.Create(c, p, in)
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusCreated, t)
	})...)

	h.GET(PathTickets, d.user(func(c context.Context, ctx *app.RequestContext) {
		p, ok := principal(c, ctx)
		if !ok {
			return
		}
		q := helpdesk.ListQuery{
			CreatedBy: ctx.Query("created_by"),
			Status:    ctx.Query("status"),
			Category:  ctx.Query("category"),
			Priority:  ctx.Query("priority"),
			Search:    ctx.Query("search"),
			Sort:      ctx.Query("sort"),
			Order:     ctx.Query("order"),
		}
		var err error
		if q.Page, err = queryInt(ctx, "page"); err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		if q.Limit, err = queryInt(ctx, "limit"); err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		page, err := svc.List(c, p, q)
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, page)
	})...)

	h.GET(PathTicketID, d.user(func(c context.Context, ctx *app.RequestContext) {
		p, ok := principal(c, ctx)
		if !ok {
			return
		}
		t, err := svc.Get(c, p, ctx.Param("id"))
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, t)
	})...)

	h.GET(PathTicketEvents, d.user(func(c context.Context, ctx *app.RequestContext) {
		p, ok := principal(c, ctx)
		if !ok {
			return
		}
		evs, err := svc.Events(c, p, ctx.Param("id"))
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, evs)
	})...)

	h.POST(PathTicketComments, d.user(func(c context.Context, ctx *app.RequestContext) {
		p, ok := principal(c, ctx)
		if !ok {
			return
		}
		var req struct {
			Comment string `json:"comment"`
		}
		if !bindBody(c, ctx, &req, false) {
			return
		}
		ev, err := svc.AddComment(c, p, ctx.Param("id"), req.Comment)
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusCreated, ev)
	})...)

	h.PUT(PathTicketCancel, d.user(func(c context.Context, ctx *app.RequestContext) {
		p, ok := principal(c, ctx)
		if !ok {
			return
		}
		var req struct {
			Reason string `json:"reason"`
		}
		if !bindBody(c, ctx, &req, true) {
			return
		}
		t, err := svc.Cancel(c, p, ctx.Param("id"), req.Reason)
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, t)
	})...)

	h.PUT(PathAdminTicketStatus, d.admin(func(c context.Context, ctx *app.RequestContext) {
		p, ok := principal(c, ctx)
		if !ok {
			return
		}
		var req struct {
			Status  string `json:"status"`
			Remarks string `json:"remarks"`
		}
		if !bindBody(c, ctx, &req, false) {
			return
		}
		t, err := svc.UpdateStatus(c, p, ctx.Param("id"), req.Status, req.Remarks)
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, t)
	})...)

	h.GET(PathAdminStatistics, d.admin(func(c context.Context, ctx *app.RequestContext) {
		st, err := svc.Statistics(c)
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, st)
	})...)
}
