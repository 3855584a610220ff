package router

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"github.com/gogogo1024/campus-desk/internal/common"
	"github.com/gogogo1024/campus-desk/internal/kb"
)

const maxFAQResults = 50

// RegisterFAQ registers FAQ search and the admin FAQ maintenance routes.
func RegisterFAQ(h *server.Hertz, d Deps) {
	faq := d.FAQ

	h.GET(PathFAQSearch, d.user(func(c context.Context, ctx *app.RequestContext) {
		q := strings.TrimSpace(ctx.Query("q"))
		limit, err := queryInt(ctx, "limit")
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		if limit <= 0 || limit > maxFAQResults {
			limit = 10
		}
		items, total, err := faq.Search(c, q, limit)
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, map[string]any{"items": items, "total": total, "query": q})
	})...)

	h.GET(PathAdminKBInfo, d.admin(func(c context.Context, ctx *app.RequestContext) {
		if d.KBInfo == nil {
			ctx.JSON(http.StatusOK, map[string]any{"backend": "memory"})
			return
		}
		info, err := d.KBInfo(c)
		if err != nil {
			common.WriteError(c, ctx, 0, common.ErrCodeKBUnavailable, "kb backend unavailable")
			return
		}
		info["backend"] = "es"
		ctx.JSON(http.StatusOK, info)
	})...)

	h.POST(PathAdminFAQ, d.admin(func(c context.Context, ctx *app.RequestContext) {
		var e kb.Entry
		if !bindBody(c, ctx, &e, false) {
			return
		}
		if err := faq.Put(c, &e); err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusCreated, e)
	})...)

	h.GET(PathAdminFAQID, d.admin(func(c context.Context, ctx *app.RequestContext) {
		e, err := faq.Get(c, ctx.Param("id"))
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, e)
	})...)

	h.PUT(PathAdminFAQID, d.admin(func(c context.Context, ctx *app.RequestContext) {
		var e kb.Entry
		if !bindBody(c, ctx, &e, false) {
			return
		}
		if err := faq.Replace(c, ctx.Param("id"), &e); err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, e)
	})...)

	h.DELETE(PathAdminFAQID, d.admin(func(c context.Context, ctx *app.RequestContext) {
		if err := faq.Delete(c, ctx.Param("id")); err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.SetStatusCode(http.StatusNoContent)
	})...)
}
