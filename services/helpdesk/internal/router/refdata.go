package router

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"github.com/gogogo1024/campus-desk/internal/common"
	"github.com/gogogo1024/campus-desk/internal/refdata"
)

type nameRequest struct {
	Name string `json:"name"`
}

// RegisterRefData registers the reference data reads for everyone and the admin CRUD.
func RegisterRefData(h *server.Hertz, d Deps) {
	ref, svc := d.Ref, d.Tickets

	h.GET(PathCategories, d.user(func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(http.StatusOK, map[string]any{"categories": ref.Categories()})
	})...)
	h.GET(PathCourses, d.user(func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(http.StatusOK, map[string]any{"courses": ref.Courses()})
	})...)
	h.GET(PathOffices, d.user(func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(http.StatusOK, map[string]any{"offices": ref.Offices()})
	})...)

	// categories
	h.POST(PathAdminCategories, d.admin(func(c context.Context, ctx *app.RequestContext) {
		var req nameRequest
		if !bindBody(c, ctx, &req, false) {
			return
		}
		if err := ref.AddCategory(req.Name); err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusCreated, map[string]any{"categories": ref.Categories()})
	})...)
	h.PUT(PathAdminCategory, d.admin(func(c context.Context, ctx *app.RequestContext) {
		var req nameRequest
		if !bindBody(c, ctx, &req, false) {
			return
		}
		n, err := svc.RenameCategory(c, ctx.Param("name"), req.Name)
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, map[string]any{"categories": ref.Categories(), "tickets_updated": n})
	})...)
	h.DELETE(PathAdminCategory, d.admin(func(c context.Context, ctx *app.RequestContext) {
		if err := svc.DeleteCategory(c, ctx.Param("name")); err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, map[string]any{"categories": ref.Categories()})
	})...)

	// courses
	h.POST(PathAdminCourses, d.admin(func(c context.Context, ctx *app.RequestContext) {
		var req nameRequest
		if !bindBody(c, ctx, &req, false) {
			return
		}
		if err := ref.AddCourse(req.Name); err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusCreated, map[string]any{"courses": ref.Courses()})
	})...)
	h.PUT(PathAdminCourse, d.admin(func(c context.Context, ctx *app.RequestContext) {
		var req nameRequest
		if !bindBody(c, ctx, &req, false) {
			return
		}
		if err := ref.RenameCourse(ctx.Param("name"), req.Name); err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, map[string]any{"courses": ref.Courses()})
	})...)
	h.DELETE(PathAdminCourse, d.admin(func(c context.Context, ctx *app.RequestContext) {
		if err := svc.DeleteCourse(c, ctx.Param("name")); err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, map[string]any{"courses": ref.Courses()})
	})...)

	// offices
	h.POST(PathAdminOffices, d.admin(func(c context.Context, ctx *app.RequestContext) {
		var in refdata.OfficeInput
		if !bindBody(c, ctx, &in, false) {
			return
		}
		o, err := ref.CreateOffice(in)
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusCreated, o)
	})...)
	h.PUT(PathAdminOffice, d.admin(func(c context.Context, ctx *app.RequestContext) {
		var in refdata.OfficeInput
		if !bindBody(c, ctx, &in, false) {
			return
		}
		o, err := ref.UpdateOffice(ctx.Param("id"), in)
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, o)
	})...)
	h.DELETE(PathAdminOffice, d.admin(func(c context.Context, ctx *app.RequestContext) {
		res, err := svc.DeleteOffice(c, ctx.Param("id"))
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, res)
	})...)

	// category -> office mapping
	h.GET(PathAdminMapping, d.admin(func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(http.StatusOK, map[string]any{"mapping": ref.Mapping(), "dangling": ref.DanglingMappings()})
	})...)
	h.PUT(PathAdminMapping, d.admin(func(c context.Context, ctx *app.RequestContext) {
		var req struct {
			Mapping []refdata.MappingEntry `json:"mapping"`
		}
		if !bindBody(c, ctx, &req, false) {
			return
		}
		saved, err := ref.SetMapping(req.Mapping)
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, map[string]any{"mapping": saved})
	})...)
}
