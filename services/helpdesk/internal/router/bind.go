package router

import (
	"context"
	"strconv"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/gogogo1024/campus-desk/internal/auth"
	"github.com/gogogo1024/campus-desk/internal/common"
)

// bindBody decodes the JSON body into out and answers 400 itself when that fails.
// An empty body is accepted when optional is set.
func bindBody(c context.Context, ctx *app.RequestContext, out any, optional bool) bool {
	if optional && len(ctx.Request.Body()) == 0 {
		return true
	}
	if err := ctx.BindJSON(out); err != nil {
		common.WriteError(c, ctx, 0, common.ErrCodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// principal is set by the auth middleware, so a miss is a wiring bug.
func principal(c context.Context, ctx *app.RequestContext) (auth.Principal, bool) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		common.WriteError(c, ctx, 0, common.ErrCodeUnauthorized, "not authenticated")
	}
	return p, ok
}

func queryInt(ctx *app.RequestContext, name string) (int, error) {
	v := strings.TrimSpace(ctx.Query(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, common.Invalid(name, "must be an integer")
	}
	return n, nil
}

// queryList splits a comma separated query value, dropping blanks.
func queryList(ctx *app.RequestContext, name string) []string {
	var out []string
	for _, p := range strings.Split(ctx.Query(name), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
