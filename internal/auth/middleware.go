package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/gogogo1024/campus-desk/internal/common"
)

const principalKey = "principal"

// RequireAuth resolves the bearer token into a Principal. With dev set, every request runs as
// dev and tokens are ignored.
func RequireAuth(m *JWTManager, dev *Principal) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		if dev != nil {
			ctx.Set(principalKey, *dev)
			ctx.Next(c)
			return
		}
		h := string(ctx.GetHeader("Authorization"))
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			common.WriteError(c, ctx, 0, common.ErrCodeUnauthorized, "missing bearer token")
			ctx.Abort()
			return
		}
		claims, err := m.ValidateToken(strings.TrimSpace(raw))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, ErrExpiredToken) {
				msg = "token has expired"
			}
			common.WriteError(c, ctx, 0, common.ErrCodeUnauthorized, msg)
			ctx.Abort()
			return
		}
		ctx.Set(principalKey, claims.Principal())
		ctx.Next(c)
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(role string) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		p, ok := FromContext(ctx)
		if !ok {
			common.WriteError(c, ctx, 0, common.ErrCodeUnauthorized, "not authenticated")
			ctx.Abort()
			return
		}
		if p.Role != role {
			common.WriteError(c, ctx, 0, common.ErrCodeForbidden, role+" role required")
			ctx.Abort()
			return
		}
		ctx.Next(c)
	}
}

func FromContext(ctx *app.RequestContext) (Principal, bool) {
	v, ok := ctx.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
