package common

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	kerrors "github.com/cloudwego/kitex/pkg/kerrors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Middlewares returns the standard middleware chain (recovery, request id, access log, project headers).
func Middlewares() []app.HandlerFunc {
	return []app.HandlerFunc{
		recoveryMiddleware(),
		requestIDMiddleware(),
		accessLogMiddleware(),
		projectHeaderMiddleware(),
	}
}

func recoveryMiddleware() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		defer func() {
			if r := recover(); r != nil {
				if Logger != nil {
					Logger.Error("panic recovered", zap.Any("err", r), zap.String("path", string(ctx.Path())))
				}
				WriteError(c, ctx, 500, ErrCodeInternal, "internal server error")
				ctx.Abort()
			}
		}()
		ctx.Next(c)
	}
}

func requestIDMiddleware() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		id := string(ctx.GetHeader("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Set(RequestIDKey, id)
		ctx.Response.Header.Set("X-Request-ID", id)
		ctx.Next(c)
	}
}

func accessLogMiddleware() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)
		if Logger == nil {
			return
		}
		fields := []zap.Field{
			zap.String("method", string(ctx.Method())),
			zap.String("path", string(ctx.Path())),
			zap.Int("status", ctx.Response.StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", RequestID(ctx)),
		}
		if v, ok := ctx.Get(KitexErrorKey); ok {
			if be, ok := v.(kerrors.BizStatusErrorIface); ok {
				fields = append(fields, zap.Int32("biz_code", be.BizStatusCode()), zap.String("biz_msg", be.BizMessage()))
			}
		}
		Logger.Info("access", fields...)
	}
}

func projectHeaderMiddleware() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		ctx.Response.Header.Set("X-CampusDesk-Project", ProjectName)
		ctx.Response.Header.Set("X-CampusDesk-Version", ProjectVersion)
		ctx.Next(c)
	}
}
