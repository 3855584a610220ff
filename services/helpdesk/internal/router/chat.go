package router

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"github.com/gogogo1024/campus-desk/internal/chatbot"
	"github.com/gogogo1024/campus-desk/internal/common"
)

func RegisterChat(h *server.Hertz, d Deps) {
	h.POST(PathChat, d.user(func(c context.Context, ctx *app.RequestContext) {
		p, ok := principal(c, ctx)
		if !ok {
			return
		}
		var msg chatbot.Message
		if !bindBody(c, ctx, &msg, false) {
			return
		}
		r, err := d.Bot.Handle(c, p, msg)
		if err != nil {
			common.WriteDomainError(c, ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, r)
	})...)
}
