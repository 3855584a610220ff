package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"github.com/gogogo1024/campus-desk/internal/auth"
	"github.com/gogogo1024/campus-desk/internal/chatbot"
	"github.com/gogogo1024/campus-desk/internal/helpdesk"
	"github.com/gogogo1024/campus-desk/internal/kb"
	"github.com/gogogo1024/campus-desk/internal/queue"
	"github.com/gogogo1024/campus-desk/internal/refdata"
)

// Check is one named readiness probe.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Deps aggregates dependencies for route registration.
type Deps struct {
	Tickets *helpdesk.Service
	Queues  *queue.Manager
	Ref     *refdata.Store
	FAQ     *kb.Base
	Bot     *chatbot.Bot

	// KBInfo describes the FAQ backend; nil means the in-memory index.
	KBInfo func(ctx context.Context) (map[string]any, error)

	// Auth resolves the caller; it must set the principal read by auth.FromContext.
	Auth   app.HandlerFunc
	Checks []Check
}

func (d Deps) user(h app.HandlerFunc) []app.HandlerFunc {
	return []app.HandlerFunc{d.Auth, h}
}

func (d Deps) admin(h app.HandlerFunc) []app.HandlerFunc {
	return []app.HandlerFunc{d.Auth, auth.RequireRole(auth.RoleAdmin), h}
}

// RegisterAll wires every route group.
func RegisterAll(h *server.Hertz, d Deps) {
	RegisterHealth(h, d.Checks)
	RegisterTickets(h, d)
	RegisterQueues(h, d)
	RegisterRefData(h, d)
	RegisterFAQ(h, d)
	RegisterChat(h, d)
}
