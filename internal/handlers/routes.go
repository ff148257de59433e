package handlers

import (
	"github.com/labstack/echo/v4"
)

// Handlers groups every API handler.
type Handlers struct {
	Setup     *SetupHandler
	Dashboard *DashboardHandler
	Assistant *AssistantHandler
}

// Register mounts the API under /api/v1. Everything but /setup answers with the setup
// guidance until the ledger is configured.
func Register(e *echo.Echo, h Handlers) {
	api := e.Group("/api/v1")
	api.GET("/setup", h.Setup.Status)

	live := api.Group("", h.Setup.RequireLedger())
	live.GET("/dashboard", h.Dashboard.Summary)
	live.GET("/dashboard/roster", h.Dashboard.Roster)
	live.GET("/dashboard/daily", h.Dashboard.Daily)
	live.GET("/dashboard/monthly", h.Dashboard.Monthly)
	live.GET("/dashboard/stream", h.Dashboard.Stream)
	live.GET("/students/:id", h.Dashboard.Student)
	live.POST("/students/:id/analysis", h.Assistant.Analysis)
	live.POST("/students/:id/follow-up", h.Assistant.FollowUp)
}
