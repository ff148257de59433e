package handlers

import (
	"errors"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/marigold/pkg/context"
	"github.com/Ramsey-B/marigold/pkg/roster"
)

// DashboardHandler serves the live dashboard views
type DashboardHandler struct {
	dashboard Dashboard
	presenter *Presenter
	table     *roster.Table
	logger    ectologger.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboard Dashboard, presenter *Presenter, table *roster.Table, logger ectologger.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboard: dashboard,
		presenter: presenter,
		table:     table,
		logger:    logger,
		closing:   make(chan struct{}),
	}
}

// CloseStreams ends every open and future stream. The server calls it when it starts
// shutting down, since request contexts stay live until the handlers return.
func (h *DashboardHandler) CloseStreams() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// Summary returns the KPIs and view status
// GET /api/v1/dashboard
func (h *DashboardHandler) Summary(c echo.Context) error {
	return SuccessResponse(c, h.presenter.Dashboard(h.dashboard.Views()))
}

// Roster returns the filtered and sorted student table
// GET /api/v1/dashboard/roster?q=&sort=&order=
func (h *DashboardHandler) Roster(c echo.Context) error {
	query, err := roster.ParseQuery(c.QueryParam("q"), c.QueryParam("sort"), c.QueryParam("order"))
	if err != nil {
		if errors.Is(err, roster.ErrUnknownColumn) || errors.Is(err, roster.ErrUnknownOrder) {
			return BadRequest(err.Error())
		}
		return err
	}

	views := h.dashboard.Views()
	students := h.table.Rows(views.Students, query)
	rows := make([]StudentRow, 0, len(students))
	for _, student := range students {
		rows = append(rows, h.presenter.Student(student))
	}

	return SuccessResponse(c, RosterResponse{
		Status: views.Status,
		Query:  RosterQuery{Filter: query.Filter, Sort: string(query.Sort), Order: string(query.Order)},
		Count:  len(rows),
		Rows:   rows,
	})
}

// Daily returns the reference day's payments
// GET /api/v1/dashboard/daily
func (h *DashboardHandler) Daily(c echo.Context) error {
	return SuccessResponse(c, h.presenter.Daily(h.dashboard.Views()))
}

// Monthly returns the month-to-date series
// GET /api/v1/dashboard/monthly
func (h *DashboardHandler) Monthly(c echo.Context) error {
	return SuccessResponse(c, h.presenter.Monthly(h.dashboard.Views()))
}

// Student returns one student's detail panel
// GET /api/v1/students/:id
func (h *DashboardHandler) Student(c echo.Context) error {
	id, err := StudentID(c)
	if err != nil {
		return err
	}
	c.SetRequest(c.Request().WithContext(context.SetStudentID(c.Request().Context(), id)))

	detail, ok := h.dashboard.Views().Detail(id)
	if !ok {
		return NotFound("student not found")
	}
	return SuccessResponse(c, h.presenter.Detail(detail))
}
