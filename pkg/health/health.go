// Package health provides health check endpoints for the marigold service.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/marigold/pkg/dashboard"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const checkTimeout = 5 * time.Second

// Pinger is anything whose connectivity can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ViewSource returns the latest dashboard views.
type ViewSource interface {
	Views() *dashboard.Views
}

// CheckResult represents the result of a health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Response represents a health check response
type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

// Checker provides health check functionality. A nil ledger means setup mode; a nil
// redis means the distributed guard is disabled and is not checked.
type Checker struct {
	ledger    Pinger
	redis     Pinger
	views     ViewSource
	version   string
	startTime time.Time
	ready     atomic.Bool
}

// NewChecker creates a new health checker
func NewChecker(ledger Pinger, redis Pinger, views ViewSource, version string) *Checker {
	return &Checker{
		ledger:    ledger,
		redis:     redis,
		views:     views,
		version:   version,
		startTime: time.Now(),
	}
}

// SetReady marks the service as ready to receive traffic
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// IsReady returns whether the service is ready
func (c *Checker) IsReady() bool {
	return c.ready.Load()
}

// RegisterRoutes registers health check endpoints
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/health", c.HealthHandler)
	e.GET("/api/v1/health/live", c.LivenessHandler)
	e.GET("/api/v1/health/ready", c.ReadinessHandler)
}

// LivenessHandler answers while the process is running.
func (c *Checker) LivenessHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, Response{
		Status:     StatusHealthy,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		ReportedAt: time.Now(),
	})
}

// ReadinessHandler answers 200 once started and no check is unhealthy.
func (c *Checker) ReadinessHandler(ctx echo.Context) error {
	if !c.IsReady() {
		return ctx.JSON(http.StatusServiceUnavailable, Response{
			Status:     StatusUnhealthy,
			Version:    c.version,
			ReportedAt: time.Now(),
			Checks: map[string]CheckResult{
				"startup": {Status: StatusUnhealthy, Message: "service is still starting up"},
			},
		})
	}

	return c.HealthHandler(ctx)
}

// HealthHandler returns a detailed health check handler
func (c *Checker) HealthHandler(ctx echo.Context) error {
	checks := c.RunChecks(ctx.Request().Context())
	overallStatus := Overall(checks)

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return ctx.JSON(statusCode, Response{
		Status:     overallStatus,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     checks,
		ReportedAt: time.Now(),
	})
}

// RunChecks pings every configured dependency.
func (c *Checker) RunChecks(ctx context.Context) map[string]CheckResult {
	checks := map[string]CheckResult{
		"ledger":    c.checkLedger(ctx),
		"dashboard": c.checkDashboard(),
	}
	if c.redis != nil {
		checks["redis"] = ping(ctx, c.redis)
	}
	return checks
}

// Overall is the worst status among checks.
func Overall(checks map[string]CheckResult) Status {
	status := StatusHealthy
	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

func (c *Checker) checkLedger(ctx context.Context) CheckResult {
	if c.ledger == nil {
		return CheckResult{Status: StatusDegraded, Message: "ledger not configured (setup mode)"}
	}
	return ping(ctx, c.ledger)
}

func (c *Checker) checkDashboard() CheckResult {
	if c.views == nil {
		return CheckResult{Status: StatusDegraded, Message: "dashboard not running"}
	}

	views := c.views.Views()
	switch views.Status {
	case dashboard.StatusReady:
		return CheckResult{Status: StatusHealthy}
	case dashboard.StatusLoading:
		return CheckResult{Status: StatusDegraded, Message: "waiting for the first ledger snapshots"}
	default:
		return CheckResult{Status: StatusDegraded, Message: fmt.Sprintf("%d ledger subscriptions failing", len(views.Errors))}
	}
}

func ping(ctx context.Context, p Pinger) CheckResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: err.Error(),
			Latency: time.Since(start).String(),
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Latency: time.Since(start).String(),
	}
}
