package kafka

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Ramsey-B/marigold/pkg/dashboard"
)

// EventDashboardUpdated is published after every recompute.
const EventDashboardUpdated = "dashboard.updated"

// DashboardEvent is a compact summary of one published view.
type DashboardEvent struct {
	Type          string           `json:"type"`
	Version       uint64           `json:"version"`
	Status        dashboard.Status `json:"status"`
	ReferenceDate string           `json:"reference_date"`

	TotalPaid          decimal.Decimal `json:"total_paid"`
	TotalDue           decimal.Decimal `json:"total_due"`
	StudentCount       int             `json:"student_count"`
	StudentsWithDue    int             `json:"students_with_due"`
	StudentsPaidInFull int             `json:"students_paid_in_full"`
	DailyTotal         decimal.Decimal `json:"daily_total"`
	PaymentCount       int             `json:"payment_count"`
	ErrorCount         int             `json:"error_count"`

	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// NewDashboardEvent summarizes views.
func NewDashboardEvent(views *dashboard.Views) *DashboardEvent {
	return &DashboardEvent{
		Type:               EventDashboardUpdated,
		Version:            views.Version,
		Status:             views.Status,
		ReferenceDate:      views.Daily.Date.String(),
		TotalPaid:          views.Totals.TotalPaid,
		TotalDue:           views.Totals.TotalDue,
		StudentCount:       views.Totals.StudentCount,
		StudentsWithDue:    views.Totals.StudentsWithDue,
		StudentsPaidInFull: views.Totals.StudentsPaidInFull,
		DailyTotal:         views.Daily.Total,
		PaymentCount:       len(views.Payments),
		ErrorCount:         len(views.Errors),
		Timestamp:          views.ComputedAt.UTC(),
	}
}

// Forward publishes an event for every view received until updates closes or ctx ends.
// Publish failures are logged and skipped; the next view supersedes the lost one.
func (p *Producer) Forward(ctx context.Context, updates <-chan *dashboard.Views) {
	for {
		select {
		case <-ctx.Done():
			return
		case views, ok := <-updates:
			if !ok {
				return
			}
			_ = p.Publish(ctx, NewDashboardEvent(views))
		}
	}
}
