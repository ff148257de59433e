package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Ramsey-B/marigold/pkg/aggregation"
	"github.com/Ramsey-B/marigold/pkg/dashboard"
	"github.com/Ramsey-B/marigold/pkg/models"
	"github.com/Ramsey-B/marigold/pkg/money"
)

// Amount is a number with its display label.
type Amount struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

type DashboardResponse struct {
	Status             dashboard.Status        `json:"status"`
	Errors             []dashboard.SourceError `json:"errors"`
	Version            uint64                  `json:"version"`
	ReferenceDate      string                  `json:"referenceDate"`
	ComputedAt         time.Time               `json:"computedAt"`
	Currency           string                  `json:"currency"`
	TotalPaid          Amount                  `json:"totalPaid"`
	TotalDue           Amount                  `json:"totalDue"`
	StudentCount       int                     `json:"studentCount"`
	StudentsWithDue    int                     `json:"studentsWithDue"`
	StudentsPaidInFull int                     `json:"studentsPaidInFull"`
	DailyTotal         Amount                  `json:"dailyTotal"`
}

type StudentRow struct {
	ID        string `json:"id"`
	FullName  string `json:"fullName"`
	Phone     string `json:"phone"`
	TotalPaid Amount `json:"totalPaid"`
	TotalDue  Amount `json:"totalDue"`
	Status    string `json:"status"`
}

type RosterResponse struct {
	Status dashboard.Status `json:"status"`
	Query  RosterQuery      `json:"query"`
	Count  int              `json:"count"`
	Rows   []StudentRow     `json:"rows"`
}

type RosterQuery struct {
	Filter string `json:"q"`
	Sort   string `json:"sort"`
	Order  string `json:"order"`
}

// PaymentRow keeps the ledger's raw amount text next to the parsed amount.
type PaymentRow struct {
	ID          string `json:"id"`
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName,omitempty"`
	PaymentName string `json:"paymentName"`
	PaymentDate string `json:"paymentDate"`
	PaymentType string `json:"paymentType"`
	Amount      Amount `json:"amount"`
}

type DailyResponse struct {
	Status  dashboard.Status `json:"status"`
	Date    string           `json:"date"`
	Total   Amount           `json:"total"`
	Entries []PaymentRow     `json:"entries"`
}

type MonthlyPoint struct {
	Date  string `json:"date"`
	Label string `json:"label"`
	Total Amount `json:"total"`
}

type MonthlyResponse struct {
	Status dashboard.Status `json:"status"`
	Points []MonthlyPoint   `json:"points"`
}

type StudentDetailResponse struct {
	Student  StudentRow   `json:"student"`
	Paid     Amount       `json:"paymentsTotal"`
	Payments []PaymentRow `json:"payments"`
}

// StreamEvent is the payload of one SSE views event.
type StreamEvent struct {
	Dashboard DashboardResponse `json:"dashboard"`
	Daily     DailyResponse     `json:"daily"`
	Monthly   MonthlyResponse   `json:"monthly"`
}

// Presenter turns views into response bodies.
type Presenter struct {
	formatter *money.Formatter
}

func NewPresenter(formatter *money.Formatter) *Presenter {
	return &Presenter{formatter: formatter}
}

func (p *Presenter) Amount(value decimal.Decimal) Amount {
	return Amount{Value: value.InexactFloat64(), Label: p.formatter.Format(value)}
}

func (p *Presenter) Dashboard(v *dashboard.Views) DashboardResponse {
	errs := v.Errors
	if errs == nil {
		errs = []dashboard.SourceError{}
	}
	return DashboardResponse{
		Status:             v.Status,
		Errors:             errs,
		Version:            v.Version,
		ReferenceDate:      v.Daily.Date.String(),
		ComputedAt:         v.ComputedAt,
		Currency:           p.formatter.Currency(),
		TotalPaid:          p.Amount(v.Totals.TotalPaid),
		TotalDue:           p.Amount(v.Totals.TotalDue),
		StudentCount:       v.Totals.StudentCount,
		StudentsWithDue:    v.Totals.StudentsWithDue,
		StudentsPaidInFull: v.Totals.StudentsPaidInFull,
		DailyTotal:         p.Amount(v.Daily.Total),
	}
}

func (p *Presenter) Student(s models.Student) StudentRow {
	return StudentRow{
		ID:        s.ID,
		FullName:  s.FullName,
		Phone:     s.Phone,
		TotalPaid: p.Amount(s.TotalPaid),
		TotalDue:  p.Amount(s.TotalDue),
		Status:    s.Status(),
	}
}

func (p *Presenter) Payment(payment models.Payment, studentName string) PaymentRow {
	return PaymentRow{
		ID:          payment.ID,
		StudentID:   payment.StudentID,
		StudentName: studentName,
		PaymentName: payment.PaymentName,
		PaymentDate: payment.PaymentDate,
		PaymentType: payment.PaymentType,
		Amount:      p.Amount(payment.Amount()),
	}
}

func (p *Presenter) Daily(v *dashboard.Views) DailyResponse {
	entries := make([]PaymentRow, 0, len(v.Daily.Entries))
	for _, entry := range v.Daily.Entries {
		row := p.Payment(entry.Payment, entry.StudentName)
		row.Amount = p.Amount(entry.Amount)
		entries = append(entries, row)
	}
	return DailyResponse{
		Status:  v.Status,
		Date:    v.Daily.Date.String(),
		Total:   p.Amount(v.Daily.Total),
		Entries: entries,
	}
}

func (p *Presenter) Monthly(v *dashboard.Views) MonthlyResponse {
	points := make([]MonthlyPoint, 0, len(v.Monthly))
	for _, point := range v.Monthly {
		points = append(points, p.monthlyPoint(point))
	}
	return MonthlyResponse{Status: v.Status, Points: points}
}

func (p *Presenter) monthlyPoint(point aggregation.MonthlyPoint) MonthlyPoint {
	return MonthlyPoint{Date: point.Date.String(), Label: point.Label, Total: p.Amount(point.Total)}
}

func (p *Presenter) Detail(detail dashboard.Detail) StudentDetailResponse {
	rows := make([]PaymentRow, 0, len(detail.Payments))
	amounts := make([]decimal.Decimal, 0, len(detail.Payments))
	for _, payment := range detail.Payments {
		rows = append(rows, p.Payment(payment, ""))
		amounts = append(amounts, payment.Amount())
	}
	return StudentDetailResponse{
		Student:  p.Student(detail.Student),
		Paid:     p.Amount(money.Sum(amounts...)),
		Payments: rows,
	}
}

func (p *Presenter) Stream(v *dashboard.Views) StreamEvent {
	return StreamEvent{Dashboard: p.Dashboard(v), Daily: p.Daily(v), Monthly: p.Monthly(v)}
}
