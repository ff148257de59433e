// Package aggregation derives dashboard views from students and the unified payment set.
// Every function here is pure: the same input always yields the same output.
package aggregation

import (
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/shopspring/decimal"

	"github.com/Ramsey-B/marigold/pkg/models"
)

// UnknownStudent names the owner of a payment whose student is not in the roster.
const UnknownStudent = "Unknown student"

// MonthlyLabelLayout formats monthly series labels, e.g. "Mar 5".
const MonthlyLabelLayout = "Jan 2"

// Totals are the headline KPIs. They come from the students' running totals, which the
// ledger owns; payments are never re-summed into balances.
type Totals struct {
	TotalPaid          decimal.Decimal
	TotalDue           decimal.Decimal
	StudentCount       int
	StudentsWithDue    int
	StudentsPaidInFull int
}

type DailyEntry struct {
	Payment     models.Payment
	StudentName string
	Amount      decimal.Decimal
}

// DailyReport lists the payments dated on one calendar day.
type DailyReport struct {
	Date    Day
	Total   decimal.Decimal
	Entries []DailyEntry
}

type MonthlyPoint struct {
	Date  Day
	Label string
	Total decimal.Decimal
}

// State is everything the views are derived from.
type State struct {
	Students      []models.Student
	Payments      []models.Payment
	ReferenceDate time.Time
	Location      *time.Location
}

type Views struct {
	Totals  Totals
	Daily   DailyReport
	Monthly []MonthlyPoint
}

// Compute derives every view from state.
func Compute(state State) Views {
	return Views{
		Totals:  ComputeTotals(state.Students),
		Daily:   ComputeDaily(state.Payments, state.Students, state.ReferenceDate, state.Location),
		Monthly: ComputeMonthly(state.Payments, state.ReferenceDate, state.Location),
	}
}

func ComputeTotals(students []models.Student) Totals {
	totals := Totals{
		TotalPaid:    decimal.Zero,
		TotalDue:     decimal.Zero,
		StudentCount: len(students),
	}
	for _, student := range students {
		totals.TotalPaid = totals.TotalPaid.Add(student.TotalPaid)
		totals.TotalDue = totals.TotalDue.Add(student.TotalDue)
		if student.HasDue() {
			totals.StudentsWithDue++
		} else {
			totals.StudentsPaidInFull++
		}
	}
	return totals
}

// ComputeDaily reports the payments dated on the reference date's calendar day in loc.
// Payments with unreadable dates never match.
func ComputeDaily(payments []models.Payment, students []models.Student, referenceDate time.Time, loc *time.Location) DailyReport {
	loc = location(loc)
	today := DayOf(referenceDate, loc)
	names := make(map[string]string, len(students))
	for _, student := range students {
		names[student.ID] = student.FullName
	}

	todays := ectolinq.Filter(payments, func(p models.Payment) bool {
		day, ok := ParseDay(p.PaymentDate, loc)
		return ok && day == today
	})

	report := DailyReport{Date: today, Total: decimal.Zero, Entries: make([]DailyEntry, 0, len(todays))}
	for _, payment := range todays {
		name, ok := names[payment.StudentID]
		if !ok {
			name = UnknownStudent
		}
		amount := payment.Amount()
		report.Total = report.Total.Add(amount)
		report.Entries = append(report.Entries, DailyEntry{Payment: payment, StudentName: name, Amount: amount})
	}
	return report
}

// ComputeMonthly returns one point per day from the first of the reference month through
// the reference date, in order. Days without payments total zero.
func ComputeMonthly(payments []models.Payment, referenceDate time.Time, loc *time.Location) []MonthlyPoint {
	loc = location(loc)
	today := DayOf(referenceDate, loc)

	totals := map[Day]decimal.Decimal{}
	for _, payment := range payments {
		day, ok := ParseDay(payment.PaymentDate, loc)
		if !ok || day.Year != today.Year || day.Month != today.Month || day.Day > today.Day {
			continue
		}
		totals[day] = totals[day].Add(payment.Amount())
	}

	points := make([]MonthlyPoint, 0, today.Day)
	for d := 1; d <= today.Day; d++ {
		day := Day{Year: today.Year, Month: today.Month, Day: d}
		total, ok := totals[day]
		if !ok {
			total = decimal.Zero
		}
		points = append(points, MonthlyPoint{
			Date:  day,
			Label: day.Time(loc).Format(MonthlyLabelLayout),
			Total: total,
		})
	}
	return points
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
