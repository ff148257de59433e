package dashboard

import (
	"time"

	"github.com/Ramsey-B/marigold/pkg/aggregation"
	"github.com/Ramsey-B/marigold/pkg/models"
)

// Status describes how trustworthy the published views are.
type Status string

const (
	// StatusLoading means the roster or a student's payments have not arrived yet.
	StatusLoading Status = "loading"
	// StatusReady means every source delivered and none is failing.
	StatusReady Status = "ready"
	// StatusDegraded means at least one source is failing; views may be stale.
	StatusDegraded Status = "degraded"
)

// SourceError is a failing ledger subscription.
type SourceError struct {
	Source    string    `json:"source"`
	StudentID string    `json:"studentId,omitempty"`
	Message   string    `json:"message"`
	Since     time.Time `json:"since"`
}

// Views is one immutable, fully derived dashboard state. Readers must not modify it.
type Views struct {
	aggregation.Views

	Version       uint64
	Status        Status
	Errors        []SourceError
	ComputedAt    time.Time
	ReferenceDate time.Time
	Subscriptions int

	Students []models.Student
	Payments []models.Payment

	studentIndex map[string]int
	byStudent    map[string][]models.Payment
}

// Detail is the per-student panel.
type Detail struct {
	Student  models.Student
	Payments []models.Payment
}

// Student looks up a roster member.
func (v *Views) Student(id string) (models.Student, bool) {
	index, ok := v.studentIndex[id]
	if !ok {
		return models.Student{}, false
	}
	return v.Students[index], true
}

// Detail returns a student with their payments in arrival order.
func (v *Views) Detail(id string) (Detail, bool) {
	student, ok := v.Student(id)
	if !ok {
		return Detail{}, false
	}
	return Detail{Student: student, Payments: v.byStudent[id]}, true
}

func newViews(version uint64, status Status, errs []SourceError, now time.Time, subscriptions int, state aggregation.State) *Views {
	views := &Views{
		Views:         aggregation.Compute(state),
		Version:       version,
		Status:        status,
		Errors:        errs,
		ComputedAt:    now,
		ReferenceDate: state.ReferenceDate,
		Subscriptions: subscriptions,
		Students:      state.Students,
		Payments:      state.Payments,
		studentIndex:  make(map[string]int, len(state.Students)),
		byStudent:     map[string][]models.Payment{},
	}
	for i, student := range state.Students {
		views.studentIndex[student.ID] = i
	}
	for _, payment := range state.Payments {
		views.byStudent[payment.StudentID] = append(views.byStudent[payment.StudentID], payment)
	}
	return views
}
