// Package reconciler merges per-student payment snapshots into one unified payment set.
package reconciler

import (
	"slices"

	"github.com/Ramsey-B/marigold/pkg/models"
)

// Merge replaces studentID's contribution to unified with snapshot. Payments of other
// students keep their order; the stamped snapshot is appended. unified is not modified.
// Entries are keyed by (studentId, paymentId), so equal payment ids under different
// students never displace each other.
func Merge(unified []models.Payment, studentID string, snapshot []models.Payment) []models.Payment {
	merged := make([]models.Payment, 0, len(unified)+len(snapshot))
	for _, payment := range unified {
		if payment.StudentID != studentID {
			merged = append(merged, payment)
		}
	}

	seen := make(map[string]int, len(snapshot))
	for _, payment := range snapshot {
		payment.StudentID = studentID
		if index, ok := seen[payment.ID]; ok {
			merged[index] = payment
			continue
		}
		seen[payment.ID] = len(merged)
		merged = append(merged, payment)
	}
	return merged
}

// Reconciler holds the unified payment set. It is not safe for concurrent use; the
// dashboard loop owns it.
type Reconciler struct {
	payments []models.Payment
}

func New() *Reconciler {
	return &Reconciler{}
}

// Apply replaces a student's payments with a fresh snapshot.
func (r *Reconciler) Apply(studentID string, snapshot []models.Payment) {
	r.payments = Merge(r.payments, studentID, snapshot)
}

// Remove drops a student's payments. It reports whether any were present.
func (r *Reconciler) Remove(studentID string) bool {
	before := len(r.payments)
	r.payments = slices.DeleteFunc(r.payments, func(p models.Payment) bool { return p.StudentID == studentID })
	return len(r.payments) != before
}

// Retain drops the payments of every student not in studentIDs.
func (r *Reconciler) Retain(studentIDs map[string]bool) {
	r.payments = slices.DeleteFunc(r.payments, func(p models.Payment) bool { return !studentIDs[p.StudentID] })
}

// Payments returns a copy of the unified set in arrival order.
func (r *Reconciler) Payments() []models.Payment {
	return slices.Clone(r.payments)
}

// ForStudent returns one student's payments in arrival order.
func (r *Reconciler) ForStudent(studentID string) []models.Payment {
	var payments []models.Payment
	for _, payment := range r.payments {
		if payment.StudentID == studentID {
			payments = append(payments, payment)
		}
	}
	return payments
}

func (r *Reconciler) Len() int {
	return len(r.payments)
}
