// Package models holds the ledger records marigold projects.
package models

import "github.com/shopspring/decimal"

// StatusPaid and StatusDue label a student's balance.
const (
	StatusPaid = "paid"
	StatusDue  = "due"
)

// Student is a read-only projection of a ledger student record.
type Student struct {
	ID        string          `json:"id"`
	FullName  string          `json:"fullName"`
	Phone     string          `json:"phone"`
	TotalPaid decimal.Decimal `json:"totalPaid"`
	TotalDue  decimal.Decimal `json:"totalDue"`
}

// HasDue reports whether the student still owes money.
func (s Student) HasDue() bool {
	return s.TotalDue.IsPositive()
}

// Status is StatusDue when an amount is outstanding, StatusPaid otherwise.
// A zero or negative TotalDue means paid in full or in credit.
func (s Student) Status() string {
	if s.HasDue() {
		return StatusDue
	}
	return StatusPaid
}
