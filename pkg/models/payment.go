package models

import (
	"github.com/shopspring/decimal"

	"github.com/Ramsey-B/marigold/pkg/money"
)

// Payment is one ledger payment. PaymentName holds the amount as text.
type Payment struct {
	ID          string `json:"id"`
	PaymentName string `json:"paymentName"`
	PaymentDate string `json:"paymentDate"`
	PaymentType string `json:"paymentType"`
	// StudentID is stamped locally when the payment joins the unified set.
	StudentID string `json:"studentId,omitempty"`
}

// Amount parses PaymentName. Unparseable text is zero.
func (p Payment) Amount() decimal.Decimal {
	return money.Parse(p.PaymentName)
}

// Key identifies a payment across students.
type Key struct {
	StudentID string
	PaymentID string
}

// Key returns the payment's unified-set identity.
func (p Payment) Key() Key {
	return Key{StudentID: p.StudentID, PaymentID: p.ID}
}
