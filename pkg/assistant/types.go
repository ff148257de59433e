package assistant

import (
	"unicode/utf8"

	"github.com/Ramsey-B/marigold/pkg/models"
)

// Operations
const (
	OperationPredictDelay  = "predict_delay"
	OperationDraftFollowUp = "draft_follow_up"
)

type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// History limits. Ledger data is not ours to reject, so longer history is trimmed to fit.
const (
	MaxHistory        = 500
	maxPaymentNameLen = 200
	maxPaymentDateLen = 100
	maxPaymentTypeLen = 200
)

// PaymentRecord is one past payment as the model sees it. The amount stays raw text.
type PaymentRecord struct {
	PaymentName string `json:"paymentName" validate:"max=200"`
	PaymentDate string `json:"paymentDate" validate:"max=100"`
	PaymentType string `json:"paymentType" validate:"max=200"`
}

// History converts ledger payments into records, keeping the latest MaxHistory.
func History(payments []models.Payment) []PaymentRecord {
	records := make([]PaymentRecord, 0, len(payments))
	for _, p := range payments {
		records = append(records, PaymentRecord{PaymentName: p.PaymentName, PaymentDate: p.PaymentDate, PaymentType: p.PaymentType})
	}
	return trimHistory(records)
}

// trimHistory keeps the last MaxHistory records (history arrives oldest first) and clips
// oversized text. It never returns nil.
func trimHistory(records []PaymentRecord) []PaymentRecord {
	if len(records) > MaxHistory {
		records = records[len(records)-MaxHistory:]
	}
	trimmed := make([]PaymentRecord, len(records))
	for i, r := range records {
		trimmed[i] = PaymentRecord{
			PaymentName: clip(r.PaymentName, maxPaymentNameLen),
			PaymentDate: clip(r.PaymentDate, maxPaymentDateLen),
			PaymentType: clip(r.PaymentType, maxPaymentTypeLen),
		}
	}
	return trimmed
}

// clip cuts s to at most n runes.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// StudentDetails summarizes a student. Balance is what they have paid so far.
type StudentDetails struct {
	FullName string  `json:"fullName" validate:"required"`
	Phone    string  `json:"phone"`
	Balance  float64 `json:"balance"`
	Due      float64 `json:"due"`
}

type DelayPredictionInput struct {
	StudentID      string          `json:"studentId" validate:"required"`
	PaymentHistory []PaymentRecord `json:"paymentHistory" validate:"max=500,dive"`
	StudentDetails StudentDetails  `json:"studentDetails"`
}

type DelayPrediction struct {
	IsDelayLikely         bool   `json:"isDelayLikely"`
	SuggestedFollowUpDays int    `json:"suggestedFollowUpDays"`
	FollowUpMessage       string `json:"followUpMessage"`
}

type FollowUpInput struct {
	StudentID           string          `json:"studentId" validate:"required"`
	StudentName         string          `json:"studentName" validate:"required"`
	AmountDue           float64         `json:"amountDue"`
	PaymentHistory      []PaymentRecord `json:"paymentHistory" validate:"max=500,dive"`
	ExpectedPaymentDate string          `json:"expectedPaymentDate" validate:"required,datetime=2006-01-02"`
}

type FollowUpDraft struct {
	Message string  `json:"message"`
	Urgency Urgency `json:"urgency"`
}

// model output as decoded, before it is trusted

type delayPredictionOutput struct {
	IsDelayLikely         *bool    `json:"isDelayLikely" validate:"required"`
	SuggestedFollowUpDays *float64 `json:"suggestedFollowUpDays" validate:"required,gte=0,lte=365"`
	FollowUpMessage       string   `json:"followUpMessage" validate:"required"`
}

type followUpOutput struct {
	Message string `json:"message" validate:"required"`
	Urgency string `json:"urgency" validate:"required,oneof=high medium low"`
}
