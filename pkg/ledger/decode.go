package ledger

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/Ramsey-B/marigold/pkg/models"
	"github.com/Ramsey-B/marigold/pkg/money"
)

// Ledger documents are written by other tools, so every field is decoded leniently:
// numbers stored as text and text stored as numbers are both accepted.

type studentDocument struct {
	ID        bson.RawValue `bson:"_id"`
	FullName  bson.RawValue `bson:"fullName"`
	Phone     bson.RawValue `bson:"phone"`
	TotalPaid bson.RawValue `bson:"totalPaid"`
	TotalDue  bson.RawValue `bson:"totalDue"`
}

func (d studentDocument) toModel() models.Student {
	return models.Student{
		ID:        rawText(d.ID),
		FullName:  rawText(d.FullName),
		Phone:     rawText(d.Phone),
		TotalPaid: rawDecimal(d.TotalPaid),
		TotalDue:  rawDecimal(d.TotalDue),
	}
}

type paymentDocument struct {
	ID          bson.RawValue `bson:"_id"`
	StudentID   bson.RawValue `bson:"studentId"`
	PaymentName bson.RawValue `bson:"paymentName"`
	PaymentDate bson.RawValue `bson:"paymentDate"`
	PaymentType bson.RawValue `bson:"paymentType"`
}

func (d paymentDocument) toModel() models.Payment {
	name := rawText(d.PaymentName)
	if name == "" {
		name = "0"
	}
	return models.Payment{
		ID:          rawText(d.ID),
		PaymentName: name,
		PaymentDate: rawText(d.PaymentDate),
		PaymentType: rawText(d.PaymentType),
	}
}

func rawText(value bson.RawValue) string {
	if s, ok := value.StringValueOK(); ok {
		return s
	}
	if oid, ok := value.ObjectIDOK(); ok {
		return oid.Hex()
	}
	if i, ok := value.Int32OK(); ok {
		return strconv.FormatInt(int64(i), 10)
	}
	if i, ok := value.Int64OK(); ok {
		return strconv.FormatInt(i, 10)
	}
	if f, ok := value.DoubleOK(); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if d, ok := value.Decimal128OK(); ok {
		return d.String()
	}
	if ms, ok := value.DateTimeOK(); ok {
		return time.UnixMilli(ms).UTC().Format(time.RFC3339)
	}
	return ""
}

func rawDecimal(value bson.RawValue) decimal.Decimal {
	if f, ok := value.DoubleOK(); ok {
		return decimal.NewFromFloat(f)
	}
	if i, ok := value.Int32OK(); ok {
		return decimal.NewFromInt32(i)
	}
	if i, ok := value.Int64OK(); ok {
		return decimal.NewFromInt(i)
	}
	if d, ok := value.Decimal128OK(); ok {
		if parsed, err := decimal.NewFromString(d.String()); err == nil {
			return parsed
		}
		return decimal.Zero
	}
	if s, ok := value.StringValueOK(); ok {
		return money.Parse(s)
	}
	return decimal.Zero
}
