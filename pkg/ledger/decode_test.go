package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Ramsey-B/marigold/pkg/models"
)

func decodeInto(t *testing.T, doc bson.M, out any) {
	t.Helper()
	data, err := bson.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, bson.Unmarshal(data, out))
}

func TestStudentDocument(t *testing.T) {
	oid := primitive.NewObjectID()
	tests := []struct {
		name string
		doc  bson.M
		want models.Student
	}{
		{
			name: "typed fields",
			doc:  bson.M{"_id": "s1", "fullName": "Amal", "phone": "0100", "totalPaid": 100.5, "totalDue": int32(0)},
			want: models.Student{ID: "s1", FullName: "Amal", Phone: "0100", TotalPaid: decimal.RequireFromString("100.5"), TotalDue: decimal.Zero},
		},
		{
			name: "object id and numeric phone",
			doc:  bson.M{"_id": oid, "fullName": "Omar", "phone": int64(201000), "totalPaid": "250", "totalDue": int64(50)},
			want: models.Student{ID: oid.Hex(), FullName: "Omar", Phone: "201000", TotalPaid: decimal.NewFromInt(250), TotalDue: decimal.NewFromInt(50)},
		},
		{
			name: "missing fields",
			doc:  bson.M{"_id": "s3"},
			want: models.Student{ID: "s3", TotalPaid: decimal.Zero, TotalDue: decimal.Zero},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc studentDocument
			decodeInto(t, tt.doc, &doc)
			got := doc.toModel()
			assert.Equal(t, tt.want.ID, got.ID)
			assert.Equal(t, tt.want.FullName, got.FullName)
			assert.Equal(t, tt.want.Phone, got.Phone)
			assert.True(t, tt.want.TotalPaid.Equal(got.TotalPaid), "totalPaid %s", got.TotalPaid)
			assert.True(t, tt.want.TotalDue.Equal(got.TotalDue), "totalDue %s", got.TotalDue)
		})
	}
}

func TestPaymentDocument(t *testing.T) {
	paidAt := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		doc  bson.M
		want models.Payment
	}{
		{
			name: "text amount",
			doc:  bson.M{"_id": "p1", "studentId": "s1", "paymentName": "150", "paymentDate": "2024-03-05", "paymentType": "Term 1"},
			want: models.Payment{ID: "p1", PaymentName: "150", PaymentDate: "2024-03-05", PaymentType: "Term 1"},
		},
		{
			name: "numeric amount and date value",
			doc:  bson.M{"_id": "p2", "paymentName": 99.5, "paymentDate": primitive.NewDateTimeFromTime(paidAt)},
			want: models.Payment{ID: "p2", PaymentName: "99.5", PaymentDate: "2024-03-05T09:30:00Z"},
		},
		{
			name: "missing amount defaults to zero",
			doc:  bson.M{"_id": "p3"},
			want: models.Payment{ID: "p3", PaymentName: "0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc paymentDocument
			decodeInto(t, tt.doc, &doc)
			assert.Equal(t, tt.want, doc.toModel())
		})
	}
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, time.Duration(0), retryDelay(time.Second, 0))
	assert.Equal(t, time.Second, retryDelay(time.Second, 1))
	assert.Equal(t, time.Second, retryDelay(time.Second, 2))
	assert.Equal(t, 2*time.Second, retryDelay(time.Second, 3))
	assert.Equal(t, 5*time.Second, retryDelay(time.Second, 5))
	assert.Equal(t, maxRetryDelay, retryDelay(time.Second, 40))
}
