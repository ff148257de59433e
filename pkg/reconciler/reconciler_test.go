package reconciler

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/marigold/pkg/models"
)

func payment(id, amount string) models.Payment {
	return models.Payment{ID: id, PaymentName: amount, PaymentDate: "2024-03-05", PaymentType: "Term 1"}
}

func TestReconciler_Apply(t *testing.T) {
	r := New()

	r.Apply("s1", []models.Payment{payment("p1", "100"), payment("p2", "50")})
	r.Apply("s2", []models.Payment{payment("p3", "70")})

	got := r.Payments()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"s1", "s1", "s2"}, studentIDs(got))
	assert.Equal(t, []string{"p1", "p2", "p3"}, paymentIDs(got))

	// a new snapshot for s1 replaces its contribution and moves it to the end
	r.Apply("s1", []models.Payment{payment("p1", "120")})
	got = r.Payments()
	assert.Equal(t, []string{"p3", "p1"}, paymentIDs(got))
	assert.Equal(t, "120", got[1].PaymentName)
}

func TestReconciler_ApplyStampsStudent(t *testing.T) {
	r := New()
	stamped := payment("p1", "10")
	stamped.StudentID = "someone-else"

	r.Apply("s1", []models.Payment{stamped, payment("p2", "20")})
	for _, p := range r.Payments() {
		assert.Equal(t, "s1", p.StudentID)
	}
}

func TestReconciler_ApplyDropsDeletedPayments(t *testing.T) {
	r := New()
	r.Apply("s1", []models.Payment{payment("p1", "100"), payment("p2", "50")})
	r.Apply("s1", []models.Payment{payment("p2", "50")})

	assert.Equal(t, []string{"p2"}, paymentIDs(r.Payments()))

	r.Apply("s1", nil)
	assert.Zero(t, r.Len())
}

func TestReconciler_CollidingPaymentIDs(t *testing.T) {
	r := New()
	r.Apply("s1", []models.Payment{payment("p1", "100")})
	r.Apply("s2", []models.Payment{payment("p1", "40")})

	got := r.Payments()
	require.Len(t, got, 2, "a shared payment id under another student must survive")
	assert.Equal(t, models.Key{StudentID: "s1", PaymentID: "p1"}, got[0].Key())
	assert.Equal(t, models.Key{StudentID: "s2", PaymentID: "p1"}, got[1].Key())

	r.Apply("s2", []models.Payment{payment("p1", "45")})
	assert.Equal(t, "100", r.ForStudent("s1")[0].PaymentName)
	assert.Equal(t, "45", r.ForStudent("s2")[0].PaymentName)
}

func TestReconciler_DuplicateIDsInSnapshot(t *testing.T) {
	r := New()
	r.Apply("s1", []models.Payment{payment("p1", "10"), payment("p2", "20"), payment("p1", "30")})

	got := r.Payments()
	require.Len(t, got, 2)
	assert.Equal(t, "30", got[0].PaymentName)
}

func TestReconciler_RemoveAndRetain(t *testing.T) {
	r := New()
	r.Apply("s1", []models.Payment{payment("p1", "10")})
	r.Apply("s2", []models.Payment{payment("p2", "20")})
	r.Apply("s3", []models.Payment{payment("p3", "30")})

	assert.True(t, r.Remove("s2"))
	assert.False(t, r.Remove("s2"))
	assert.Equal(t, []string{"s1", "s3"}, studentIDs(r.Payments()))

	r.Retain(map[string]bool{"s3": true})
	assert.Equal(t, []string{"s3"}, studentIDs(r.Payments()))
}

func TestReconciler_PaymentsIsACopy(t *testing.T) {
	r := New()
	r.Apply("s1", []models.Payment{payment("p1", "10")})

	got := r.Payments()
	got[0].PaymentName = "changed"
	assert.Equal(t, "10", r.Payments()[0].PaymentName)
}

func TestMerge_DoesNotModifyInput(t *testing.T) {
	unified := Merge(nil, "s1", []models.Payment{payment("p1", "10")})
	before := append([]models.Payment(nil), unified...)

	_ = Merge(unified, "s1", []models.Payment{payment("p9", "90")})
	assert.Equal(t, before, unified)
}

// After any interleaving of snapshots, the set holds exactly the latest snapshot of the
// updated student plus every other student's payments unchanged.
func TestReconciler_ArbitraryInterleaving(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	students := []string{"s1", "s2", "s3", "s4"}

	for round := 0; round < 200; round++ {
		r := New()
		latest := map[string][]models.Payment{}

		for step := 0; step < 25; step++ {
			studentID := students[rng.Intn(len(students))]
			snapshot := randomSnapshot(rng)

			before := r.Payments()
			r.Apply(studentID, snapshot)
			latest[studentID] = snapshot
			after := r.Payments()

			var others []models.Payment
			for _, p := range before {
				if p.StudentID != studentID {
					others = append(others, p)
				}
			}
			var mine []models.Payment
			var rest []models.Payment
			for _, p := range after {
				require.NotEmpty(t, p.StudentID)
				if p.StudentID == studentID {
					mine = append(mine, p)
				} else {
					rest = append(rest, p)
				}
			}

			assert.Equal(t, others, rest, "round %d step %d: other students changed", round, step)
			assert.Equal(t, paymentIDs(snapshot), paymentIDs(mine), "round %d step %d", round, step)
		}

		total := 0
		for _, snapshot := range latest {
			total += len(snapshot)
		}
		assert.Equal(t, total, r.Len())
	}
}

func randomSnapshot(rng *rand.Rand) []models.Payment {
	n := rng.Intn(4)
	ids := rng.Perm(6)[:n]
	snapshot := make([]models.Payment, 0, n)
	for _, id := range ids {
		snapshot = append(snapshot, payment(fmt.Sprintf("p%d", id), fmt.Sprint(rng.Intn(500))))
	}
	return snapshot
}

func paymentIDs(payments []models.Payment) []string {
	ids := make([]string, 0, len(payments))
	for _, p := range payments {
		ids = append(ids, p.ID)
	}
	return ids
}

func studentIDs(payments []models.Payment) []string {
	ids := make([]string, 0, len(payments))
	for _, p := range payments {
		ids = append(ids, p.StudentID)
	}
	return ids
}
