package ledger

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/marigold/pkg/models"
)

// Seed is a ledger fixture: students, each with their payments.
type Seed struct {
	Students []SeedStudent `yaml:"students"`
}

type SeedStudent struct {
	ID        string          `yaml:"id"`
	FullName  string          `yaml:"fullName"`
	Phone     string          `yaml:"phone"`
	TotalPaid decimal.Decimal `yaml:"totalPaid"`
	TotalDue  decimal.Decimal `yaml:"totalDue"`
	Payments  []SeedPayment   `yaml:"payments"`
}

type SeedPayment struct {
	ID          string `yaml:"id"`
	PaymentName string `yaml:"paymentName"`
	PaymentDate string `yaml:"paymentDate"`
	PaymentType string `yaml:"paymentType"`
}

// LoadSeed reads a YAML (or JSON) fixture into the memory ledger.
func (m *Memory) LoadSeed(r io.Reader) error {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("failed to decode ledger seed: %w", err)
	}

	for i, s := range seed.Students {
		if s.ID == "" {
			return fmt.Errorf("seed student %d has no id", i)
		}
		m.PutStudent(models.Student{ID: s.ID, FullName: s.FullName, Phone: s.Phone, TotalPaid: s.TotalPaid, TotalDue: s.TotalDue})
		for j, p := range s.Payments {
			if p.ID == "" {
				return fmt.Errorf("seed payment %d of student %s has no id", j, s.ID)
			}
			if p.PaymentName == "" {
				p.PaymentName = "0"
			}
			m.PutPayment(s.ID, models.Payment{ID: p.ID, PaymentName: p.PaymentName, PaymentDate: p.PaymentDate, PaymentType: p.PaymentType})
		}
	}
	return nil
}
