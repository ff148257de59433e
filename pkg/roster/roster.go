// Package roster filters and sorts the student table.
package roster

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Gobusters/ectolinq"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/Ramsey-B/marigold/pkg/models"
)

var (
	ErrUnknownColumn = errors.New("unknown sort column")
	ErrUnknownOrder  = errors.New("unknown sort order")
)

// Column is a sortable roster column.
type Column string

const (
	ColumnFullName  Column = "fullName"
	ColumnTotalPaid Column = "totalPaid"
	ColumnTotalDue  Column = "totalDue"
)

// Columns lists every sortable column.
var Columns = []Column{ColumnFullName, ColumnTotalPaid, ColumnTotalDue}

type Order string

const (
	Ascending  Order = "asc"
	Descending Order = "desc"
)

// Query selects and orders roster rows. The zero value lists everyone by name.
type Query struct {
	Filter string
	Sort   Column
	Order  Order
}

// ParseQuery validates raw query parameters. Empty values take the defaults.
func ParseQuery(filter, sort, order string) (Query, error) {
	query := Query{Filter: strings.TrimSpace(filter), Sort: ColumnFullName, Order: Ascending}
	if sort != "" {
		if !ectolinq.Contains(Columns, Column(sort)) {
			return Query{}, fmt.Errorf("%w: %q", ErrUnknownColumn, sort)
		}
		query.Sort = Column(sort)
	}
	switch Order(order) {
	case "":
	case Ascending, Descending:
		query.Order = Order(order)
	default:
		return Query{}, fmt.Errorf("%w: %q", ErrUnknownOrder, order)
	}
	return query, nil
}

// Table renders roster rows with locale-aware name ordering.
type Table struct {
	tag language.Tag
}

func NewTable(locale string) (*Table, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	return &Table{tag: tag}, nil
}

// Rows filters students by name or phone and sorts them. Ties keep id order, so the
// result is deterministic. students is not modified.
func (t *Table) Rows(students []models.Student, query Query) []models.Student {
	// names match case-insensitively, phones match the filter text as typed
	raw := strings.TrimSpace(query.Filter)
	needle := strings.ToLower(raw)
	rows := ectolinq.Filter(students, func(s models.Student) bool {
		return raw == "" ||
			strings.Contains(strings.ToLower(s.FullName), needle) ||
			strings.Contains(s.Phone, raw)
	})
	rows = slices.Clone(rows)

	compare := t.comparator(query.Sort)
	slices.SortStableFunc(rows, func(a, b models.Student) int {
		c := compare(a, b)
		if query.Order == Descending {
			c = -c
		}
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		return c
	})
	return rows
}

func (t *Table) comparator(column Column) func(a, b models.Student) int {
	switch column {
	case ColumnTotalPaid:
		return func(a, b models.Student) int { return a.TotalPaid.Cmp(b.TotalPaid) }
	case ColumnTotalDue:
		return func(a, b models.Student) int { return a.TotalDue.Cmp(b.TotalDue) }
	default:
		collator := collate.New(t.tag, collate.IgnoreCase)
		return func(a, b models.Student) int { return collator.CompareString(a.FullName, b.FullName) }
	}
}
