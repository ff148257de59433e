// Package money parses ledger amounts and formats currency labels.
package money

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// leadingNumber matches the numeric prefix a lenient float parser accepts. Payments are
// never negative, so a leading minus sign does not match.
var leadingNumber = regexp.MustCompile(`^\+?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

// Parse reads an amount stored as text. It takes the longest numeric prefix
// ("150 EGP" is 150) and returns zero when there is none. It never fails.
func Parse(text string) decimal.Decimal {
	match := strings.TrimSuffix(leadingNumber.FindString(strings.TrimSpace(text)), ".")
	if match == "" {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(strings.Replace(match, ".e", "e", 1))
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// Sum adds amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(amount)
	}
	return total
}

// Formatter renders amounts as localized currency labels.
type Formatter struct {
	unit    currency.Unit
	printer *message.Printer
}

// NewFormatter builds a Formatter for an ISO 4217 code and a BCP 47 locale.
func NewFormatter(code, locale string) (*Formatter, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("invalid currency %q: %w", code, err)
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	return &Formatter{unit: unit, printer: message.NewPrinter(tag)}, nil
}

// Format renders amount with the currency symbol.
func (f *Formatter) Format(amount decimal.Decimal) string {
	return f.printer.Sprint(currency.Symbol(f.unit.Amount(amount.InexactFloat64())))
}

// Currency returns the ISO code.
func (f *Formatter) Currency() string {
	return f.unit.String()
}
