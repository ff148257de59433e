package expressions

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// templatePattern matches {{ expression }} patterns
	templatePattern = regexp.MustCompile(`\{\{\s*(.+?)\s*\}\}`)
)

// Template handles string interpolation with JMESPath expressions
type Template struct {
	evaluator *Evaluator
}

// NewTemplate creates a new template processor
func NewTemplate(evaluator *Evaluator) *Template {
	return &Template{
		evaluator: evaluator,
	}
}

// Render replaces {{ expression }} patterns in a string with evaluated values.
// Every failing expression is reported; failed patterns are left in place.
func (t *Template) Render(template string, data any) (string, error) {
	var errs []error

	result := templatePattern.ReplaceAllStringFunc(template, func(match string) string {
		submatch := templatePattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}

		expression := strings.TrimSpace(submatch[1])
		value, err := t.evaluator.EvaluateString(expression, data)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to evaluate %q: %w", expression, err))
			return match
		}

		return value
	})

	return result, errors.Join(errs...)
}

// Validate checks every expression in a template
func (t *Template) Validate(template string) error {
	var errs []error
	for _, expression := range ExtractExpressions(template) {
		if err := t.evaluator.Validate(expression); err != nil {
			errs = append(errs, fmt.Errorf("invalid expression %q: %w", expression, err))
		}
	}
	return errors.Join(errs...)
}

// ExtractExpressions extracts all expressions from a template string
func ExtractExpressions(template string) []string {
	matches := templatePattern.FindAllStringSubmatch(template, -1)
	expressions := make([]string, 0, len(matches))

	for _, match := range matches {
		if len(match) >= 2 {
			expressions = append(expressions, strings.TrimSpace(match[1]))
		}
	}

	return expressions
}
