// Package fields resolves booking-draft selections to the numeric value and
// time attributes held in the field configuration table.
package fields

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/codr1/tidyquote/internal/models"
)

// ErrReservedCategory is returned for categories that would shadow a computed
// pipeline quantity inside formulas.
var ErrReservedCategory = errors.New("category name is reserved")

// Normalize lower-cases s and strips every rune that is not a letter or digit.
// Field names, categories and options are all compared in this form.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Identifier returns the name formulas use for s. It is Normalize(s) spelled
// so the formula tokenizer always accepts it: runes outside a-z and 0-9
// become "u" plus four or more hex digits, and a leading digit gets a "_"
// prefix. Identifier(Identifier(s)) == Identifier(s).
func Identifier(s string) string {
	key := Normalize(s)
	var b strings.Builder
	b.Grow(len(key) + 1)
	for i, r := range key {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			fmt.Fprintf(&b, "u%04x", r)
		}
	}
	return b.String()
}

// ValidateCategory rejects a category whose formula name collides with a
// computed pipeline quantity such as basetime.
func ValidateCategory(category string) error {
	if isReserved(Identifier(category)) {
		return fmt.Errorf("%w: %q reads as a computed quantity in formulas", ErrReservedCategory, category)
	}
	return nil
}

func isReserved(identifier string) bool {
	for _, scalar := range models.PipelineScalars {
		if identifier == scalar {
			return true
		}
	}
	return false
}

// digitsOnly keeps the ASCII digits of s.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// digitRuns returns each maximal run of ASCII digits in s, in order.
func digitRuns(s string) []string {
	var runs []string
	start := -1
	for i, r := range s {
		isDigit := r >= '0' && r <= '9'
		switch {
		case isDigit && start < 0:
			start = i
		case !isDigit && start >= 0:
			runs = append(runs, s[start:i])
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, s[start:])
	}
	return runs
}
