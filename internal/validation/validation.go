package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Violations maps a request field to the first problem found on it.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

func (v Violations) add(field, msg string) {
	if _, exists := v[field]; !exists {
		v[field] = msg
	}
}

// Err returns nil when there is nothing to report.
func (v Violations) Err() error {
	if v.Empty() {
		return nil
	}
	return &Error{Violations: v}
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Violations Violations
}

func (e *Error) Error() string {
	return fmt.Sprintf("validation failed: %d invalid field(s)", len(e.Violations))
}

// Fields returns the violations sorted by field name.
func (e *Error) Fields() []FieldError {
	out := make([]FieldError, 0, len(e.Violations))
	for field, msg := range e.Violations {
		out = append(out, FieldError{Field: field, Message: msg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{9,14}$`)

func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v.add(field, "required")
	}
}

func Length(field, value string, minLen, maxLen int, v Violations) {
	n := len([]rune(strings.TrimSpace(value)))
	if minLen > 0 && n < minLen {
		v.add(field, fmt.Sprintf("must contain at least %d characters", minLen))
		return
	}
	if maxLen > 0 && n > maxLen {
		v.add(field, fmt.Sprintf("must not exceed %d characters", maxLen))
	}
}

func MaxLength(field, value string, maxLen int, v Violations) {
	Length(field, value, 0, maxLen, v)
}

func Email(field, value string, v Violations) {
	if value == "" {
		return
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		v.add(field, "invalid email")
	}
}

func Phone(field, value string, v Violations) {
	if !phonePattern.MatchString(value) {
		v.add(field, "invalid phone number")
	}
}

func PositiveDecimal(field string, val decimal.Decimal, v Violations) {
	if !val.IsPositive() {
		v.add(field, "must be positive")
	}
}

func NonNegativeDecimal(field string, val decimal.Decimal, v Violations) {
	if val.IsNegative() {
		v.add(field, "must not be negative")
	}
}

func PositiveInt(field string, val int, v Violations) {
	if val <= 0 {
		v.add(field, "must be positive")
	}
}

func NonNegativeInt(field string, val int, v Violations) {
	if val < 0 {
		v.add(field, "must not be negative")
	}
}

// OneOf records a violation when ok is false.
func OneOf(field string, ok bool, allowed string, v Violations) {
	if !ok {
		v.add(field, "must be one of "+allowed)
	}
}

// Check records msg against field when cond is false.
func Check(field string, cond bool, msg string, v Violations) {
	if !cond {
		v.add(field, msg)
	}
}
