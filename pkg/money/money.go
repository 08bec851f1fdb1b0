// Package money holds monetary amounts as integer cents.
//
// All arithmetic in the application happens on cents; floats only appear at
// the JSON boundary and in rendered output.
package money

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Cents is an amount in minor currency units. Negative values are valid and
// represent deductions (omission variations, credit notes).
type Cents int64

var ErrInvalidAmount = errors.New("invalid amount")
var ErrUnknownCurrency = errors.New("unknown currency code")

// ParseDecimal converts a decimal string to cents with half-up rounding on the
// third decimal place. Both "12.34" and "12,34" are accepted; a leading minus
// sign is allowed.
func ParseDecimal(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafe = (1<<63 - 1) / 100
	if iv > maxSafe {
		return 0, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if negative {
		cents = -cents
	}
	return Cents(cents), nil
}

// Units returns the major-unit value as a float64 for display purposes only.
func (c Cents) Units() float64 {
	return float64(c) / 100.0
}

// Abs returns the absolute value.
func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

// ValidCurrency reports whether code is a well-formed ISO 4217 currency code.
func ValidCurrency(code string) bool {
	_, err := currency.ParseISO(code)
	return err == nil
}

// Formatter renders cents for a fixed currency, with grouped thousands.
// Rendering is locale-stable (English grouping) so exported files do not
// change shape with the server locale.
type Formatter struct {
	unit    currency.Unit
	printer *message.Printer
}

func NewFormatter(code string) (*Formatter, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, ErrUnknownCurrency
	}
	return &Formatter{
		unit:    unit,
		printer: message.NewPrinter(language.English),
	}, nil
}

// Format renders an amount like "AUD 12,340.50". Negative amounts keep the
// minus sign in front of the figure, after the code.
func (f *Formatter) Format(c Cents) string {
	return f.unit.String() + " " + f.printer.Sprintf("%.2f", c.Units())
}
