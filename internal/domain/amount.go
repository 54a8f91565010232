package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	AmountScale = 7
	// AmountIntegerDigits matches the NUMERIC(27, 7) columns.
	AmountIntegerDigits = 20
)

var amountLimit = decimal.New(1, AmountIntegerDigits)

// NormalizeAmount rounds half-to-even at AmountScale fractional digits.
func NormalizeAmount(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(AmountScale)
}

func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ParseAmount: %q: %w", s, ErrValidation)
	}
	d = NormalizeAmount(d)
	if !AmountInRange(d) {
		return decimal.Zero, fmt.Errorf("ParseAmount: %q exceeds %d integer digits: %w", s, AmountIntegerDigits, ErrValidation)
	}
	return d, nil
}

// AmountInRange reports whether d fits a balance or amount column.
func AmountInRange(d decimal.Decimal) bool {
	return d.Abs().LessThan(amountLimit)
}

func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}

func ValidatePositiveAmount(d decimal.Decimal) error {
	d = NormalizeAmount(d)
	if !d.IsPositive() {
		return fmt.Errorf("amount must be greater than zero: %w", ErrValidation)
	}
	if !AmountInRange(d) {
		return fmt.Errorf("amount exceeds %d integer digits: %w", AmountIntegerDigits, ErrValidation)
	}
	return nil
}
