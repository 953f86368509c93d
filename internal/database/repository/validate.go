package repository

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrValidation wraps business-rule failures on expense updates so callers
// can distinguish them from infrastructure errors.
var ErrValidation = errors.New("validation")

// ValidateUpdate checks the business rules an expense update must satisfy
// before it is written. Nil fields are skipped.
func ValidateUpdate(u ExpenseUpdate) error {
	if u.Amount != nil && u.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: amount must be greater than zero, got %s", ErrValidation, u.Amount)
	}
	if u.Currency != nil {
		c := *u.Currency
		if len(c) != 3 {
			return fmt.Errorf("%w: currency must be a 3-letter code, got %q", ErrValidation, c)
		}
		for _, r := range c {
			if r < 'A' || r > 'Z' {
				return fmt.Errorf("%w: currency must be uppercase letters, got %q", ErrValidation, c)
			}
		}
	}
	if u.TransactionDate != nil && u.TransactionDate.IsZero() {
		return fmt.Errorf("%w: transaction date must be set", ErrValidation)
	}
	if u.Status != nil {
		switch *u.Status {
		case ExpensePending, ExpenseProcessed, ExpenseDuplicate:
		default:
			return fmt.Errorf("%w: unknown expense status %q", ErrValidation, *u.Status)
		}
	}
	return nil
}
