package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxScale is the number of decimal places NUMERIC(38,8) keeps.
const MaxScale = 8

// maxAmount is the first value NUMERIC(38,8) cannot hold.
var maxAmount = decimal.New(1, 38-MaxScale)

// ValidAmount rejects amounts the ledger cannot store exactly: anything not
// positive, finer than MaxScale places, or too large for the column.
func ValidAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount %s: %w", amount, ErrInvalidAmount)
	}
	if !amount.Equal(amount.Truncate(MaxScale)) {
		return fmt.Errorf("amount %s has more than %d decimal places: %w", amount, MaxScale, ErrInvalidAmount)
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("amount %s is too large: %w", amount, ErrInvalidAmount)
	}
	return nil
}
