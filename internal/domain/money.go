package domain

import "github.com/Rhymond/go-money"

// FormatIRR formats an amount of IRR minor units for display.
// Display only, never consumed by allocation or validation logic.
func FormatIRR(amount int64) string {
	return money.New(amount, money.IRR).Display()
}
