package deposit

import (
	"github.com/RabbyHub/perps-engine/pkg/venue"
	"github.com/shopspring/decimal"
)

var (
	// MinDepositUsd is the smallest deposit the venue credits.
	MinDepositUsd = decimal.NewFromInt(5)

	// MinWithdrawUsd is the smallest withdrawal the venue processes.
	MinWithdrawUsd = decimal.NewFromInt(2)
)

// ValidateDeposit checks a deposit amount against the venue minimum and
// the USD value the user actually holds in the source token. Amounts
// exactly at either boundary are valid.
func ValidateDeposit(usd, available decimal.Decimal) error {
	if usd.LessThan(MinDepositUsd) {
		return venue.Errorf(venue.KindMinimumLimit, "deposits must be at least $%s", MinDepositUsd)
	}
	if usd.GreaterThan(available) {
		return venue.Errorf(venue.KindInsufficientBalance, "deposit of $%s exceeds available balance $%s", usd, available)
	}
	return nil
}

// ValidateWithdraw checks a withdrawal amount against the venue minimum
// and the account's withdrawable margin.
func ValidateWithdraw(usd, withdrawable decimal.Decimal) error {
	if usd.LessThan(MinWithdrawUsd) {
		return venue.Errorf(venue.KindMinimumLimit, "withdrawals must be at least $%s", MinWithdrawUsd)
	}
	if usd.GreaterThan(withdrawable) {
		return venue.Errorf(venue.KindInsufficientBalance, "withdrawal of $%s exceeds withdrawable margin $%s", usd, withdrawable)
	}
	return nil
}
