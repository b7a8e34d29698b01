package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the persisted scale for every money column.
const Places = 2

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
	ErrInvalidRate     = errors.New("invalid exchange rate")
	ErrInvalidFee      = errors.New("fee percent must be between 0 and 100")
)

var (
	hundred = decimal.NewFromInt(100)

	// MaxAmount is the largest value a NUMERIC(20,2) column holds.
	MaxAmount = decimal.RequireFromString("999999999999999999.99")
	// rateLimit bounds rates to the 14 integer digits of NUMERIC(20,6).
	rateLimit = decimal.New(1, 14)
)

// Compute applies a fee percent to a principal converted at rate.
//
//	fee               = amount * (feePercent / 100) * rate
//	amount_to_receive = amount * rate - fee
//
// Both results are rounded half-even to two places. The receivable is
// rounded from the exact difference, so it equals
// round(amount*rate - amount*rate*feePercent/100).
func Compute(amount, rate, feePercent decimal.Decimal) (fee, receive decimal.Decimal, err error) {
	if amount.IsNegative() {
		return decimal.Zero, decimal.Zero, ErrInvalidAmount
	}
	if rate.IsNegative() {
		return decimal.Zero, decimal.Zero, ErrInvalidRate
	}
	if feePercent.IsNegative() || feePercent.GreaterThan(hundred) {
		return decimal.Zero, decimal.Zero, ErrInvalidFee
	}
	gross := amount.Mul(rate)
	if gross.GreaterThan(MaxAmount) {
		return decimal.Zero, decimal.Zero, ErrInvalidAmount
	}
	exactFee := amount.Mul(feePercent.Div(hundred)).Mul(rate)
	fee = exactFee.RoundBank(Places)
	receive = gross.Sub(exactFee).RoundBank(Places)
	return fee, receive, nil
}

// ParseAmount parses a user-supplied principal: positive, at most two
// decimals and no larger than MaxAmount.
func ParseAmount(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if value.Exponent() < -Places && !value.Equal(value.Truncate(Places)) {
		return decimal.Zero, ErrTooManyDecimals
	}
	if !value.IsPositive() || value.GreaterThan(MaxAmount) {
		return decimal.Zero, ErrInvalidAmount
	}
	return value.Round(Places), nil
}

// ParseRate parses an exchange rate: positive, below 10^14, at most six decimals.
func ParseRate(input string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil || !value.IsPositive() || !value.LessThan(rateLimit) {
		return decimal.Zero, ErrInvalidRate
	}
	if value.Exponent() < -6 && !value.Equal(value.Truncate(6)) {
		return decimal.Zero, ErrInvalidRate
	}
	return value, nil
}

// ParseFeePercent parses a fee percent in [0, 100] with at most four decimals.
func ParseFeePercent(input string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil || value.IsNegative() || value.GreaterThan(hundred) {
		return decimal.Zero, ErrInvalidFee
	}
	if value.Exponent() < -4 && !value.Equal(value.Truncate(4)) {
		return decimal.Zero, ErrInvalidFee
	}
	return value, nil
}

func Format(value decimal.Decimal) string {
	return value.StringFixedBank(Places)
}
