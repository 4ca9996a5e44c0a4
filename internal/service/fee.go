package service

import (
	"github.com/shopspring/decimal"

	"github.com/shieldpay/shieldpay/internal/models"
)

// FeePolicy computes the platform fee split for a withdrawal amount. It is a
// pure function of the amount: no I/O, safe to call speculatively.
type FeePolicy struct {
	Percent decimal.Decimal
	Min     decimal.Decimal
	Max     decimal.Decimal
	Network decimal.Decimal
}

// Estimate returns the fee taken from amount and the net the destination
// receives. fee + net = amount always holds on success.
func (p FeePolicy) Estimate(amount decimal.Decimal) (fee, net decimal.Decimal, err error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, models.NewValidationError("amount", "must be positive")
	}

	fee = amount.Mul(p.Percent).Round(8)
	if fee.LessThan(p.Min) {
		fee = p.Min
	}
	if p.Max.Sign() > 0 && fee.GreaterThan(p.Max) {
		fee = p.Max
	}
	fee = fee.Add(p.Network)

	net = amount.Sub(fee)
	if net.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, models.NewValidationError("amount", "does not cover the fee")
	}
	return fee, net, nil
}
