package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldpay/shieldpay/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFeePolicyEstimate(t *testing.T) {
	tests := []struct {
		name    string
		policy  FeePolicy
		amount  string
		wantFee string
		wantNet string
	}{
		{
			name:    "one percent",
			policy:  FeePolicy{Percent: dec("0.01")},
			amount:  "2.0",
			wantFee: "0.02",
			wantNet: "1.98",
		},
		{
			name:    "percent plus network fee",
			policy:  FeePolicy{Percent: dec("0.01"), Network: dec("0.0001")},
			amount:  "10",
			wantFee: "0.1001",
			wantNet: "9.8999",
		},
		{
			name:    "minimum fee floor",
			policy:  FeePolicy{Percent: dec("0.01"), Min: dec("0.001")},
			amount:  "0.05",
			wantFee: "0.001",
			wantNet: "0.049",
		},
		{
			name:    "maximum fee cap",
			policy:  FeePolicy{Percent: dec("0.01"), Max: dec("0.5")},
			amount:  "1000",
			wantFee: "0.5",
			wantNet: "999.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, net, err := tt.policy.Estimate(dec(tt.amount))
			require.NoError(t, err)
			assert.True(t, fee.Equal(dec(tt.wantFee)), "fee = %s, want %s", fee, tt.wantFee)
			assert.True(t, net.Equal(dec(tt.wantNet)), "net = %s, want %s", net, tt.wantNet)
			assert.True(t, fee.Add(net).Equal(dec(tt.amount)), "fee + net must equal amount")
		})
	}
}

func TestFeePolicyRejectsNonPositiveAmount(t *testing.T) {
	policy := FeePolicy{Percent: dec("0.01")}

	for _, amount := range []string{"0", "-1.5"} {
		_, _, err := policy.Estimate(dec(amount))
		var validation *models.ValidationError
		require.ErrorAs(t, err, &validation, "amount %s", amount)
	}
}

func TestFeePolicyRejectsAmountSwallowedByFee(t *testing.T) {
	policy := FeePolicy{Percent: dec("0.01"), Network: dec("0.01")}

	_, _, err := policy.Estimate(dec("0.005"))
	var validation *models.ValidationError
	require.ErrorAs(t, err, &validation)
}
