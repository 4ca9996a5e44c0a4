package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldpay/shieldpay/internal/zrpc"
)

func TestAvailableBalanceProjection(t *testing.T) {
	store := newFakeStore()
	ledger := NewLedgerService(store)

	balance, err := ledger.AvailableBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "no history means zero balance")

	store.addPaidInvoice(1, dec("2.0"))
	store.addPaidInvoice(1, dec("0.5"))

	balance, err = ledger.AvailableBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("2.5")))
}

func TestAvailableBalanceDeductsLiveWithdrawals(t *testing.T) {
	store := newFakeStore()
	ledger := NewLedgerService(store)
	store.addPaidInvoice(1, dec("3.0"))

	svc := newWithdrawalService(newFakeGateway(), store)
	wd, err := svc.Create(context.Background(), 1, "zs-dest", dec("1.0"))
	require.NoError(t, err)

	balance, err := ledger.AvailableBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("2.0")), "pending withdrawals hold their funds")

	// A failed settlement releases the funds.
	gw := newFakeGateway()
	gw.pollStatus.Status = zrpc.OpFailed
	failSvc := newWithdrawalService(gw, store)
	_, err = failSvc.Process(context.Background(), wd.ID)
	require.NoError(t, err)

	balance, err = ledger.AvailableBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("3.0")))
}

func TestAvailableBalanceIsPerUser(t *testing.T) {
	store := newFakeStore()
	store.users[2] = true
	ledger := NewLedgerService(store)

	store.addPaidInvoice(1, dec("2.0"))
	store.addPaidInvoice(2, dec("7.0"))

	balance, err := ledger.AvailableBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("2.0")))
}
