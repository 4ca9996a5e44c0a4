package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldpay/shieldpay/internal/models"
	"github.com/shieldpay/shieldpay/internal/zrpc"
)

func TestSweepSettlesAndExpires(t *testing.T) {
	gw := newFakeGateway()
	store := newFakeStore()
	invoices := NewInvoiceService(gw, store, 1)
	sweeper := NewSweeper(invoices, store, time.Minute, 2)

	funded, err := invoices.Create(context.Background(), 1, models.InvoiceKindOneTime, dec("1.0"), "sub-1", nil)
	require.NoError(t, err)
	gw.receipts[funded.Address] = []zrpc.Receipt{{TxID: "tx-funded", Amount: dec("1.0")}}

	pastDue := time.Now().Add(-time.Hour)
	stale, err := invoices.Create(context.Background(), 1, models.InvoiceKindSubscription, dec("2.0"), "sub-2", &pastDue)
	require.NoError(t, err)

	// Funds that landed right before the deadline must still win.
	lateFunded, err := invoices.Create(context.Background(), 1, models.InvoiceKindSubscription, dec("0.5"), "sub-3", &pastDue)
	require.NoError(t, err)
	gw.receipts[lateFunded.Address] = []zrpc.Receipt{{TxID: "tx-late", Amount: dec("0.5")}}

	sweeper.sweep(context.Background())

	got, err := store.GetInvoice(context.Background(), funded.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePaid, got.Status)

	got, err = store.GetInvoice(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceExpired, got.Status)

	got, err = store.GetInvoice(context.Background(), lateFunded.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePaid, got.Status)
}

func TestSweepLeavesUnderfundedPending(t *testing.T) {
	gw := newFakeGateway()
	store := newFakeStore()
	invoices := NewInvoiceService(gw, store, 1)
	sweeper := NewSweeper(invoices, store, time.Minute, 1)

	inv, err := invoices.Create(context.Background(), 1, models.InvoiceKindOneTime, dec("2.0"), "sub-1", nil)
	require.NoError(t, err)
	gw.receipts[inv.Address] = []zrpc.Receipt{{TxID: "tx-part", Amount: dec("0.5")}}

	sweeper.sweep(context.Background())

	got, err := store.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePending, got.Status)
}

func TestSweepRunStopsOnContextCancel(t *testing.T) {
	gw := newFakeGateway()
	store := newFakeStore()
	invoices := NewInvoiceService(gw, store, 1)
	sweeper := NewSweeper(invoices, store, time.Millisecond, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
