package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shieldpay/shieldpay/internal/models"
	"github.com/shieldpay/shieldpay/internal/zrpc"
)

// fakeStore is an in-memory stand-in for the postgres store. Its conditional
// transitions mirror the real rows-affected semantics so races can be
// exercised without a database.
type fakeStore struct {
	mu          sync.Mutex
	users       map[int]bool
	invoices    map[int]*models.Invoice
	withdrawals map[int]*models.Withdrawal
	audits      []models.AuditEntry
	nextID      int

	paidWins int

	getWithdrawalErr error // returned once by GetWithdrawal, then cleared
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       map[int]bool{1: true},
		invoices:    map[int]*models.Invoice{},
		withdrawals: map[int]*models.Withdrawal{},
	}
}

func (f *fakeStore) id() int {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) addPaidInvoice(userID int, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	now := time.Now()
	txid := fmt.Sprintf("tx-%d", id)
	f.invoices[id] = &models.Invoice{
		ID: id, UserID: userID, Kind: models.InvoiceKindOneTime,
		Amount: amount, Address: fmt.Sprintf("zs-seed-%d", id),
		Status: models.InvoicePaid, PaidAmount: &amount, PaidTxID: &txid, PaidAt: &now,
	}
}

func (f *fakeStore) UserExists(_ context.Context, userID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[userID], nil
}

func (f *fakeStore) CreateInvoice(_ context.Context, inv *models.Invoice) (*models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.invoices {
		if existing.Address == inv.Address {
			// Wrapped like a real query error would be.
			return nil, fmt.Errorf("persisting invoice: %w", models.ErrAddressInUse)
		}
	}
	created := *inv
	created.ID = f.id()
	created.Status = models.InvoicePending
	created.CreatedAt = time.Now()
	f.invoices[created.ID] = &created
	copied := created
	return &copied, nil
}

func (f *fakeStore) GetInvoice(_ context.Context, invoiceID int) (*models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[invoiceID]
	if !ok {
		return nil, models.ErrInvoiceNotFound
	}
	copied := *inv
	return &copied, nil
}

func (f *fakeStore) InvoicesByUser(_ context.Context, userID int) ([]models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Invoice
	for _, inv := range f.invoices {
		if inv.UserID == userID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (f *fakeStore) PendingInvoices(_ context.Context, limit int) ([]models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Invoice
	for _, inv := range f.invoices {
		if inv.Status == models.InvoicePending && len(out) < limit {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkInvoicePaid(_ context.Context, invoiceID int, amount decimal.Decimal, txid string, paidAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[invoiceID]
	if !ok || inv.Status != models.InvoicePending {
		return false, nil
	}
	inv.Status = models.InvoicePaid
	inv.PaidAmount = &amount
	inv.PaidTxID = &txid
	inv.PaidAt = &paidAt
	f.paidWins++
	return true, nil
}

func (f *fakeStore) ExpireInvoice(_ context.Context, invoiceID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[invoiceID]
	if !ok || inv.Status != models.InvoicePending ||
		inv.ExpiresAt == nil || inv.ExpiresAt.After(time.Now()) {
		return false, nil
	}
	inv.Status = models.InvoiceExpired
	return true, nil
}

func (f *fakeStore) CancelInvoice(_ context.Context, invoiceID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[invoiceID]
	if !ok || inv.Status != models.InvoicePending {
		return false, nil
	}
	inv.Status = models.InvoiceCancelled
	return true, nil
}

func (f *fakeStore) balanceLocked(userID int) decimal.Decimal {
	balance := decimal.Zero
	for _, inv := range f.invoices {
		if inv.UserID == userID && inv.Status == models.InvoicePaid && inv.PaidAmount != nil {
			balance = balance.Add(*inv.PaidAmount)
		}
	}
	for _, wd := range f.withdrawals {
		if wd.UserID == userID && wd.Status != models.WithdrawalFailed {
			balance = balance.Sub(wd.Amount)
		}
	}
	return balance
}

func (f *fakeStore) AvailableBalance(_ context.Context, userID int) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balanceLocked(userID), nil
}

func (f *fakeStore) CreateWithdrawal(_ context.Context, userID int, address string, amount, fee, net decimal.Decimal) (*models.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.users[userID] {
		return nil, models.ErrUserNotFound
	}
	if f.balanceLocked(userID).LessThan(amount) {
		return nil, models.ErrInsufficientBalance
	}
	wd := &models.Withdrawal{
		ID: f.id(), UserID: userID, Amount: amount, Fee: fee, Net: net,
		Address: address, Status: models.WithdrawalPending, RequestedAt: time.Now(),
	}
	f.withdrawals[wd.ID] = wd
	copied := *wd
	return &copied, nil
}

func (f *fakeStore) GetWithdrawal(_ context.Context, withdrawalID int) (*models.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getWithdrawalErr != nil {
		err := f.getWithdrawalErr
		f.getWithdrawalErr = nil
		return nil, err
	}
	wd, ok := f.withdrawals[withdrawalID]
	if !ok {
		return nil, models.ErrWithdrawalNotFound
	}
	copied := *wd
	return &copied, nil
}

func (f *fakeStore) WithdrawalsByUser(_ context.Context, userID int) ([]models.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Withdrawal
	for _, wd := range f.withdrawals {
		if wd.UserID == userID {
			out = append(out, *wd)
		}
	}
	return out, nil
}

func (f *fakeStore) BeginProcessing(_ context.Context, withdrawalID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wd, ok := f.withdrawals[withdrawalID]
	if !ok || wd.Status != models.WithdrawalPending {
		return false, nil
	}
	wd.Status = models.WithdrawalProcessing
	return true, nil
}

func (f *fakeStore) SetWithdrawalOperation(_ context.Context, withdrawalID int, operationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if wd, ok := f.withdrawals[withdrawalID]; ok {
		wd.OperationID = &operationID
	}
	return nil
}

func (f *fakeStore) FinalizeWithdrawal(_ context.Context, withdrawalID int, status string, txid *string, processedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wd, ok := f.withdrawals[withdrawalID]
	if !ok || wd.Status != models.WithdrawalProcessing {
		return false, nil
	}
	wd.Status = status
	wd.TxID = txid
	wd.ProcessedAt = &processedAt
	return true, nil
}

func (f *fakeStore) InsertAudit(_ context.Context, entry models.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = len(f.audits) + 1
	entry.CreatedAt = time.Now()
	f.audits = append(f.audits, entry)
	return nil
}

func (f *fakeStore) AuditByWithdrawal(_ context.Context, withdrawalID int) ([]models.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AuditEntry
	for _, e := range f.audits {
		if e.WithdrawalID == withdrawalID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeGateway implements both gateway interfaces with scripted answers.
type fakeGateway struct {
	mu sync.Mutex

	addrSeq      int
	receipts     map[string][]zrpc.Receipt
	receivedAtN  int
	invalidAddrs map[string]bool

	submitCount int
	submitErr   error
	pollStatus  zrpc.OperationStatus
	pollErr     error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		receipts:     map[string][]zrpc.Receipt{},
		invalidAddrs: map[string]bool{},
		pollStatus:   zrpc.OperationStatus{Status: zrpc.OpSuccess},
	}
}

func (g *fakeGateway) NewAddress(_ context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addrSeq++
	return fmt.Sprintf("zs-addr-%d", g.addrSeq), nil
}

func (g *fakeGateway) ReceivedAt(_ context.Context, address string, _ int) ([]zrpc.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.receivedAtN++
	return g.receipts[address], nil
}

func (g *fakeGateway) ValidateAddress(_ context.Context, address string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.invalidAddrs[address], nil
}

func (g *fakeGateway) SubmitTransfer(_ context.Context, _ string, _, _ decimal.Decimal) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitErr != nil {
		return "", g.submitErr
	}
	g.submitCount++
	return fmt.Sprintf("opid-%d", g.submitCount), nil
}

func (g *fakeGateway) PollUntilTerminal(_ context.Context, operationID string, maxAttempts int, _ time.Duration) (zrpc.OperationStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pollErr != nil {
		var timeout *zrpc.TimeoutError
		if errors.As(g.pollErr, &timeout) {
			timeout.OperationID = operationID
			timeout.Attempts = maxAttempts
		}
		return zrpc.OperationStatus{}, g.pollErr
	}
	status := g.pollStatus
	status.ID = operationID
	return status, nil
}
