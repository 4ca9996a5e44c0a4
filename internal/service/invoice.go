package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shieldpay/shieldpay/internal/models"
	"github.com/shieldpay/shieldpay/internal/zrpc"
)

type invoiceGateway interface {
	NewAddress(ctx context.Context) (string, error)
	ReceivedAt(ctx context.Context, address string, minConf int) ([]zrpc.Receipt, error)
}

type invoiceRepository interface {
	CreateInvoice(ctx context.Context, inv *models.Invoice) (*models.Invoice, error)
	GetInvoice(ctx context.Context, invoiceID int) (*models.Invoice, error)
	InvoicesByUser(ctx context.Context, userID int) ([]models.Invoice, error)
	MarkInvoicePaid(ctx context.Context, invoiceID int, amount decimal.Decimal, txid string, paidAt time.Time) (bool, error)
	ExpireInvoice(ctx context.Context, invoiceID int) (bool, error)
	CancelInvoice(ctx context.Context, invoiceID int) (bool, error)
	UserExists(ctx context.Context, userID int) (bool, error)
}

// InvoiceService owns the invoice lifecycle: pending → paid on detected
// funds, pending → expired past the deadline, pending → cancelled on
// request. Terminal states accept no further transitions.
type InvoiceService struct {
	gw      invoiceGateway
	repo    invoiceRepository
	minConf int
	now     func() time.Time
}

func NewInvoiceService(gw invoiceGateway, repo invoiceRepository, minConf int) *InvoiceService {
	return &InvoiceService{
		gw:      gw,
		repo:    repo,
		minConf: minConf,
		now:     time.Now,
	}
}

func (s *InvoiceService) Create(ctx context.Context, userID int, kind string, amount decimal.Decimal, itemRef string, expiresAt *time.Time) (*models.Invoice, error) {
	if amount.Sign() <= 0 {
		return nil, models.NewValidationError("amount", "must be positive")
	}
	if kind != models.InvoiceKindSubscription && kind != models.InvoiceKindOneTime {
		return nil, models.NewValidationError("kind", "must be subscription or one_time")
	}
	if kind == models.InvoiceKindOneTime && expiresAt != nil {
		return nil, models.NewValidationError("expires_at", "only subscription invoices expire")
	}

	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("checking user %d: %w", userID, err)
	}
	if !exists {
		return nil, models.NewValidationError("user", "unknown user")
	}

	inv := &models.Invoice{
		UserID:    userID,
		Kind:      kind,
		ItemRef:   itemRef,
		Amount:    amount,
		ExpiresAt: expiresAt,
	}

	// The node never repeats addresses; the unique index is a backstop.
	// One retry with a fresh address covers the backstop firing.
	for attempt := 0; attempt < 2; attempt++ {
		inv.Address, err = s.gw.NewAddress(ctx)
		if err != nil {
			return nil, fmt.Errorf("generating receiving address: %w", err)
		}

		created, err := s.repo.CreateInvoice(ctx, inv)
		if errors.Is(err, models.ErrAddressInUse) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("persisting invoice: %w", err)
		}
		return created, nil
	}
	return nil, models.ErrAddressInUse
}

// CheckResult is the outcome of a payment check.
type CheckResult struct {
	Paid    bool
	Invoice *models.Invoice
}

// CheckPayment queries the node for funds received at the invoice address
// and marks the invoice paid once the receipts sum to at least the requested
// amount. Overpayment is recorded as received. The transition is guarded by
// a conditional update, so concurrent checks converge on one winner and the
// losers observe the stored result.
func (s *InvoiceService) CheckPayment(ctx context.Context, invoiceID int) (*CheckResult, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status == models.InvoicePaid {
		return &CheckResult{Paid: true, Invoice: inv}, nil
	}
	if inv.Terminal() {
		return &CheckResult{Paid: false, Invoice: inv}, nil
	}

	receipts, err := s.gw.ReceivedAt(ctx, inv.Address, s.minConf)
	if err != nil {
		return nil, fmt.Errorf("listing receipts for invoice %d: %w", invoiceID, err)
	}

	total := decimal.Zero
	for _, r := range receipts {
		total = total.Add(r.Amount)
	}
	if total.LessThan(inv.Amount) {
		return &CheckResult{Paid: false, Invoice: inv}, nil
	}

	won, err := s.repo.MarkInvoicePaid(ctx, invoiceID, total, representativeTxID(receipts), s.now())
	if err != nil {
		return nil, fmt.Errorf("marking invoice %d paid: %w", invoiceID, err)
	}

	inv, err = s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !won && inv.Status != models.InvoicePaid {
		// Lost to an expire/cancel, not to another payment check.
		return &CheckResult{Paid: false, Invoice: inv}, nil
	}
	return &CheckResult{Paid: true, Invoice: inv}, nil
}

// representativeTxID picks the receipt with the largest amount, breaking
// ties by smallest txid, so the recorded reference is deterministic
// regardless of node ordering.
func representativeTxID(receipts []zrpc.Receipt) string {
	best := receipts[0]
	for _, r := range receipts[1:] {
		if r.Amount.GreaterThan(best.Amount) || (r.Amount.Equal(best.Amount) && r.TxID < best.TxID) {
			best = r
		}
	}
	return best.TxID
}

// Expire moves a pending invoice past its deadline to expired.
func (s *InvoiceService) Expire(ctx context.Context, invoiceID int) (*models.Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Terminal() {
		return inv, models.ErrNotPending
	}
	if inv.ExpiresAt == nil || inv.ExpiresAt.After(s.now()) {
		return inv, models.ErrNotExpirable
	}

	ok, err := s.repo.ExpireInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("expiring invoice %d: %w", invoiceID, err)
	}
	inv, getErr := s.repo.GetInvoice(ctx, invoiceID)
	if getErr != nil {
		return nil, getErr
	}
	if !ok {
		return inv, models.ErrNotPending
	}
	return inv, nil
}

// Cancel moves a pending invoice to cancelled.
func (s *InvoiceService) Cancel(ctx context.Context, invoiceID int) (*models.Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Terminal() {
		return inv, models.ErrNotPending
	}

	ok, err := s.repo.CancelInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("cancelling invoice %d: %w", invoiceID, err)
	}
	inv, getErr := s.repo.GetInvoice(ctx, invoiceID)
	if getErr != nil {
		return nil, getErr
	}
	if !ok {
		return inv, models.ErrNotPending
	}
	return inv, nil
}

func (s *InvoiceService) Get(ctx context.Context, invoiceID int) (*models.Invoice, error) {
	return s.repo.GetInvoice(ctx, invoiceID)
}

func (s *InvoiceService) ListByUser(ctx context.Context, userID int) ([]models.Invoice, error) {
	return s.repo.InvoicesByUser(ctx, userID)
}
