package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shieldpay/shieldpay/internal/logging"
	"github.com/shieldpay/shieldpay/internal/models"
)

const sweepBatchLimit = 100

type sweepRepository interface {
	PendingInvoices(ctx context.Context, limit int) ([]models.Invoice, error)
}

// Sweeper periodically drives the invoice lifecycle without client calls:
// it re-checks pending invoices for payment and expires past-due
// subscription invoices.
type Sweeper struct {
	invoices *InvoiceService
	repo     sweepRepository
	interval time.Duration
	workers  int
	now      func() time.Time
}

func NewSweeper(invoices *InvoiceService, repo sweepRepository, interval time.Duration, workers int) *Sweeper {
	if workers <= 0 {
		workers = 1
	}
	return &Sweeper{
		invoices: invoices,
		repo:     repo,
		interval: interval,
		workers:  workers,
		now:      time.Now,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			logging.Sugar.Infow("Invoice sweep finished")
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	invoices, err := s.repo.PendingInvoices(ctx, sweepBatchLimit)
	if err != nil {
		logging.Sugar.Errorw("Error fetching pending invoices", "error", err)
		return
	}
	if len(invoices) == 0 {
		return
	}

	var wg sync.WaitGroup
	jobs := make(chan models.Invoice, len(invoices))

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for inv := range jobs {
				s.sweepOne(ctx, inv)
			}
		}()
	}

	for _, inv := range invoices {
		jobs <- inv
	}

	close(jobs)
	wg.Wait()
}

func (s *Sweeper) sweepOne(ctx context.Context, inv models.Invoice) {
	if inv.ExpiresAt != nil && inv.ExpiresAt.Before(s.now()) {
		// A payment may have landed just before the deadline; check once
		// more so a funded invoice never expires.
		result, err := s.invoices.CheckPayment(ctx, inv.ID)
		if err != nil {
			logging.Sugar.Errorw("Error checking payment before expiry", "invoice", inv.ID, "error", err)
			return
		}
		if result.Paid {
			return
		}

		if _, err := s.invoices.Expire(ctx, inv.ID); err != nil && !errors.Is(err, models.ErrNotPending) {
			logging.Sugar.Errorw("Error expiring invoice", "invoice", inv.ID, "error", err)
		}
		return
	}

	if _, err := s.invoices.CheckPayment(ctx, inv.ID); err != nil {
		logging.Sugar.Errorw("Error checking invoice payment", "invoice", inv.ID, "error", err)
	}
}
