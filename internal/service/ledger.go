package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

type balanceRepository interface {
	AvailableBalance(ctx context.Context, userID int) (decimal.Decimal, error)
}

// LedgerService projects a user's withdrawable balance from the append-only
// history of paid invoices and live withdrawals. The store computes the sum
// in a single statement so the figure comes from one snapshot.
type LedgerService struct {
	repo balanceRepository
}

func NewLedgerService(repo balanceRepository) *LedgerService {
	return &LedgerService{repo: repo}
}

func (l *LedgerService) AvailableBalance(ctx context.Context, userID int) (decimal.Decimal, error) {
	balance, err := l.repo.AvailableBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("projecting balance for user %d: %w", userID, err)
	}
	return balance, nil
}
