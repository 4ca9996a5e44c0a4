package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/shieldpay/shieldpay/internal/models"
)

const withdrawalColumns = `id, user_id, amount, fee, net, address, status,
	operation_id, txid, requested_at, processed_at`

const balanceQuery = `
	SELECT COALESCE((SELECT SUM(paid_amount) FROM invoices
					 WHERE user_id = $1 AND status = 'paid'), 0)
		 - COALESCE((SELECT SUM(amount) FROM withdrawals
					 WHERE user_id = $1 AND status IN ('pending', 'processing', 'sent')), 0)`

func scanWithdrawal(row pgx.Row) (*models.Withdrawal, error) {
	var wd models.Withdrawal
	err := row.Scan(&wd.ID, &wd.UserID, &wd.Amount, &wd.Fee, &wd.Net, &wd.Address,
		&wd.Status, &wd.OperationID, &wd.TxID, &wd.RequestedAt, &wd.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &wd, nil
}

// AvailableBalance computes the user's withdrawable balance from one
// snapshot: paid invoices minus withdrawals that hold or spent funds.
func (s *Store) AvailableBalance(ctx context.Context, userID int) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if err := s.db.QueryRow(ctx, balanceQuery, userID).Scan(&balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// CreateWithdrawal inserts the withdrawal only if the balance covers it. The
// balance read and the insert share one transaction holding the user's row
// lock, so two concurrent requests cannot both pass the check against the
// same funds.
func (s *Store) CreateWithdrawal(ctx context.Context, userID int, address string, amount, fee, net decimal.Decimal) (*models.Withdrawal, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var lockedID int
	err = tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, err
	}

	var balance decimal.Decimal
	if err = tx.QueryRow(ctx, balanceQuery, userID).Scan(&balance); err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, models.ErrInsufficientBalance
	}

	query := `INSERT INTO withdrawals (user_id, amount, fee, net, address)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING ` + withdrawalColumns

	wd, err := scanWithdrawal(tx.QueryRow(ctx, query, userID, amount, fee, net, address))
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return wd, nil
}

func (s *Store) GetWithdrawal(ctx context.Context, withdrawalID int) (*models.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`
	return scanWithdrawal(s.db.QueryRow(ctx, query, withdrawalID))
}

func (s *Store) WithdrawalsByUser(ctx context.Context, userID int) ([]models.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals
			  WHERE user_id = $1 ORDER BY requested_at DESC`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var withdrawals []models.Withdrawal
	for rows.Next() {
		wd, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, *wd)
	}
	return withdrawals, rows.Err()
}

// BeginProcessing claims the exclusive right to settle the withdrawal. Only
// the caller that flips pending to processing may submit the transfer.
func (s *Store) BeginProcessing(ctx context.Context, withdrawalID int) (bool, error) {
	query := `UPDATE withdrawals
			  SET status = 'processing'
			  WHERE id = $1 AND status = 'pending'`

	tag, err := s.db.Exec(ctx, query, withdrawalID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetWithdrawalOperation(ctx context.Context, withdrawalID int, operationID string) error {
	query := `UPDATE withdrawals SET operation_id = $1 WHERE id = $2`
	_, err := s.db.Exec(ctx, query, operationID, withdrawalID)
	return err
}

// FinalizeWithdrawal records the terminal outcome of a processing withdrawal.
func (s *Store) FinalizeWithdrawal(ctx context.Context, withdrawalID int, status string, txid *string, processedAt time.Time) (bool, error) {
	query := `UPDATE withdrawals
			  SET status = $1, txid = $2, processed_at = $3
			  WHERE id = $4 AND status = 'processing'`

	tag, err := s.db.Exec(ctx, query, status, txid, processedAt, withdrawalID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) InsertAudit(ctx context.Context, entry models.AuditEntry) error {
	query := `INSERT INTO audit_log (withdrawal_id, event, detail)
			  VALUES ($1, $2, $3)`

	_, err := s.db.Exec(ctx, query, entry.WithdrawalID, entry.Event, entry.Detail)
	return err
}

func (s *Store) AuditByWithdrawal(ctx context.Context, withdrawalID int) ([]models.AuditEntry, error) {
	query := `SELECT id, withdrawal_id, event, detail, created_at
			  FROM audit_log WHERE withdrawal_id = $1 ORDER BY created_at ASC`

	rows, err := s.db.Query(ctx, query, withdrawalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.WithdrawalID, &e.Event, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
