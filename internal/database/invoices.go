package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/shieldpay/shieldpay/internal/models"
)

const invoiceColumns = `id, user_id, kind, item_ref, amount, address, status,
	paid_txid, paid_amount, paid_at, expires_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	var inv models.Invoice
	err := row.Scan(&inv.ID, &inv.UserID, &inv.Kind, &inv.ItemRef, &inv.Amount,
		&inv.Address, &inv.Status, &inv.PaidTxID, &inv.PaidAmount, &inv.PaidAt,
		&inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv *models.Invoice) (*models.Invoice, error) {
	query := `INSERT INTO invoices (user_id, kind, item_ref, amount, address, expires_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING ` + invoiceColumns

	created, err := scanInvoice(s.db.QueryRow(ctx, query,
		inv.UserID, inv.Kind, inv.ItemRef, inv.Amount, inv.Address, inv.ExpiresAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrAddressInUse
		}
		return nil, err
	}
	return created, nil
}

func (s *Store) GetInvoice(ctx context.Context, invoiceID int) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	return scanInvoice(s.db.QueryRow(ctx, query, invoiceID))
}

func (s *Store) InvoicesByUser(ctx context.Context, userID int) ([]models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// PendingInvoices returns pending invoices for the background sweep, oldest
// first, bounded by limit.
func (s *Store) PendingInvoices(ctx context.Context, limit int) ([]models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
			  WHERE status = 'pending'
			  ORDER BY created_at ASC
			  LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// MarkInvoicePaid transitions the invoice to paid only while it is still
// pending. The rows-affected count tells the caller whether it won the race.
func (s *Store) MarkInvoicePaid(ctx context.Context, invoiceID int, amount decimal.Decimal, txid string, paidAt time.Time) (bool, error) {
	query := `UPDATE invoices
			  SET status = 'paid', paid_amount = $1, paid_txid = $2, paid_at = $3, updated_at = CURRENT_TIMESTAMP
			  WHERE id = $4 AND status = 'pending'`

	tag, err := s.db.Exec(ctx, query, amount, txid, paidAt, invoiceID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireInvoice transitions a pending invoice past its deadline to expired.
func (s *Store) ExpireInvoice(ctx context.Context, invoiceID int) (bool, error) {
	query := `UPDATE invoices
			  SET status = 'expired', updated_at = CURRENT_TIMESTAMP
			  WHERE id = $1 AND status = 'pending'
			    AND expires_at IS NOT NULL AND expires_at < CURRENT_TIMESTAMP`

	tag, err := s.db.Exec(ctx, query, invoiceID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CancelInvoice transitions a pending invoice to cancelled.
func (s *Store) CancelInvoice(ctx context.Context, invoiceID int) (bool, error) {
	query := `UPDATE invoices
			  SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP
			  WHERE id = $1 AND status = 'pending'`

	tag, err := s.db.Exec(ctx, query, invoiceID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
