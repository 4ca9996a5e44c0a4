package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shieldpay/shieldpay/internal/models"
)

// Store wraps the postgres pool with the queries the services consume.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func CreateTables(ctx context.Context, db *pgxpool.Pool) error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		login TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		email TEXT UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS invoices (
		id SERIAL PRIMARY KEY,
		user_id INT REFERENCES users(id) ON DELETE CASCADE,
		kind TEXT NOT NULL CHECK (kind IN ('subscription', 'one_time')),
		item_ref TEXT NOT NULL DEFAULT '',
		amount NUMERIC(20, 8) NOT NULL CHECK (amount > 0),
		address TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		paid_txid TEXT,
		paid_amount NUMERIC(20, 8),
		paid_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_address ON invoices (address);
	CREATE TABLE IF NOT EXISTS withdrawals (
		id SERIAL PRIMARY KEY,
		user_id INT REFERENCES users(id) ON DELETE CASCADE,
		amount NUMERIC(20, 8) NOT NULL CHECK (amount > 0),
		fee NUMERIC(20, 8) NOT NULL CHECK (fee >= 0),
		net NUMERIC(20, 8) NOT NULL CHECK (net > 0),
		address TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		operation_id TEXT,
		txid TEXT,
		requested_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		processed_at TIMESTAMPTZ
	);
	CREATE TABLE IF NOT EXISTS audit_log (
		id SERIAL PRIMARY KEY,
		withdrawal_id INT NOT NULL,
		event TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("unable to create tables: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) (int, error) {
	query := `INSERT INTO users (login, password, name, email)
			  VALUES ($1, $2, $3, $4)
			  ON CONFLICT (login) DO NOTHING
			  RETURNING id
			  `

	var userID int
	err := s.db.QueryRow(ctx, query, user.Login, user.Password, user.Name, user.Email).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, models.ErrDuplicateLogin
		}
		return 0, err
	}

	return userID, nil
}

func (s *Store) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	var user models.User
	query := `SELECT id, login, password, name, email FROM users WHERE login = $1`

	err := s.db.QueryRow(ctx, query, login).Scan(&user.ID, &user.Login, &user.Password, &user.Name, &user.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) UserExists(ctx context.Context, userID int) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`

	if err := s.db.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) UpdateUserProfile(ctx context.Context, userID int, name string, email *string) error {
	query := `UPDATE users
			  SET name = $1, email = $2, updated_at = CURRENT_TIMESTAMP
			  WHERE id = $3`

	tag, err := s.db.Exec(ctx, query, name, email, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.NewValidationError("email", "already taken")
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrUserNotFound
	}
	return nil
}
