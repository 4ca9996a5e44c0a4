package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	InvoiceKindSubscription = "subscription"
	InvoiceKindOneTime      = "one_time"
)

const (
	InvoicePending   = "pending"
	InvoicePaid      = "paid"
	InvoiceExpired   = "expired"
	InvoiceCancelled = "cancelled"
)

const (
	WithdrawalPending    = "pending"
	WithdrawalProcessing = "processing"
	WithdrawalSent       = "sent"
	WithdrawalFailed     = "failed"
)

type User struct {
	ID        int       `json:"id"`
	Login     string    `json:"login"`
	Password  string    `json:"password,omitempty"`
	Name      string    `json:"name,omitempty"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Invoice struct {
	ID         int
	UserID     int
	Kind       string
	ItemRef    string
	Amount     decimal.Decimal
	Address    string
	Status     string
	PaidTxID   *string
	PaidAmount *decimal.Decimal
	PaidAt     *time.Time
	ExpiresAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Terminal reports whether the invoice accepts no further transitions.
func (i Invoice) Terminal() bool {
	return i.Status != InvoicePending
}

type Withdrawal struct {
	ID          int
	UserID      int
	Amount      decimal.Decimal
	Fee         decimal.Decimal
	Net         decimal.Decimal
	Address     string
	Status      string
	OperationID *string
	TxID        *string
	RequestedAt time.Time
	ProcessedAt *time.Time
}

// AuditEntry is an operator-visible trail record attached to a withdrawal.
type AuditEntry struct {
	ID           int
	WithdrawalID int
	Event        string
	Detail       string
	CreatedAt    time.Time
}

// Audit events recorded when a withdrawal reaches a terminal state.
// An unknown_outcome entry means polling gave up without a terminal answer
// from the node: the transfer may still have happened and must be reconciled
// by an operator.
const (
	AuditTransferSent   = "transfer_sent"
	AuditNodeFailure    = "node_failure"
	AuditUnknownOutcome = "unknown_outcome"
)
