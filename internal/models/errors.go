package models

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateLogin      = errors.New("user with this login already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrWithdrawalNotFound  = errors.New("withdrawal not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAddress      = errors.New("invalid destination address")
	ErrAddressInUse        = errors.New("receiving address already in use")
	ErrNotPending          = errors.New("record is not pending")
	ErrNotExpirable        = errors.New("invoice is not past its expiry")
)

// ValidationError marks bad client input. It is never retried and maps to a
// rejected request upstream.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
