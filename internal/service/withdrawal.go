package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shieldpay/shieldpay/internal/logging"
	"github.com/shieldpay/shieldpay/internal/models"
	"github.com/shieldpay/shieldpay/internal/zrpc"
)

type settlementGateway interface {
	ValidateAddress(ctx context.Context, address string) (bool, error)
	SubmitTransfer(ctx context.Context, destination string, amount, fee decimal.Decimal) (string, error)
	PollUntilTerminal(ctx context.Context, operationID string, maxAttempts int, interval time.Duration) (zrpc.OperationStatus, error)
}

type withdrawalRepository interface {
	CreateWithdrawal(ctx context.Context, userID int, address string, amount, fee, net decimal.Decimal) (*models.Withdrawal, error)
	GetWithdrawal(ctx context.Context, withdrawalID int) (*models.Withdrawal, error)
	WithdrawalsByUser(ctx context.Context, userID int) ([]models.Withdrawal, error)
	BeginProcessing(ctx context.Context, withdrawalID int) (bool, error)
	SetWithdrawalOperation(ctx context.Context, withdrawalID int, operationID string) error
	FinalizeWithdrawal(ctx context.Context, withdrawalID int, status string, txid *string, processedAt time.Time) (bool, error)
	InsertAudit(ctx context.Context, entry models.AuditEntry) error
	AuditByWithdrawal(ctx context.Context, withdrawalID int) ([]models.AuditEntry, error)
}

// WithdrawalService settles outbound transfers: it validates requests
// against the projected balance, splits the fee, submits the transfer and
// reconciles the asynchronous outcome.
type WithdrawalService struct {
	gw           settlementGateway
	repo         withdrawalRepository
	fees         FeePolicy
	pollAttempts int
	pollInterval time.Duration
	now          func() time.Time
}

func NewWithdrawalService(gw settlementGateway, repo withdrawalRepository, fees FeePolicy, pollAttempts int, pollInterval time.Duration) *WithdrawalService {
	return &WithdrawalService{
		gw:           gw,
		repo:         repo,
		fees:         fees,
		pollAttempts: pollAttempts,
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

// EstimateFee exposes the fee split without committing anything.
func (s *WithdrawalService) EstimateFee(amount decimal.Decimal) (fee, net decimal.Decimal, err error) {
	return s.fees.Estimate(amount)
}

// Create validates and persists a withdrawal request. The transfer is never
// submitted here; Process does that.
func (s *WithdrawalService) Create(ctx context.Context, userID int, destination string, amount decimal.Decimal) (*models.Withdrawal, error) {
	if amount.Sign() <= 0 {
		return nil, models.NewValidationError("amount", "must be positive")
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, models.NewValidationError("address", "must not be empty")
	}

	valid, err := s.gw.ValidateAddress(ctx, destination)
	if err != nil {
		return nil, fmt.Errorf("validating destination address: %w", err)
	}
	if !valid {
		return nil, models.ErrInvalidAddress
	}

	fee, net, err := s.fees.Estimate(amount)
	if err != nil {
		return nil, err
	}

	// Balance check and insert happen in one locked transaction in the store.
	wd, err := s.repo.CreateWithdrawal(ctx, userID, destination, amount, fee, net)
	if err != nil {
		return nil, err
	}
	return wd, nil
}

// Process settles one withdrawal. The pending → processing transition is a
// conditional update taken before any node call, so concurrent calls on the
// same id submit at most one transfer; losers get ErrNotPending along with
// the current row.
func (s *WithdrawalService) Process(ctx context.Context, withdrawalID int) (*models.Withdrawal, error) {
	// Read before claiming: once the claim succeeds there is no retry path
	// back to pending, so everything the settlement needs must already be in
	// hand. A read failure here leaves the row pending and retryable.
	wd, err := s.repo.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}

	claimed, err := s.repo.BeginProcessing(ctx, withdrawalID)
	if err != nil {
		return nil, fmt.Errorf("claiming withdrawal %d: %w", withdrawalID, err)
	}
	if !claimed {
		wd, getErr := s.repo.GetWithdrawal(ctx, withdrawalID)
		if getErr != nil {
			return nil, getErr
		}
		return wd, models.ErrNotPending
	}

	operationID, err := s.gw.SubmitTransfer(ctx, wd.Address, wd.Net, s.fees.Network)
	if err != nil {
		detail := fmt.Sprintf("transfer submission failed: %v", err)
		return s.finalize(ctx, withdrawalID, models.WithdrawalFailed, nil, models.AuditNodeFailure, detail)
	}

	if err := s.repo.SetWithdrawalOperation(ctx, withdrawalID, operationID); err != nil {
		logging.Sugar.Errorw("Error recording operation id", "withdrawal", withdrawalID, "operation", operationID, "error", err)
	}

	status, err := s.gw.PollUntilTerminal(ctx, operationID, s.pollAttempts, s.pollInterval)
	if err != nil {
		// Exhausted polling means the outcome is unknown, not that the
		// transfer failed: the node may still execute it. Operators
		// reconcile from the audit trail.
		var timeout *zrpc.TimeoutError
		detail := fmt.Sprintf("operation %s: outcome unknown: %v", operationID, err)
		if errors.As(err, &timeout) {
			detail = fmt.Sprintf("operation %s not terminal after %d attempts; reconcile against the node", operationID, timeout.Attempts)
		}
		return s.finalize(ctx, withdrawalID, models.WithdrawalFailed, nil, models.AuditUnknownOutcome, detail)
	}

	if status.Status == zrpc.OpFailed {
		detail := fmt.Sprintf("operation %s failed: %s", operationID, status.Error.Message)
		return s.finalize(ctx, withdrawalID, models.WithdrawalFailed, nil, models.AuditNodeFailure, detail)
	}

	txid := status.Result.TxID
	return s.finalize(ctx, withdrawalID, models.WithdrawalSent, &txid, models.AuditTransferSent, fmt.Sprintf("confirmed in transaction %s", txid))
}

func (s *WithdrawalService) finalize(ctx context.Context, withdrawalID int, status string, txid *string, event, detail string) (*models.Withdrawal, error) {
	if _, err := s.repo.FinalizeWithdrawal(ctx, withdrawalID, status, txid, s.now()); err != nil {
		return nil, fmt.Errorf("finalizing withdrawal %d: %w", withdrawalID, err)
	}

	if err := s.repo.InsertAudit(ctx, models.AuditEntry{
		WithdrawalID: withdrawalID,
		Event:        event,
		Detail:       detail,
	}); err != nil {
		logging.Sugar.Errorw("Error writing audit entry", "withdrawal", withdrawalID, "event", event, "error", err)
	}

	return s.repo.GetWithdrawal(ctx, withdrawalID)
}

// Outcome is the per-id result of a batch run.
type Outcome struct {
	WithdrawalID int
	Withdrawal   *models.Withdrawal
	Err          error
}

// ProcessBatch settles each withdrawal independently, preserving input
// order. One failure never aborts the rest.
func (s *WithdrawalService) ProcessBatch(ctx context.Context, withdrawalIDs []int) []Outcome {
	outcomes := make([]Outcome, 0, len(withdrawalIDs))
	for _, id := range withdrawalIDs {
		wd, err := s.Process(ctx, id)
		if err != nil {
			logging.Sugar.Errorw("Error processing withdrawal", "withdrawal", id, "error", err)
		}
		outcomes = append(outcomes, Outcome{WithdrawalID: id, Withdrawal: wd, Err: err})
	}
	return outcomes
}

func (s *WithdrawalService) ListByUser(ctx context.Context, userID int) ([]models.Withdrawal, error) {
	return s.repo.WithdrawalsByUser(ctx, userID)
}

func (s *WithdrawalService) AuditTrail(ctx context.Context, withdrawalID int) ([]models.AuditEntry, error) {
	return s.repo.AuditByWithdrawal(ctx, withdrawalID)
}
