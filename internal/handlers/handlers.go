package handlers

import (
	"errors"
	"net/http"

	"github.com/shieldpay/shieldpay/internal/logging"
	"github.com/shieldpay/shieldpay/internal/models"
)

// writeServiceError maps domain errors onto HTTP statuses. Validation
// problems and insufficient balance are client errors with a reason string;
// everything unexpected is a 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var validation *models.ValidationError
	switch {
	case errors.As(err, &validation):
		http.Error(w, validation.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrInvalidAddress):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, models.ErrInsufficientBalance):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, models.ErrInvoiceNotFound),
		errors.Is(err, models.ErrWithdrawalNotFound),
		errors.Is(err, models.ErrUserNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrNotPending), errors.Is(err, models.ErrNotExpirable):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logging.Sugar.Errorw("Internal error", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
