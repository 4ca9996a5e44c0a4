package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shieldpay/shieldpay/internal/auth"
	"github.com/shieldpay/shieldpay/internal/logging"
	"github.com/shieldpay/shieldpay/internal/models"
	"github.com/shieldpay/shieldpay/internal/service"
	"github.com/shieldpay/shieldpay/internal/zrpc"
)

type invoiceResponse struct {
	ID         int              `json:"id"`
	Kind       string           `json:"kind"`
	ItemRef    string           `json:"item_ref,omitempty"`
	Amount     decimal.Decimal  `json:"amount"`
	Address    string           `json:"address"`
	Status     string           `json:"status"`
	PaidTxID   *string          `json:"paid_txid,omitempty"`
	PaidAmount *decimal.Decimal `json:"paid_amount,omitempty"`
	PaidAt     *string          `json:"paid_at,omitempty"`
	ExpiresAt  *string          `json:"expires_at,omitempty"`
	CreatedAt  string           `json:"created_at"`
}

func invoiceResponseFrom(inv *models.Invoice) *invoiceResponse {
	resp := &invoiceResponse{
		ID:         inv.ID,
		Kind:       inv.Kind,
		ItemRef:    inv.ItemRef,
		Amount:     inv.Amount,
		Address:    inv.Address,
		Status:     inv.Status,
		PaidTxID:   inv.PaidTxID,
		PaidAmount: inv.PaidAmount,
		CreatedAt:  inv.CreatedAt.Format(time.RFC3339),
	}
	if inv.PaidAt != nil {
		paidAt := inv.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &paidAt
	}
	if inv.ExpiresAt != nil {
		expiresAt := inv.ExpiresAt.Format(time.RFC3339)
		resp.ExpiresAt = &expiresAt
	}
	return resp
}

type withdrawalResponse struct {
	ID          int             `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	Net         decimal.Decimal `json:"net"`
	Address     string          `json:"address"`
	Status      string          `json:"status"`
	TxID        *string         `json:"txid,omitempty"`
	RequestedAt string          `json:"requested_at"`
	ProcessedAt *string         `json:"processed_at,omitempty"`
}

func withdrawalResponseFrom(wd *models.Withdrawal) *withdrawalResponse {
	resp := &withdrawalResponse{
		ID:          wd.ID,
		Amount:      wd.Amount,
		Fee:         wd.Fee,
		Net:         wd.Net,
		Address:     wd.Address,
		Status:      wd.Status,
		TxID:        wd.TxID,
		RequestedAt: wd.RequestedAt.Format(time.RFC3339),
	}
	if wd.ProcessedAt != nil {
		processedAt := wd.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &processedAt
	}
	return resp
}

func GetInvoices(invoices *service.InvoiceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.AuthGet(r)
		if err != nil || userID == 0 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		list, err := invoices.ListByUser(r.Context(), userID)
		if err != nil {
			logging.Sugar.Errorw("Error fetching invoices", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if len(list) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		response := make([]*invoiceResponse, 0, len(list))
		for i := range list {
			response = append(response, invoiceResponseFrom(&list[i]))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}

func GetBalance(ledger *service.LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.AuthGet(r)
		if err != nil || userID == 0 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		balance, err := ledger.AvailableBalance(r.Context(), userID)
		if err != nil {
			logging.Sugar.Errorw("Error fetching balance", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]decimal.Decimal{"available": balance})
	}
}

func GetWithdrawals(withdrawals *service.WithdrawalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.AuthGet(r)
		if err != nil || userID == 0 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		list, err := withdrawals.ListByUser(r.Context(), userID)
		if err != nil {
			logging.Sugar.Errorw("Error fetching withdrawals", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if len(list) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		response := make([]*withdrawalResponse, 0, len(list))
		for i := range list {
			response = append(response, withdrawalResponseFrom(&list[i]))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}

func EstimateFee(withdrawals *service.WithdrawalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
		if err != nil {
			http.Error(w, "Invalid amount", http.StatusBadRequest)
			return
		}

		fee, net, err := withdrawals.EstimateFee(amount)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]decimal.Decimal{
			"amount": amount,
			"fee":    fee,
			"net":    net,
		})
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

type chainInfoClient interface {
	Info(ctx context.Context) (zrpc.ChainInfo, error)
}

// Health reports liveness of the store and the chain node.
func Health(store pinger, node chainInfoClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			logging.Sugar.Errorw("Database ping failed", "error", err)
			http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
			return
		}

		info, err := node.Info(r.Context())
		if err != nil {
			logging.Sugar.Errorw("Node unavailable", "error", err)
			http.Error(w, "Node unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"chain":  info.Chain,
			"blocks": info.Blocks,
		})
	}
}
