package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/shieldpay/shieldpay/internal/auth"
	"github.com/shieldpay/shieldpay/internal/database"
	"github.com/shieldpay/shieldpay/internal/logging"
	"github.com/shieldpay/shieldpay/internal/models"
	"github.com/shieldpay/shieldpay/internal/service"
)

func RegisterUser(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var user models.User

		if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
			http.Error(w, "Invalid input", http.StatusBadRequest)
			return
		}

		if user.Login == "" || user.Password == "" {
			http.Error(w, "Login and password are required", http.StatusBadRequest)
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
		if err != nil {
			logging.Sugar.Errorw("Error hashing password", "error", err)
			http.Error(w, "Error hashing password", http.StatusInternalServerError)
			return
		}
		user.Password = string(hashedPassword)

		userID, err := store.CreateUser(r.Context(), &user)
		if err != nil {
			if errors.Is(err, models.ErrDuplicateLogin) {
				http.Error(w, "User with this login already exists", http.StatusConflict)
			} else {
				logging.Sugar.Errorw("Error creating user", "error", err)
				http.Error(w, "Error creating user", http.StatusInternalServerError)
			}
			return
		}

		if err = auth.AuthPost(w, r, userID); err != nil {
			logging.Sugar.Errorw("Error setting authentication cookie", "error", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"message": "User registered successfully"})
	}
}

func LoginUser(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var user models.User

		if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
			http.Error(w, "Invalid input", http.StatusBadRequest)
			return
		}

		if user.Login == "" || user.Password == "" {
			http.Error(w, "Login and password are required", http.StatusBadRequest)
			return
		}

		storedUser, err := store.GetUserByLogin(r.Context(), user.Login)
		if err != nil {
			logging.Sugar.Errorw("Error to find user", "error", err)
			http.Error(w, "Error to find user", http.StatusInternalServerError)
			return
		}
		if storedUser == nil {
			http.Error(w, "Invalid login or password", http.StatusUnauthorized)
			return
		}

		if err = bcrypt.CompareHashAndPassword([]byte(storedUser.Password), []byte(user.Password)); err != nil {
			http.Error(w, "Invalid login or password", http.StatusUnauthorized)
			return
		}

		if err = auth.AuthPost(w, r, storedUser.ID); err != nil {
			logging.Sugar.Errorw("Error getting token", "error", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"message": "User authentification successful"})
	}
}

type profileRequest struct {
	Name  string  `json:"name"`
	Email *string `json:"email"`
}

// UpdateProfile edits the mutable user attributes: display name and email.
func UpdateProfile(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.AuthGet(r)
		if err != nil || userID == 0 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var req profileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid input", http.StatusBadRequest)
			return
		}

		if err := store.UpdateUserProfile(r.Context(), userID, req.Name, req.Email); err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"message": "Profile updated"})
	}
}

type invoiceRequest struct {
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	ItemRef   string          `json:"item_ref"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

func CreateInvoice(invoices *service.InvoiceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.AuthGet(r)
		if err != nil || userID == 0 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var req invoiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid input", http.StatusBadRequest)
			return
		}

		inv, err := invoices.Create(r.Context(), userID, req.Kind, req.Amount, req.ItemRef, req.ExpiresAt)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(invoiceResponseFrom(inv))
	}
}

func CheckInvoice(invoices *service.InvoiceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.AuthGet(r)
		if err != nil || userID == 0 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		invoiceID, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "Invalid invoice id", http.StatusBadRequest)
			return
		}

		// Ownership is settled before the node is consulted.
		inv, err := invoices.Get(r.Context(), invoiceID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if inv.UserID != userID {
			http.Error(w, "Invoice belongs to another user", http.StatusForbidden)
			return
		}

		result, err := invoices.CheckPayment(r.Context(), invoiceID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"paid":    result.Paid,
			"invoice": invoiceResponseFrom(result.Invoice),
		})
	}
}

func CancelInvoice(invoices *service.InvoiceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.AuthGet(r)
		if err != nil || userID == 0 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		invoiceID, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "Invalid invoice id", http.StatusBadRequest)
			return
		}

		// Ownership is settled before anything is mutated.
		inv, err := invoices.Get(r.Context(), invoiceID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if inv.UserID != userID {
			http.Error(w, "Invoice belongs to another user", http.StatusForbidden)
			return
		}

		inv, err = invoices.Cancel(r.Context(), invoiceID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(invoiceResponseFrom(inv))
	}
}

type withdrawRequest struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

func Withdraw(withdrawals *service.WithdrawalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.AuthGet(r)
		if err != nil || userID == 0 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var req withdrawRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid input", http.StatusBadRequest)
			return
		}

		wd, err := withdrawals.Create(r.Context(), userID, req.Address, req.Amount)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(withdrawalResponseFrom(wd))
	}
}

// ProcessWithdrawal is the privileged settlement trigger.
func ProcessWithdrawal(withdrawals *service.WithdrawalService, adminKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if adminKey == "" || r.Header.Get("X-Admin-Key") != adminKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		withdrawalID, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "Invalid withdrawal id", http.StatusBadRequest)
			return
		}

		wd, err := withdrawals.Process(r.Context(), withdrawalID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(withdrawalResponseFrom(wd))
	}
}

type batchRequest struct {
	IDs []int `json:"ids"`
}

func ProcessWithdrawalBatch(withdrawals *service.WithdrawalService, adminKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if adminKey == "" || r.Header.Get("X-Admin-Key") != adminKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid input", http.StatusBadRequest)
			return
		}

		outcomes := withdrawals.ProcessBatch(r.Context(), req.IDs)

		type outcomeResponse struct {
			ID         int                 `json:"id"`
			Withdrawal *withdrawalResponse `json:"withdrawal,omitempty"`
			Error      string              `json:"error,omitempty"`
		}

		response := make([]outcomeResponse, 0, len(outcomes))
		for _, o := range outcomes {
			res := outcomeResponse{ID: o.WithdrawalID}
			if o.Withdrawal != nil {
				res.Withdrawal = withdrawalResponseFrom(o.Withdrawal)
			}
			if o.Err != nil {
				res.Error = o.Err.Error()
			}
			response = append(response, res)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}
