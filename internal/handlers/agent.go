package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"dust2cash/internal/middleware"
	"dust2cash/internal/models"
	"dust2cash/internal/money"

	"github.com/go-chi/chi/v5"
)

type openRequestResponse struct {
	TransactionID   string    `json:"transaction_id"`
	ClientName      string    `json:"client_name"`
	Platform        string    `json:"platform"`
	Currency        string    `json:"currency"`
	Amount          string    `json:"amount"`
	AmountToReceive string    `json:"amount_to_receive"`
	PaymentMethod   string    `json:"payment_method"`
	RequestedAt     time.Time `json:"requested_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

func (h *Handler) GoOnline(w http.ResponseWriter, r *http.Request) {
	h.setPresence(w, r, true)
}

func (h *Handler) GoOffline(w http.ResponseWriter, r *http.Request) {
	h.setPresence(w, r, false)
}

func (h *Handler) setPresence(w http.ResponseWriter, r *http.Request, online bool) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	var (
		agent models.AgentProfile
		err   error
	)
	if online {
		agent, err = h.directory.GoOnline(r.Context(), userID)
	} else {
		agent, err = h.directory.GoOffline(r.Context(), userID)
	}
	if err != nil {
		respondServiceError(w, err, "unable to update status")
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (h *Handler) AgentStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	agent, err := h.directory.Agent(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, "unable to load status")
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (h *Handler) OpenRequests(w http.ResponseWriter, r *http.Request) {
	rows, err := h.matcher.OpenRequests(r.Context())
	if err != nil {
		respondServiceError(w, err, "unable to list requests")
		return
	}
	out := make([]openRequestResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, openRequestResponse{
			TransactionID:   row.TransactionID,
			ClientName:      row.ClientName,
			Platform:        string(row.Platform),
			Currency:        string(row.Currency),
			Amount:          money.Format(row.Amount),
			AmountToReceive: money.Format(row.AmountToReceive),
			PaymentMethod:   string(row.PaymentMethod),
			RequestedAt:     row.RequestedAt,
			ExpiresAt:       row.ExpiresAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	t, err := h.matcher.Accept(r.Context(), userID, chi.URLParam(r, "transactionID"))
	if err != nil {
		respondServiceError(w, err, "unable to accept request")
		return
	}
	respondJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (h *Handler) AgentActiveTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	rows, err := h.transactions.ActiveForAgent(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, "unable to list transactions")
		return
	}
	respondJSON(w, http.StatusOK, toTransactionResponses(rows))
}

func (h *Handler) AgentCompletedTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	rows, err := h.transactions.CompletedForAgent(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, "unable to list transactions")
		return
	}
	respondJSON(w, http.StatusOK, toTransactionResponses(rows))
}

type provideAddressRequest struct {
	TransferAddress string `json:"transfer_address"`
}

func (h *Handler) ProvideAddress(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	var req provideAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	t, err := h.transactions.ProvideAddress(r.Context(), userID, chi.URLParam(r, "id"), req.TransferAddress)
	if err != nil {
		respondServiceError(w, err, "unable to provide address")
		return
	}
	respondJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (h *Handler) ConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	t, err := h.transactions.ConfirmReceipt(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "unable to confirm receipt")
		return
	}
	respondJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (h *Handler) MarkPaymentSent(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	t, err := h.transactions.MarkPaymentSent(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "unable to mark payment sent")
		return
	}
	respondJSON(w, http.StatusOK, toTransactionResponse(t))
}
