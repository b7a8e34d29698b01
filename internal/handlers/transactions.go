package handlers

import (
	"encoding/json"
	"net/http"

	"dust2cash/internal/middleware"
	"dust2cash/internal/models"
	"dust2cash/internal/services"

	"github.com/go-chi/chi/v5"
)

type createTransactionRequest struct {
	Platform      models.Platform      `json:"platform"`
	Currency      models.Currency      `json:"currency"`
	Amount        json.Number          `json:"amount"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	PaymentPhone  string               `json:"payment_phone"`
	AgentID       string               `json:"agent_id,omitempty"`
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	var req createTransactionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	created, err := h.transactions.Create(r.Context(), services.CreateTransactionRequest{
		ClientUserID:  userID,
		Platform:      req.Platform,
		Currency:      req.Currency,
		Amount:        req.Amount.String(),
		PaymentMethod: req.PaymentMethod,
		PaymentPhone:  req.PaymentPhone,
		AgentID:       req.AgentID,
	})
	if err != nil {
		respondServiceError(w, err, "transaction failed")
		return
	}
	respondJSON(w, http.StatusCreated, toTransactionResponse(created))
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	limit, offset := pagination(r, 20)
	rows, err := h.transactions.ListForClient(r.Context(), userID, limit, offset)
	if err != nil {
		respondServiceError(w, err, "unable to list transactions")
		return
	}
	respondJSON(w, http.StatusOK, toTransactionResponses(rows))
}

// GetTransaction serves one transaction to whoever may see it: the owning
// client, the assigned agent or any agent while the request is broadcast,
// and admins.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	transactionID := chi.URLParam(r, "id")
	var (
		t   models.Transaction
		err error
	)
	switch principal.Role {
	case models.RoleClient:
		t, err = h.transactions.ForClient(r.Context(), principal.UserID, transactionID)
	case models.RoleAgent:
		t, err = h.transactionForAgent(r, principal.UserID, transactionID)
	default:
		t, err = h.transactions.Get(r.Context(), transactionID)
	}
	if err != nil {
		respondServiceError(w, err, "unable to load transaction")
		return
	}
	respondJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (h *Handler) transactionForAgent(r *http.Request, userID, transactionID string) (models.Transaction, error) {
	agent, err := h.directory.Agent(r.Context(), userID)
	if err != nil {
		return models.Transaction{}, err
	}
	t, err := h.transactions.Get(r.Context(), transactionID)
	if err != nil {
		return models.Transaction{}, err
	}
	if !t.AssignedTo(agent.ID) && t.Status != models.StatusAgentRequested {
		return models.Transaction{}, services.ErrNotFound
	}
	return t, nil
}

func (h *Handler) RequestAgent(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	request, err := h.matcher.OpenOrRenew(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "unable to request agent")
		return
	}
	respondJSON(w, http.StatusOK, request)
}

func (h *Handler) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	t, err := h.transactions.CancelByClient(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "unable to cancel transaction")
		return
	}
	respondJSON(w, http.StatusOK, toTransactionResponse(t))
}
