package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"dust2cash/internal/models"
	"dust2cash/internal/money"
	"dust2cash/internal/services"

	"go.uber.org/zap"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError turns domain errors into user-facing messages. Anything
// unrecognised is logged and reported as a generic 500.
func respondServiceError(w http.ResponseWriter, err error, fallback string) {
	var validation *services.ValidationError
	switch {
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, services.ErrNotFound):
		respondError(w, http.StatusNotFound, "transaction not found")
	case errors.Is(err, services.ErrNotAgent):
		respondError(w, http.StatusForbidden, "agent profile required")
	case errors.Is(err, services.ErrIllegalTransition),
		errors.Is(err, services.ErrAlreadyAccepted),
		errors.Is(err, services.ErrExpired),
		errors.Is(err, services.ErrRequestInFlight),
		errors.Is(err, services.ErrAgentOffline):
		respondError(w, http.StatusConflict, err.Error())
	default:
		zap.L().Error(fallback, zap.Error(err))
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

type transactionResponse struct {
	ID              string     `json:"id"`
	ClientID        string     `json:"client_id"`
	AgentID         *string    `json:"agent_id,omitempty"`
	Platform        string     `json:"platform"`
	Currency        string     `json:"currency"`
	Amount          string     `json:"amount"`
	ExchangeRate    string     `json:"exchange_rate"`
	FeePercent      string     `json:"fee_percent"`
	TransactionFee  string     `json:"transaction_fee"`
	AmountToReceive string     `json:"amount_to_receive"`
	PaymentMethod   string     `json:"payment_method"`
	PaymentPhone    string     `json:"payment_phone"`
	TransferAddress *string    `json:"transfer_address,omitempty"`
	Status          string     `json:"status"`
	RequestTimeout  *time.Time `json:"request_timeout,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toTransactionResponse(t models.Transaction) transactionResponse {
	return transactionResponse{
		ID:              t.ID,
		ClientID:        t.ClientID,
		AgentID:         t.AgentID,
		Platform:        string(t.Platform),
		Currency:        string(t.Currency),
		Amount:          money.Format(t.Amount),
		ExchangeRate:    t.ExchangeRate.String(),
		FeePercent:      t.FeePercent.String(),
		TransactionFee:  money.Format(t.TransactionFee),
		AmountToReceive: money.Format(t.AmountToReceive),
		PaymentMethod:   string(t.PaymentMethod),
		PaymentPhone:    t.PaymentPhone,
		TransferAddress: t.TransferAddress,
		Status:          string(t.Status),
		RequestTimeout:  t.RequestTimeout,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func toTransactionResponses(rows []models.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toTransactionResponse(row))
	}
	return out
}
