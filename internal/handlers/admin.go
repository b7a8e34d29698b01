package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"dust2cash/internal/auth"
	"dust2cash/internal/db"
	"dust2cash/internal/middleware"
	"dust2cash/internal/models"
	"dust2cash/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type pricingResponse struct {
	ExchangeRate          string    `json:"exchange_rate"`
	TransactionFeePercent string    `json:"transaction_fee_percent"`
	UpdatedBy             *string   `json:"updated_by,omitempty"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func toPricingResponse(p models.PricingSettings) pricingResponse {
	return pricingResponse{
		ExchangeRate:          p.ExchangeRate.String(),
		TransactionFeePercent: p.TransactionFeePercent.String(),
		UpdatedBy:             p.UpdatedBy,
		UpdatedAt:             p.UpdatedAt,
	}
}

func (h *Handler) GetPricing(w http.ResponseWriter, r *http.Request) {
	pricing, err := h.pricing.Get(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load pricing")
		return
	}
	respondJSON(w, http.StatusOK, toPricingResponse(pricing))
}

type updatePricingRequest struct {
	ExchangeRate          json.Number `json:"exchange_rate"`
	TransactionFeePercent json.Number `json:"transaction_fee_percent"`
}

// UpdatePricing replaces the singleton pricing row. Existing transactions keep
// the rate and fee they were created with.
func (h *Handler) UpdatePricing(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	var req updatePricingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	rate, fee, err := parsePricing(req.ExchangeRate.String(), req.TransactionFeePercent.String())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	now := time.Now().UTC()
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.pricing.Update(r.Context(), tx, rate, fee, userID, now); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"exchange_rate":           rate.String(),
			"transaction_fee_percent": fee.String(),
		})
		return h.audit.Log(r.Context(), tx, userID, "update_pricing", "pricing_settings", "1", string(data))
	})
	if err != nil {
		zap.L().Error("update pricing", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to update pricing")
		return
	}
	respondJSON(w, http.StatusOK, toPricingResponse(models.PricingSettings{
		ExchangeRate:          rate,
		TransactionFeePercent: fee,
		UpdatedBy:             &userID,
		UpdatedAt:             now,
	}))
}

func (h *Handler) AdminListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50)
	status := models.Status(strings.TrimSpace(r.URL.Query().Get("status")))
	rows, err := h.transactions.ListAll(r.Context(), status, limit, offset)
	if err != nil {
		respondServiceError(w, err, "unable to list transactions")
		return
	}
	respondJSON(w, http.StatusOK, toTransactionResponses(rows))
}

func (h *Handler) AdminCompleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	t, err := h.transactions.Complete(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "unable to complete transaction")
		return
	}
	respondJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (h *Handler) AdminCancelTransaction(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	t, err := h.transactions.Cancel(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "unable to cancel transaction")
		return
	}
	respondJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (h *Handler) AdminListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.directory.ListAll(r.Context())
	if err != nil {
		respondServiceError(w, err, "unable to list agents")
		return
	}
	respondJSON(w, http.StatusOK, agents)
}

// AdminCreateAgent provisions a login with the agent role together with its
// agent profile. Agents start offline.
func (h *Handler) AdminCreateAgent(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.UserIDFromContext(r.Context())
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to secure password")
		return
	}
	user := models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Role:         models.RoleAgent,
	}
	agent := models.AgentProfile{
		ID:       uuid.NewString(),
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.users.Create(r.Context(), tx, user); err != nil {
			return err
		}
		if err := h.agents.Create(r.Context(), tx, agent.ID, user.ID); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"user_id":  user.ID,
			"agent_id": agent.ID,
		})
		return h.audit.Log(r.Context(), tx, adminID, "create_agent", "agent", agent.ID, string(data))
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			respondError(w, http.StatusConflict, "username or email already exists")
			return
		}
		zap.L().Error("create agent", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to create agent")
		return
	}
	respondJSON(w, http.StatusCreated, agent)
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50)
	logs, err := h.audit.List(r.Context(), r.URL.Query().Get("entity_id"), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list audit logs")
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

// WSEvents upgrades to a websocket that streams the caller's transaction
// events. Browsers cannot set headers on the upgrade, so the token may come
// from the query string.
func (h *Handler) WSEvents(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}
