package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"dust2cash/internal/middleware"
	"dust2cash/internal/models"
	"dust2cash/internal/validator"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type profileResponse struct {
	models.ClientProfile
	IsComplete bool `json:"is_complete"`
}

type updateProfileRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
}

func (h *Handler) loadProfile(r *http.Request, userID string) (models.ClientProfile, error) {
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		return models.ClientProfile{}, err
	}
	return h.clients.GetOrCreate(r.Context(), uuid.NewString(), userID, user.Email)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	profile, err := h.loadProfile(r, userID)
	if err != nil {
		zap.L().Error("load profile", zap.String("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to load profile")
		return
	}
	respondJSON(w, http.StatusOK, profileResponse{ClientProfile: profile, IsComplete: profile.IsComplete()})
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.FirstName == "" || req.LastName == "" {
		respondError(w, http.StatusBadRequest, "first and last name are required")
		return
	}
	if len(req.FirstName) > 100 || len(req.LastName) > 100 {
		respondError(w, http.StatusBadRequest, "name is too long")
		return
	}
	if err := validator.ValidatePhone(req.PhoneNumber); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidateEmail(req.Email); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	profile, err := h.loadProfile(r, userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load profile")
		return
	}
	profile.FirstName = req.FirstName
	profile.LastName = req.LastName
	profile.PhoneNumber = req.PhoneNumber
	profile.Email = req.Email
	if err := h.clients.Update(r.Context(), profile); err != nil {
		zap.L().Error("update profile", zap.String("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to update profile")
		return
	}
	respondJSON(w, http.StatusOK, profileResponse{ClientProfile: profile, IsComplete: profile.IsComplete()})
}
