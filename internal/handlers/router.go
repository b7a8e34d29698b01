package handlers

import (
	"net/http"

	"dust2cash/internal/config"
	"dust2cash/internal/db"
	"dust2cash/internal/middleware"
	"dust2cash/internal/models"
	"dust2cash/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	txRunner     db.TxRunner
	cfg          config.Config
	users        UserStore
	clients      ClientStore
	agents       AgentStore
	pricing      PricingStore
	audit        AuditStore
	transactions TransactionService
	matcher      Matcher
	directory    Directory
	hub          *websocket.Hub
}

func New(txRunner db.TxRunner, cfg config.Config, users UserStore, clients ClientStore, agents AgentStore, pricing PricingStore, audit AuditStore, transactions TransactionService, matcher Matcher, directory Directory, hub *websocket.Hub) *Handler {
	return &Handler{
		txRunner:     txRunner,
		cfg:          cfg,
		users:        users,
		clients:      clients,
		agents:       agents,
		pricing:      pricing,
		audit:        audit,
		transactions: transactions,
		matcher:      matcher,
		directory:    directory,
		hub:          hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	authenticated := middleware.Auth(h.cfg.JWTSecret)

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(authenticated).Get("/me", h.Me)
	})

	router.Route("/profile", func(r chi.Router) {
		r.Use(authenticated, middleware.RequireRole(models.RoleClient))
		r.Get("/", h.GetProfile)
		r.Put("/", h.UpdateProfile)
	})

	router.Route("/transactions", func(r chi.Router) {
		r.Use(authenticated)
		r.With(middleware.RequireRole(models.RoleClient)).Post("/", h.CreateTransaction)
		r.With(middleware.RequireRole(models.RoleClient)).Get("/", h.ListTransactions)
		r.Get("/{id}", h.GetTransaction)
		r.With(middleware.RequireRole(models.RoleClient)).Post("/{id}/request-agent", h.RequestAgent)
		r.With(middleware.RequireRole(models.RoleClient)).Post("/{id}/cancel", h.CancelTransaction)
	})

	router.Route("/agent", func(r chi.Router) {
		r.Use(authenticated, middleware.RequireRole(models.RoleAgent))
		r.Post("/online", h.GoOnline)
		r.Post("/offline", h.GoOffline)
		r.Get("/status", h.AgentStatus)
		r.Get("/requests", h.OpenRequests)
		r.Post("/requests/{transactionID}/accept", h.AcceptRequest)
		r.Get("/transactions/active", h.AgentActiveTransactions)
		r.Get("/transactions/completed", h.AgentCompletedTransactions)
		r.Post("/transactions/{id}/address", h.ProvideAddress)
		r.Post("/transactions/{id}/confirm-receipt", h.ConfirmReceipt)
		r.Post("/transactions/{id}/payment-sent", h.MarkPaymentSent)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(authenticated, middleware.RequireRole(models.RoleAdmin))
		r.Get("/pricing", h.GetPricing)
		r.Put("/pricing", h.UpdatePricing)
		r.Get("/transactions", h.AdminListTransactions)
		r.Post("/transactions/{id}/complete", h.AdminCompleteTransaction)
		r.Post("/transactions/{id}/cancel", h.AdminCancelTransaction)
		r.Get("/agents", h.AdminListAgents)
		r.Post("/agents", h.AdminCreateAgent)
		r.Get("/audit", h.ListAuditLogs)
	})

	router.Get("/ws/events", h.WSEvents)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
