package handlers

import (
	"context"
	"time"

	"dust2cash/internal/models"
	"dust2cash/internal/services"
	"dust2cash/internal/store"

	"github.com/shopspring/decimal"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, user models.User) error
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, userID string) (models.User, error)
	HasRole(ctx context.Context, tx store.Getter, role models.Role) (bool, error)
}

type ClientStore interface {
	GetOrCreate(ctx context.Context, id, userID, email string) (models.ClientProfile, error)
	Update(ctx context.Context, profile models.ClientProfile) error
}

type AgentStore interface {
	Create(ctx context.Context, tx store.Execer, id, userID string) error
}

type PricingStore interface {
	Get(ctx context.Context) (models.PricingSettings, error)
	Update(ctx context.Context, tx store.Execer, rate, feePercent decimal.Decimal, actorID string, at time.Time) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, entityID string, limit, offset int) ([]models.AuditLog, error)
}

type TransactionService interface {
	Create(ctx context.Context, req services.CreateTransactionRequest) (models.Transaction, error)
	ProvideAddress(ctx context.Context, agentUserID, transactionID, address string) (models.Transaction, error)
	ConfirmReceipt(ctx context.Context, agentUserID, transactionID string) (models.Transaction, error)
	MarkPaymentSent(ctx context.Context, agentUserID, transactionID string) (models.Transaction, error)
	Complete(ctx context.Context, adminUserID, transactionID string) (models.Transaction, error)
	Cancel(ctx context.Context, adminUserID, transactionID string) (models.Transaction, error)
	CancelByClient(ctx context.Context, clientUserID, transactionID string) (models.Transaction, error)
	ForClient(ctx context.Context, clientUserID, transactionID string) (models.Transaction, error)
	Get(ctx context.Context, transactionID string) (models.Transaction, error)
	ListForClient(ctx context.Context, clientUserID string, limit, offset int) ([]models.Transaction, error)
	ActiveForAgent(ctx context.Context, agentUserID string) ([]models.Transaction, error)
	CompletedForAgent(ctx context.Context, agentUserID string) ([]models.Transaction, error)
	ListAll(ctx context.Context, status models.Status, limit, offset int) ([]models.Transaction, error)
}

type Matcher interface {
	OpenOrRenew(ctx context.Context, clientUserID, transactionID string) (models.AgentRequest, error)
	Accept(ctx context.Context, agentUserID, transactionID string) (models.Transaction, error)
	OpenRequests(ctx context.Context) ([]models.OpenRequest, error)
}

type Directory interface {
	Agent(ctx context.Context, userID string) (models.AgentProfile, error)
	GoOnline(ctx context.Context, userID string) (models.AgentProfile, error)
	GoOffline(ctx context.Context, userID string) (models.AgentProfile, error)
	ListAll(ctx context.Context) ([]models.AgentProfile, error)
}
