package services

import (
	"context"
	"errors"
	"time"

	"dust2cash/internal/models"
	"dust2cash/internal/notify"
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
	GetByUserID(ctx context.Context, userID string) (models.ClientProfile, error)
	Update(ctx context.Context, profile models.ClientProfile) error
	Contact(ctx context.Context, clientID string) (models.Contact, error)
}

type AgentStore interface {
	Create(ctx context.Context, tx store.Execer, id, userID string) error
	GetByUserID(ctx context.Context, userID string) (models.AgentProfile, error)
	GetByID(ctx context.Context, agentID string) (models.AgentProfile, error)
	IsOnline(ctx context.Context, tx store.Getter, agentID string) (bool, error)
	SetOnline(ctx context.Context, agentID string, at time.Time) error
	SetOffline(ctx context.Context, agentID string) error
	ListOnline(ctx context.Context) ([]models.AgentProfile, error)
	ListAll(ctx context.Context) ([]models.AgentProfile, error)
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, t models.Transaction) error
	GetByID(ctx context.Context, transactionID string) (models.Transaction, error)
	GetForUpdate(ctx context.Context, tx store.Getter, transactionID string) (models.Transaction, error)
	Transition(ctx context.Context, tx store.Execer, input store.TransitionInput) (int64, error)
	CancelMatching(ctx context.Context, tx store.Selecter, transactionIDs []string, at time.Time) ([]string, error)
	ListByClient(ctx context.Context, clientID string, limit, offset int) ([]models.Transaction, error)
	ListByAgent(ctx context.Context, agentID string, statuses []models.Status) ([]models.Transaction, error)
	ListAll(ctx context.Context, status models.Status, limit, offset int) ([]models.Transaction, error)
}

type AgentRequestStore interface {
	Get(ctx context.Context, q store.Getter, transactionID string) (models.AgentRequest, error)
	GetByTransaction(ctx context.Context, transactionID string) (models.AgentRequest, error)
	Create(ctx context.Context, tx store.Execer, transactionID string, requestedAt, expiresAt time.Time) error
	Reopen(ctx context.Context, tx store.Execer, transactionID string, requestedAt, expiresAt time.Time) (int64, error)
	Accept(ctx context.Context, tx store.Execer, transactionID string, now time.Time) (int64, error)
	Expire(ctx context.Context, tx store.Execer, transactionID string, now time.Time) (int64, error)
	Close(ctx context.Context, tx store.Execer, transactionID string) (int64, error)
	ExpireStale(ctx context.Context, tx store.Selecter, now time.Time) ([]string, error)
	ListOpen(ctx context.Context, now time.Time) ([]models.OpenRequest, error)
	ClientsWaiting(ctx context.Context, now time.Time) ([]models.Contact, error)
}

type PricingStore interface {
	Get(ctx context.Context) (models.PricingSettings, error)
	Update(ctx context.Context, tx store.Execer, rate, feePercent decimal.Decimal, actorID string, at time.Time) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, entityID string, limit, offset int) ([]models.AuditLog, error)
}

// Notifier accepts fire-and-forget messages. notify.Dispatcher implements it.
type Notifier interface {
	Enqueue(msgs ...notify.Message)
}

type discardNotifier struct{}

func (discardNotifier) Enqueue(...notify.Message) {}

func orDiscard(n Notifier) Notifier {
	if n == nil {
		return discardNotifier{}
	}
	return n
}

func mapNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
