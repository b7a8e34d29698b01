package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dust2cash/internal/db"
	"dust2cash/internal/models"
	"dust2cash/internal/money"
	"dust2cash/internal/store"
	"dust2cash/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// TransactionService owns the conversion lifecycle. Each transition is one
// guarded write plus its audit row; notifications go out after commit.
type TransactionService struct {
	txRunner     db.TxRunner
	transactions TransactionStore
	requests     AgentRequestStore
	clients      ClientStore
	agents       AgentStore
	pricing      PricingStore
	audits       AuditStore
	notifier     Notifier
	now          func() time.Time
}

func NewTransactionService(txRunner db.TxRunner, transactions TransactionStore, requests AgentRequestStore, clients ClientStore, agents AgentStore, pricing PricingStore, audits AuditStore, notifier Notifier) *TransactionService {
	return &TransactionService{
		txRunner:     txRunner,
		transactions: transactions,
		requests:     requests,
		clients:      clients,
		agents:       agents,
		pricing:      pricing,
		audits:       audits,
		notifier:     orDiscard(notifier),
		now:          time.Now,
	}
}

type CreateTransactionRequest struct {
	ClientUserID  string
	Platform      models.Platform
	Currency      models.Currency
	Amount        string
	PaymentMethod models.PaymentMethod
	PaymentPhone  string
	// AgentID optionally names an agent picked by the client. When that agent
	// is online the transaction starts assigned in agent_online.
	AgentID string
}

func (r CreateTransactionRequest) validate() (decimal.Decimal, error) {
	if !r.Platform.Valid() {
		return decimal.Zero, invalid("platform", "must be one of binance, bybit, bitget")
	}
	if !r.Currency.Valid() {
		return decimal.Zero, invalid("currency", "must be one of usdt, worldcoin")
	}
	if !r.PaymentMethod.Valid() {
		return decimal.Zero, invalid("payment_method", "must be one of mpesa, airtel")
	}
	if err := validator.ValidatePhone(strings.TrimSpace(r.PaymentPhone)); err != nil {
		return decimal.Zero, invalid("payment_phone", err.Error())
	}
	amount, err := money.ParseAmount(r.Amount)
	if err != nil {
		return decimal.Zero, invalid("amount", err.Error())
	}
	return amount, nil
}

// Create opens a transaction priced with a snapshot of the current settings.
func (s *TransactionService) Create(ctx context.Context, req CreateTransactionRequest) (models.Transaction, error) {
	client, err := s.clients.GetByUserID(ctx, req.ClientUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Transaction{}, invalid("profile", "complete your profile before creating a transaction")
		}
		return models.Transaction{}, err
	}
	if !client.IsComplete() {
		return models.Transaction{}, invalid("profile", "complete your profile before creating a transaction")
	}
	amount, err := req.validate()
	if err != nil {
		return models.Transaction{}, err
	}
	pricing, err := s.pricing.Get(ctx)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("load pricing: %w", err)
	}
	fee, receive, err := money.Compute(amount, pricing.ExchangeRate, pricing.TransactionFeePercent)
	if errors.Is(err, money.ErrInvalidAmount) {
		return models.Transaction{}, invalid("amount", "amount is too large at the current exchange rate")
	}
	if err != nil {
		return models.Transaction{}, fmt.Errorf("compute amounts: %w", err)
	}

	now := s.now().UTC()
	transaction := models.Transaction{
		ID:              uuid.NewString(),
		ClientID:        client.ID,
		Platform:        req.Platform,
		Currency:        req.Currency,
		Amount:          amount,
		ExchangeRate:    pricing.ExchangeRate,
		FeePercent:      pricing.TransactionFeePercent,
		TransactionFee:  fee,
		AmountToReceive: receive,
		PaymentMethod:   req.PaymentMethod,
		PaymentPhone:    strings.TrimSpace(req.PaymentPhone),
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		transaction.Status = models.StatusPending
		transaction.AgentID = nil
		if req.AgentID != "" {
			online, err := s.agents.IsOnline(ctx, tx, req.AgentID)
			if errors.Is(err, store.ErrNotFound) {
				return invalid("agent_id", "unknown agent")
			}
			if err != nil {
				return err
			}
			if online {
				agentID := req.AgentID
				transaction.AgentID = &agentID
				transaction.Status = models.StatusAgentOnline
			}
		}
		if err := s.transactions.Create(ctx, tx, transaction); err != nil {
			return err
		}
		return logTransactionAudit(ctx, s.audits, tx, req.ClientUserID, "create_transaction", transaction.ID, map[string]string{
			"amount":            money.Format(amount),
			"exchange_rate":     pricing.ExchangeRate.String(),
			"fee_percent":       pricing.TransactionFeePercent.String(),
			"amount_to_receive": money.Format(receive),
			"status":            string(transaction.Status),
		})
	})
	if err != nil {
		return models.Transaction{}, err
	}
	if transaction.AgentID != nil {
		s.notifyAssignedAgent(ctx, transaction)
	}
	return transaction, nil
}

func (s *TransactionService) notifyAssignedAgent(ctx context.Context, t models.Transaction) {
	agent, err := s.agents.GetByID(ctx, *t.AgentID)
	if err != nil {
		return
	}
	s.notifier.Enqueue(agentRequestMessages(t, []models.AgentProfile{agent})...)
}

// ProvideAddress records where the client should send the crypto.
func (s *TransactionService) ProvideAddress(ctx context.Context, agentUserID, transactionID, address string) (models.Transaction, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.Transaction{}, invalid("transfer_address", "is required")
	}
	if len(address) > 255 {
		return models.Transaction{}, invalid("transfer_address", "is too long")
	}
	return s.agentTransition(ctx, agentUserID, transactionID, models.StatusAddressProvided, &address, EventAddressProvided)
}

func (s *TransactionService) ConfirmReceipt(ctx context.Context, agentUserID, transactionID string) (models.Transaction, error) {
	return s.agentTransition(ctx, agentUserID, transactionID, models.StatusCryptoReceived, nil, EventCryptoReceived)
}

// MarkPaymentSent also queues the payment confirmation to the client.
func (s *TransactionService) MarkPaymentSent(ctx context.Context, agentUserID, transactionID string) (models.Transaction, error) {
	return s.agentTransition(ctx, agentUserID, transactionID, models.StatusPaymentSent, nil, EventPaymentSent)
}

func (s *TransactionService) agentTransition(ctx context.Context, agentUserID, transactionID string, to models.Status, address *string, event string) (models.Transaction, error) {
	agent, err := s.agents.GetByUserID(ctx, agentUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Transaction{}, ErrNotAgent
		}
		return models.Transaction{}, err
	}
	var transaction models.Transaction
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		now := s.now().UTC()
		t, err := s.transactions.GetForUpdate(ctx, tx, transactionID)
		if err != nil {
			return mapNotFound(err)
		}
		if !CanTransition(t.Status, to) {
			return illegal(t.Status, to, "")
		}
		if !t.AssignedTo(agent.ID) {
			return illegal(t.Status, to, "caller is not the assigned agent")
		}
		moved, err := s.transactions.Transition(ctx, tx, store.TransitionInput{
			ID:              transactionID,
			From:            sourcesOf(to),
			To:              to,
			AgentID:         &agent.ID,
			TransferAddress: address,
			At:              now,
		})
		if err != nil {
			return err
		}
		if moved == 0 {
			return illegal(t.Status, to, "")
		}
		data := map[string]string{"from": string(t.Status), "to": string(to)}
		t.Status = to
		t.UpdatedAt = now
		if address != nil {
			t.TransferAddress = address
			data["transfer_address"] = *address
		}
		transaction = t
		return logTransactionAudit(ctx, s.audits, tx, agentUserID, "transition", transactionID, data)
	})
	if err != nil {
		return models.Transaction{}, err
	}
	notifyClient(ctx, s.clients, s.notifier, transaction, event)
	return transaction, nil
}

// Complete closes a paid-out transaction. Only staff reach it.
func (s *TransactionService) Complete(ctx context.Context, adminUserID, transactionID string) (models.Transaction, error) {
	transaction, err := s.staffTransition(ctx, adminUserID, transactionID, models.StatusCompleted, sourcesOf(models.StatusCompleted))
	if err != nil {
		return models.Transaction{}, err
	}
	notifyClient(ctx, s.clients, s.notifier, transaction, EventCompleted)
	return transaction, nil
}

// Cancel is the staff cancel, allowed from any state before payment_sent.
func (s *TransactionService) Cancel(ctx context.Context, adminUserID, transactionID string) (models.Transaction, error) {
	transaction, err := s.staffTransition(ctx, adminUserID, transactionID, models.StatusCancelled, sourcesOf(models.StatusCancelled))
	if err != nil {
		return models.Transaction{}, err
	}
	notifyClient(ctx, s.clients, s.notifier, transaction, EventCancelled)
	return transaction, nil
}

// CancelByClient lets the owner withdraw while no agent is engaged. Any open
// request is closed in the same commit.
func (s *TransactionService) CancelByClient(ctx context.Context, clientUserID, transactionID string) (models.Transaction, error) {
	client, err := s.clients.GetByUserID(ctx, clientUserID)
	if err != nil {
		return models.Transaction{}, mapNotFound(err)
	}
	var transaction models.Transaction
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		t, err := s.cancel(ctx, tx, clientUserID, transactionID, clientCancellable, func(t models.Transaction) error {
			if t.ClientID != client.ID {
				return ErrNotFound
			}
			return nil
		})
		transaction = t
		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}
	notifyClient(ctx, s.clients, s.notifier, transaction, EventCancelled)
	return transaction, nil
}

func (s *TransactionService) staffTransition(ctx context.Context, actorID, transactionID string, to models.Status, from []models.Status) (models.Transaction, error) {
	var transaction models.Transaction
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if to == models.StatusCancelled {
			t, err := s.cancel(ctx, tx, actorID, transactionID, from, nil)
			transaction = t
			return err
		}
		now := s.now().UTC()
		t, err := s.transactions.GetForUpdate(ctx, tx, transactionID)
		if err != nil {
			return mapNotFound(err)
		}
		if !contains(from, t.Status) {
			return illegal(t.Status, to, "")
		}
		moved, err := s.transactions.Transition(ctx, tx, store.TransitionInput{ID: transactionID, From: from, To: to, At: now})
		if err != nil {
			return err
		}
		if moved == 0 {
			return illegal(t.Status, to, "")
		}
		previous := t.Status
		t.Status = to
		t.UpdatedAt = now
		transaction = t
		return logTransactionAudit(ctx, s.audits, tx, actorID, "transition", transactionID, map[string]string{
			"from": string(previous),
			"to":   string(to),
		})
	})
	return transaction, err
}

func (s *TransactionService) cancel(ctx context.Context, tx store.Tx, actorID, transactionID string, from []models.Status, authorize func(models.Transaction) error) (models.Transaction, error) {
	now := s.now().UTC()
	t, err := s.transactions.GetForUpdate(ctx, tx, transactionID)
	if err != nil {
		return models.Transaction{}, mapNotFound(err)
	}
	if authorize != nil {
		if err := authorize(t); err != nil {
			return models.Transaction{}, err
		}
	}
	if !contains(from, t.Status) {
		return models.Transaction{}, illegal(t.Status, models.StatusCancelled, "")
	}
	moved, err := s.transactions.Transition(ctx, tx, store.TransitionInput{
		ID:   transactionID,
		From: from,
		To:   models.StatusCancelled,
		At:   now,
	})
	if err != nil {
		return models.Transaction{}, err
	}
	if moved == 0 {
		return models.Transaction{}, illegal(t.Status, models.StatusCancelled, "")
	}
	if _, err := s.requests.Close(ctx, tx, transactionID); err != nil {
		return models.Transaction{}, err
	}
	previous := t.Status
	t.Status = models.StatusCancelled
	t.UpdatedAt = now
	if err := logTransactionAudit(ctx, s.audits, tx, actorID, "cancel", transactionID, map[string]string{
		"from": string(previous),
	}); err != nil {
		return models.Transaction{}, err
	}
	return t, nil
}

// ForClient returns a transaction owned by the calling client.
func (s *TransactionService) ForClient(ctx context.Context, clientUserID, transactionID string) (models.Transaction, error) {
	client, err := s.clients.GetByUserID(ctx, clientUserID)
	if err != nil {
		return models.Transaction{}, mapNotFound(err)
	}
	t, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return models.Transaction{}, mapNotFound(err)
	}
	if t.ClientID != client.ID {
		return models.Transaction{}, ErrNotFound
	}
	return t, nil
}

func (s *TransactionService) Get(ctx context.Context, transactionID string) (models.Transaction, error) {
	t, err := s.transactions.GetByID(ctx, transactionID)
	return t, mapNotFound(err)
}

// ListForClient is the "my transactions" read model, newest first.
func (s *TransactionService) ListForClient(ctx context.Context, clientUserID string, limit, offset int) ([]models.Transaction, error) {
	client, err := s.clients.GetByUserID(ctx, clientUserID)
	if errors.Is(err, store.ErrNotFound) {
		return []models.Transaction{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.transactions.ListByClient(ctx, client.ID, limit, offset)
}

var agentActiveStatuses = []models.Status{
	models.StatusAgentOnline,
	models.StatusAddressProvided,
	models.StatusCryptoReceived,
	models.StatusPaymentSent,
}

func (s *TransactionService) ActiveForAgent(ctx context.Context, agentUserID string) ([]models.Transaction, error) {
	return s.listForAgent(ctx, agentUserID, agentActiveStatuses)
}

func (s *TransactionService) CompletedForAgent(ctx context.Context, agentUserID string) ([]models.Transaction, error) {
	return s.listForAgent(ctx, agentUserID, []models.Status{models.StatusCompleted})
}

func (s *TransactionService) listForAgent(ctx context.Context, agentUserID string, statuses []models.Status) ([]models.Transaction, error) {
	agent, err := s.agents.GetByUserID(ctx, agentUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotAgent
		}
		return nil, err
	}
	return s.transactions.ListByAgent(ctx, agent.ID, statuses)
}

func (s *TransactionService) ListAll(ctx context.Context, status models.Status, limit, offset int) ([]models.Transaction, error) {
	if status != "" && !knownStatus(status) {
		return nil, invalid("status", "unknown status")
	}
	return s.transactions.ListAll(ctx, status, limit, offset)
}

func knownStatus(status models.Status) bool {
	if status == models.StatusPending {
		return true
	}
	_, ok := transitions[status]
	return ok
}
