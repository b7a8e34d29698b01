package services

import (
	"context"
	"errors"
	"time"

	"dust2cash/internal/db"
	"dust2cash/internal/models"
	"dust2cash/internal/store"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const DefaultRequestTTL = 15 * time.Minute

// Matcher issues time-bounded agent requests and resolves them. Every state
// change is a conditional update checked by rows affected; the request flags
// and the transaction's status commit together.
type Matcher struct {
	txRunner     db.TxRunner
	transactions TransactionStore
	requests     AgentRequestStore
	agents       AgentStore
	clients      ClientStore
	audits       AuditStore
	notifier     Notifier
	ttl          time.Duration
	adminEmail   string
	now          func() time.Time
}

func NewMatcher(txRunner db.TxRunner, transactions TransactionStore, requests AgentRequestStore, agents AgentStore, clients ClientStore, audits AuditStore, notifier Notifier, ttl time.Duration) *Matcher {
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	return &Matcher{
		txRunner:     txRunner,
		transactions: transactions,
		requests:     requests,
		agents:       agents,
		clients:      clients,
		audits:       audits,
		notifier:     orDiscard(notifier),
		ttl:          ttl,
		now:          time.Now,
	}
}

// AlertAdmin copies every expiry batch to the given operator address.
// An empty address disables the alert.
func (m *Matcher) AlertAdmin(email string) *Matcher {
	m.adminEmail = email
	return m
}

// OpenOrRenew broadcasts a request for the client's transaction. A lapsed
// request is reset in place; an active one is left untouched and
// ErrRequestInFlight is returned.
func (m *Matcher) OpenOrRenew(ctx context.Context, clientUserID, transactionID string) (models.AgentRequest, error) {
	client, err := m.clients.GetByUserID(ctx, clientUserID)
	if err != nil {
		return models.AgentRequest{}, mapNotFound(err)
	}
	var request models.AgentRequest
	var transaction models.Transaction
	err = m.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		now := m.now().UTC()
		t, err := m.transactions.GetForUpdate(ctx, tx, transactionID)
		if err != nil {
			return mapNotFound(err)
		}
		if t.ClientID != client.ID {
			return ErrNotFound
		}
		if !t.Status.Matching() {
			return illegal(t.Status, models.StatusAgentRequested, "transaction is no longer waiting for an agent")
		}
		expiresAt := now.Add(m.ttl)
		existing, err := m.requests.Get(ctx, tx, transactionID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if err := m.requests.Create(ctx, tx, transactionID, now, expiresAt); err != nil {
				return err
			}
		case err != nil:
			return err
		case existing.IsAccepted:
			return ErrAlreadyAccepted
		case existing.Active(now):
			return ErrRequestInFlight
		default:
			reopened, err := m.requests.Reopen(ctx, tx, transactionID, now, expiresAt)
			if err != nil {
				return err
			}
			if reopened == 0 {
				return ErrRequestInFlight
			}
		}
		moved, err := m.transactions.Transition(ctx, tx, store.TransitionInput{
			ID:             transactionID,
			From:           sourcesOf(models.StatusAgentRequested),
			To:             models.StatusAgentRequested,
			RequestTimeout: &expiresAt,
			At:             now,
		})
		if err != nil {
			return err
		}
		if moved == 0 {
			return illegal(t.Status, models.StatusAgentRequested, "")
		}
		request = models.AgentRequest{TransactionID: transactionID, RequestedAt: now, ExpiresAt: expiresAt}
		t.Status = models.StatusAgentRequested
		t.RequestTimeout = &expiresAt
		t.UpdatedAt = now
		transaction = t
		return logTransactionAudit(ctx, m.audits, tx, clientUserID, "request_agent", transactionID, map[string]string{
			"expires_at": expiresAt.Format(time.RFC3339),
		})
	})
	if err != nil {
		return models.AgentRequest{}, err
	}
	m.broadcast(ctx, transaction)
	return request, nil
}

func (m *Matcher) broadcast(ctx context.Context, t models.Transaction) {
	agents, err := m.agents.ListOnline(ctx)
	if err != nil {
		zap.L().Warn("failed to list online agents", zap.String("transaction_id", t.ID), zap.Error(err))
		return
	}
	if len(agents) == 0 {
		zap.L().Info("agent request opened with no agent online", zap.String("transaction_id", t.ID))
		return
	}
	m.notifier.Enqueue(agentRequestMessages(t, agents)...)
}

// Accept assigns the calling agent to the transaction. Of two agents racing
// on the same request exactly one wins; the other gets ErrAlreadyAccepted.
// A request found past its TTL is expired on the spot and ErrExpired returned.
func (m *Matcher) Accept(ctx context.Context, agentUserID, transactionID string) (models.Transaction, error) {
	agent, err := m.agents.GetByUserID(ctx, agentUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Transaction{}, ErrNotAgent
		}
		return models.Transaction{}, err
	}
	var transaction models.Transaction
	var lapsed bool
	err = m.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		lapsed = false
		now := m.now().UTC()
		online, err := m.agents.IsOnline(ctx, tx, agent.ID)
		if err != nil {
			return mapNotFound(err)
		}
		if !online {
			return ErrAgentOffline
		}
		accepted, err := m.requests.Accept(ctx, tx, transactionID, now)
		if err != nil {
			return err
		}
		if accepted == 0 {
			request, err := m.requests.Get(ctx, tx, transactionID)
			if err != nil {
				return mapNotFound(err)
			}
			switch {
			case request.IsAccepted:
				return ErrAlreadyAccepted
			case request.IsExpired:
				return ErrExpired
			case request.Lapsed(now):
				lapsed = true
				_, err := m.expire(ctx, tx, []string{transactionID}, now, true)
				return err
			}
			return ErrAlreadyAccepted
		}
		moved, err := m.transactions.Transition(ctx, tx, store.TransitionInput{
			ID:          transactionID,
			From:        sourcesOf(models.StatusAgentOnline),
			To:          models.StatusAgentOnline,
			AgentID:     &agent.ID,
			AssignAgent: true,
			At:          now,
		})
		if err != nil {
			return err
		}
		t, err := m.transactions.GetForUpdate(ctx, tx, transactionID)
		if err != nil {
			return mapNotFound(err)
		}
		if moved == 0 {
			return illegal(t.Status, models.StatusAgentOnline, "transaction is no longer waiting for an agent")
		}
		transaction = t
		return logTransactionAudit(ctx, m.audits, tx, agentUserID, "accept_request", transactionID, map[string]string{
			"agent_id": agent.ID,
		})
	})
	if err != nil {
		return models.Transaction{}, err
	}
	if lapsed {
		m.notifyExpired(ctx, []string{transactionID})
		return models.Transaction{}, ErrExpired
	}
	notifyClient(ctx, m.clients, m.notifier, transaction, EventRequestAccepted)
	return transaction, nil
}

// ExpireStale marks every lapsed, unaccepted request expired and cancels the
// transactions still waiting on them. It returns the number of requests
// expired; a second run over unchanged data returns 0.
func (m *Matcher) ExpireStale(ctx context.Context) (int, error) {
	var expired []string
	var cancelled []string
	err := m.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		now := m.now().UTC()
		ids, err := m.requests.ExpireStale(ctx, tx, now)
		if err != nil {
			return err
		}
		expired = ids
		cancelled, err = m.expire(ctx, tx, ids, now, false)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(expired) > 0 {
		zap.L().Info("expired stale agent requests", zap.Int("expired", len(expired)), zap.Int("cancelled", len(cancelled)))
	}
	m.notifyExpired(ctx, cancelled)
	return len(expired), nil
}

// expire cancels the transactions behind requests that lapsed. When mark is
// set the request rows are flipped here too; the sweep has already done so.
func (m *Matcher) expire(ctx context.Context, tx store.Tx, transactionIDs []string, now time.Time, mark bool) ([]string, error) {
	if mark {
		var pending []string
		for _, id := range transactionIDs {
			rows, err := m.requests.Expire(ctx, tx, id, now)
			if err != nil {
				return nil, err
			}
			if rows > 0 {
				pending = append(pending, id)
			}
		}
		transactionIDs = pending
	}
	cancelled, err := m.transactions.CancelMatching(ctx, tx, transactionIDs, now)
	if err != nil {
		return nil, err
	}
	for _, id := range cancelled {
		if err := logTransactionAudit(ctx, m.audits, tx, "", "request_expired", id, map[string]string{
			"status": string(models.StatusCancelled),
		}); err != nil {
			return nil, err
		}
	}
	return cancelled, nil
}

func (m *Matcher) notifyExpired(ctx context.Context, transactionIDs []string) {
	for _, id := range transactionIDs {
		t, err := m.transactions.GetByID(ctx, id)
		if err != nil {
			zap.L().Warn("failed to load expired transaction", zap.String("transaction_id", id), zap.Error(err))
			continue
		}
		notifyClient(ctx, m.clients, m.notifier, t, EventRequestExpired)
	}
	if m.adminEmail != "" && len(transactionIDs) > 0 {
		m.notifier.Enqueue(expiryAlert(m.adminEmail, transactionIDs))
	}
}

// OpenRequests is the agent-facing list of requests still acceptable now.
func (m *Matcher) OpenRequests(ctx context.Context) ([]models.OpenRequest, error) {
	return m.requests.ListOpen(ctx, m.now().UTC())
}
