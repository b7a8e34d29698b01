package store

import (
	"context"
	"time"

	"dust2cash/internal/models"
)

// AgentRequestStore persists the broadcast invitations. Every state change
// is a conditional UPDATE; callers inspect the affected row count instead of
// reading first, so concurrent accept and expiry attempts cannot both win.
type AgentRequestStore struct {
	db DB
}

func NewAgentRequestStore(db DB) *AgentRequestStore {
	return &AgentRequestStore{db: db}
}

const agentRequestColumns = `transaction_id, requested_at, expires_at, is_accepted, is_expired`

func (s *AgentRequestStore) Get(ctx context.Context, q Getter, transactionID string) (models.AgentRequest, error) {
	var req models.AgentRequest
	err := q.GetContext(ctx, &req, `SELECT `+agentRequestColumns+` FROM agent_requests WHERE transaction_id = $1`, transactionID)
	return req, notFound(err)
}

func (s *AgentRequestStore) GetByTransaction(ctx context.Context, transactionID string) (models.AgentRequest, error) {
	return s.Get(ctx, s.db, transactionID)
}

func (s *AgentRequestStore) Create(ctx context.Context, tx Execer, transactionID string, requestedAt, expiresAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO agent_requests (transaction_id, requested_at, expires_at, is_accepted, is_expired)
		VALUES ($1, $2, $3, FALSE, FALSE)
	`, transactionID, requestedAt, expiresAt)
	return err
}

// Reopen resets a request whose previous window lapsed or was closed.
func (s *AgentRequestStore) Reopen(ctx context.Context, tx Execer, transactionID string, requestedAt, expiresAt time.Time) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE agent_requests
		SET requested_at = $2, expires_at = $3, is_accepted = FALSE, is_expired = FALSE
		WHERE transaction_id = $1 AND is_accepted = FALSE AND (is_expired = TRUE OR expires_at <= $2)
	`, transactionID, requestedAt, expiresAt))
}

// Accept flips is_accepted on a still-open request.
func (s *AgentRequestStore) Accept(ctx context.Context, tx Execer, transactionID string, now time.Time) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE agent_requests
		SET is_accepted = TRUE
		WHERE transaction_id = $1 AND is_accepted = FALSE AND is_expired = FALSE AND expires_at > $2
	`, transactionID, now))
}

// Expire marks a single lapsed request expired.
func (s *AgentRequestStore) Expire(ctx context.Context, tx Execer, transactionID string, now time.Time) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE agent_requests
		SET is_expired = TRUE
		WHERE transaction_id = $1 AND is_accepted = FALSE AND is_expired = FALSE AND expires_at <= $2
	`, transactionID, now))
}

// Close withdraws an open request regardless of its remaining TTL.
func (s *AgentRequestStore) Close(ctx context.Context, tx Execer, transactionID string) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE agent_requests
		SET is_expired = TRUE
		WHERE transaction_id = $1 AND is_accepted = FALSE AND is_expired = FALSE
	`, transactionID))
}

// ExpireStale marks every lapsed, unaccepted request expired and returns the
// owning transaction ids. Rows already expired are skipped, so a second run
// over the same data returns nothing.
func (s *AgentRequestStore) ExpireStale(ctx context.Context, tx Selecter, now time.Time) ([]string, error) {
	ids := []string{}
	err := tx.SelectContext(ctx, &ids, `
		UPDATE agent_requests
		SET is_expired = TRUE
		WHERE is_expired = FALSE AND is_accepted = FALSE AND expires_at < $1
		RETURNING transaction_id
	`, now)
	return ids, err
}

func (s *AgentRequestStore) ListOpen(ctx context.Context, now time.Time) ([]models.OpenRequest, error) {
	rows := []models.OpenRequest{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT r.transaction_id, TRIM(c.first_name || ' ' || c.last_name) AS client_name,
		       t.platform, t.currency, t.amount, t.amount_to_receive, t.payment_method,
		       r.requested_at, r.expires_at
		FROM agent_requests r
		JOIN transactions t ON t.id = r.transaction_id
		JOIN client_profiles c ON c.id = t.client_id
		WHERE r.is_accepted = FALSE AND r.is_expired = FALSE AND r.expires_at > $1
		  AND t.status = 'agent_requested'
		ORDER BY r.requested_at ASC
	`, now)
	return rows, err
}

// ClientsWaiting lists the clients holding an open request at now.
func (s *AgentRequestStore) ClientsWaiting(ctx context.Context, now time.Time) ([]models.Contact, error) {
	rows := []models.Contact{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT c.user_id, TRIM(c.first_name || ' ' || c.last_name) AS name, c.email
		FROM agent_requests r
		JOIN transactions t ON t.id = r.transaction_id
		JOIN client_profiles c ON c.id = t.client_id
		WHERE r.is_accepted = FALSE AND r.is_expired = FALSE AND r.expires_at > $1
	`, now)
	return rows, err
}
