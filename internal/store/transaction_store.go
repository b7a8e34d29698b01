package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dust2cash/internal/models"

	"github.com/lib/pq"
)

type TransactionStore struct {
	db DB
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

const transactionColumns = `
	id, client_id, agent_id, platform, currency, amount, exchange_rate, fee_percent,
	transaction_fee, amount_to_receive, payment_method, payment_phone, transfer_address,
	status, request_timeout, created_at, updated_at
`

func (s *TransactionStore) Create(ctx context.Context, tx Execer, t models.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, client_id, agent_id, platform, currency, amount, exchange_rate, fee_percent,
		                          transaction_fee, amount_to_receive, payment_method, payment_phone, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`, t.ID, t.ClientID, t.AgentID, t.Platform, t.Currency, t.Amount, t.ExchangeRate, t.FeePercent,
		t.TransactionFee, t.AmountToReceive, t.PaymentMethod, t.PaymentPhone, t.Status, t.CreatedAt)
	return err
}

func (s *TransactionStore) GetByID(ctx context.Context, transactionID string) (models.Transaction, error) {
	var t models.Transaction
	err := s.db.GetContext(ctx, &t, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, transactionID)
	return t, notFound(err)
}

func (s *TransactionStore) GetForUpdate(ctx context.Context, tx Getter, transactionID string) (models.Transaction, error) {
	var t models.Transaction
	err := tx.GetContext(ctx, &t, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, transactionID)
	return t, notFound(err)
}

// TransitionInput describes one guarded status write. The row only changes
// when its current status is one of From and, when AgentID is set, it is
// assigned to that agent.
type TransitionInput struct {
	ID              string
	From            []models.Status
	To              models.Status
	AgentID         *string
	AssignAgent     bool
	TransferAddress *string
	RequestTimeout  *time.Time
	At              time.Time
}

// Transition applies input as a single conditional UPDATE and returns the
// number of rows changed (0 or 1).
func (s *TransactionStore) Transition(ctx context.Context, tx Execer, input TransitionInput) (int64, error) {
	if len(input.From) == 0 {
		return 0, fmt.Errorf("transition to %s: no source states", input.To)
	}
	sets := []string{"status = $1", "updated_at = $2"}
	args := []any{input.To, input.At, input.ID, pq.Array(statusStrings(input.From))}
	where := []string{"id = $3", "status = ANY($4)"}
	if input.AgentID != nil {
		args = append(args, *input.AgentID)
		param := "$" + itoa(len(args))
		if input.AssignAgent {
			sets = append(sets, "agent_id = "+param)
			where = append(where, "agent_id IS NULL")
		} else {
			where = append(where, "agent_id = "+param)
		}
	}
	if input.TransferAddress != nil {
		args = append(args, *input.TransferAddress)
		sets = append(sets, "transfer_address = $"+itoa(len(args)))
	}
	if input.RequestTimeout != nil {
		args = append(args, *input.RequestTimeout)
		sets = append(sets, "request_timeout = $"+itoa(len(args)))
	}
	query := "UPDATE transactions SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(where, " AND ")
	return rowsAffected(tx.ExecContext(ctx, query, args...))
}

// CancelMatching cancels the given transactions that are still waiting for
// an agent and returns the ids actually cancelled.
func (s *TransactionStore) CancelMatching(ctx context.Context, tx Selecter, transactionIDs []string, at time.Time) ([]string, error) {
	cancelled := []string{}
	if len(transactionIDs) == 0 {
		return cancelled, nil
	}
	err := tx.SelectContext(ctx, &cancelled, `
		UPDATE transactions
		SET status = $1, updated_at = $2
		WHERE id = ANY($3) AND status IN ('pending', 'agent_requested')
		RETURNING id
	`, models.StatusCancelled, at, pq.Array(transactionIDs))
	return cancelled, err
}

func (s *TransactionStore) ListByClient(ctx context.Context, clientID string, limit, offset int) ([]models.Transaction, error) {
	rows := []models.Transaction{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, clientID, limit, offset)
	return rows, err
}

func (s *TransactionStore) ListByAgent(ctx context.Context, agentID string, statuses []models.Status) ([]models.Transaction, error) {
	rows := []models.Transaction{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE agent_id = $1 AND status = ANY($2)
		ORDER BY updated_at DESC
	`, agentID, pq.Array(statusStrings(statuses)))
	return rows, err
}

func (s *TransactionStore) ListAll(ctx context.Context, status models.Status, limit, offset int) ([]models.Transaction, error) {
	rows := []models.Transaction{}
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	args := []any{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT $" + itoa(len(args)+1) + " OFFSET $" + itoa(len(args)+2)
	args = append(args, limit, offset)
	err := s.db.SelectContext(ctx, &rows, query, args...)
	return rows, err
}

func statusStrings(statuses []models.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

func itoa(value int) string {
	return fmt.Sprintf("%d", value)
}
