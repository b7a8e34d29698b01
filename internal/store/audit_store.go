package store

import (
	"context"

	"dust2cash/internal/models"
)

type AuditStore struct {
	db DB
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

// Log writes an audit row through tx so it commits with the change it records.
// An empty actorID is stored as NULL (system actions such as the sweep).
func (s *AuditStore) Log(ctx context.Context, tx Execer, actorID, action, entityType, entityID, data string) error {
	var actor *string
	if actorID != "" {
		actor = &actorID
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_user_id, action, entity_type, entity_id, data)
		VALUES (gen_random_uuid()::text, $1, $2, $3, $4, $5)
	`, actor, action, entityType, entityID, data)
	return err
}

func (s *AuditStore) List(ctx context.Context, entityID string, limit, offset int) ([]models.AuditLog, error) {
	logs := []models.AuditLog{}
	query := `SELECT id, actor_user_id, action, entity_type, entity_id, data, created_at FROM audit_logs`
	args := []any{}
	if entityID != "" {
		query += " WHERE entity_id = $1"
		args = append(args, entityID)
	}
	query += " ORDER BY created_at DESC LIMIT $" + itoa(len(args)+1) + " OFFSET $" + itoa(len(args)+2)
	args = append(args, limit, offset)
	err := s.db.SelectContext(ctx, &logs, query, args...)
	return logs, err
}
