package store

import (
	"context"
	"time"

	"dust2cash/internal/models"
)

type AgentStore struct {
	db DB
}

func NewAgentStore(db DB) *AgentStore {
	return &AgentStore{db: db}
}

const agentSelect = `
	SELECT a.id, a.user_id, u.username, u.email, a.is_online, a.last_online
	FROM agent_profiles a
	JOIN users u ON u.id = a.user_id
`

func (s *AgentStore) Create(ctx context.Context, tx Execer, id, userID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO agent_profiles (id, user_id, is_online)
		VALUES ($1, $2, FALSE)
	`, id, userID)
	return err
}

func (s *AgentStore) GetByUserID(ctx context.Context, userID string) (models.AgentProfile, error) {
	var agent models.AgentProfile
	err := s.db.GetContext(ctx, &agent, agentSelect+` WHERE a.user_id = $1`, userID)
	return agent, notFound(err)
}

func (s *AgentStore) GetByID(ctx context.Context, agentID string) (models.AgentProfile, error) {
	var agent models.AgentProfile
	err := s.db.GetContext(ctx, &agent, agentSelect+` WHERE a.id = $1`, agentID)
	return agent, notFound(err)
}

// IsOnline reads presence inside tx, holding a share lock so the agent
// cannot flip offline between the check and the assignment that follows.
func (s *AgentStore) IsOnline(ctx context.Context, tx Getter, agentID string) (bool, error) {
	var online bool
	err := tx.GetContext(ctx, &online, `SELECT is_online FROM agent_profiles WHERE id = $1 FOR SHARE`, agentID)
	return online, notFound(err)
}

func (s *AgentStore) SetOnline(ctx context.Context, agentID string, at time.Time) error {
	return s.setPresence(ctx, `UPDATE agent_profiles SET is_online = TRUE, last_online = $2 WHERE id = $1`, agentID, at)
}

func (s *AgentStore) SetOffline(ctx context.Context, agentID string) error {
	return s.setPresence(ctx, `UPDATE agent_profiles SET is_online = FALSE WHERE id = $1`, agentID)
}

func (s *AgentStore) setPresence(ctx context.Context, query string, args ...any) error {
	rows, err := rowsAffected(s.db.ExecContext(ctx, query, args...))
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *AgentStore) ListOnline(ctx context.Context) ([]models.AgentProfile, error) {
	agents := []models.AgentProfile{}
	err := s.db.SelectContext(ctx, &agents, agentSelect+` WHERE a.is_online = TRUE ORDER BY a.last_online DESC`)
	return agents, err
}

func (s *AgentStore) ListAll(ctx context.Context) ([]models.AgentProfile, error) {
	agents := []models.AgentProfile{}
	err := s.db.SelectContext(ctx, &agents, agentSelect+` ORDER BY u.username`)
	return agents, err
}
