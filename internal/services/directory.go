package services

import (
	"context"
	"time"

	"dust2cash/internal/models"

	"go.uber.org/zap"
)

// Directory tracks agent presence. Each agent only writes its own row, so
// presence toggles need no cross-agent coordination.
type Directory struct {
	agents   AgentStore
	requests AgentRequestStore
	notifier Notifier
	now      func() time.Time
}

func NewDirectory(agents AgentStore, requests AgentRequestStore, notifier Notifier) *Directory {
	return &Directory{
		agents:   agents,
		requests: requests,
		notifier: orDiscard(notifier),
		now:      time.Now,
	}
}

func (d *Directory) Agent(ctx context.Context, userID string) (models.AgentProfile, error) {
	agent, err := d.agents.GetByUserID(ctx, userID)
	if err != nil {
		if mapNotFound(err) == ErrNotFound {
			return models.AgentProfile{}, ErrNotAgent
		}
		return models.AgentProfile{}, err
	}
	return agent, nil
}

// GoOnline marks the agent available and tells every client still waiting
// on an open request.
func (d *Directory) GoOnline(ctx context.Context, userID string) (models.AgentProfile, error) {
	agent, err := d.Agent(ctx, userID)
	if err != nil {
		return models.AgentProfile{}, err
	}
	now := d.now().UTC()
	if err := d.agents.SetOnline(ctx, agent.ID, now); err != nil {
		return models.AgentProfile{}, mapNotFound(err)
	}
	agent.IsOnline = true
	agent.LastOnline = &now

	waiting, err := d.requests.ClientsWaiting(ctx, now)
	if err != nil {
		zap.L().Warn("failed to list waiting clients", zap.String("agent_id", agent.ID), zap.Error(err))
		return agent, nil
	}
	d.notifier.Enqueue(agentAvailableMessages(waiting)...)
	return agent, nil
}

// GoOffline leaves transactions already assigned to the agent untouched.
func (d *Directory) GoOffline(ctx context.Context, userID string) (models.AgentProfile, error) {
	agent, err := d.Agent(ctx, userID)
	if err != nil {
		return models.AgentProfile{}, err
	}
	if err := d.agents.SetOffline(ctx, agent.ID); err != nil {
		return models.AgentProfile{}, mapNotFound(err)
	}
	agent.IsOnline = false
	return agent, nil
}

func (d *Directory) ListOnline(ctx context.Context) ([]models.AgentProfile, error) {
	return d.agents.ListOnline(ctx)
}

func (d *Directory) ListAll(ctx context.Context) ([]models.AgentProfile, error) {
	return d.agents.ListAll(ctx)
}
