package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/autopeer-io/syncpeer/internal/console/core"
	"github.com/autopeer-io/syncpeer/internal/console/core/model"
	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
	"github.com/autopeer-io/syncpeer/pkg/log"
)

// RegisterAgent records an agent announcing itself and returns the id the
// console knows it by. An agent re-registering from a known IP address keeps
// its original id and is marked ready.
func (s *Service) RegisterAgent(ctx context.Context, reg *fleetv1alpha1.Registration) (string, error) {
	if reg.ID == "" || reg.IPAddress == "" {
		return "", fmt.Errorf("%w: id and ip_address are required", core.ErrInvalidArgument)
	}
	now := s.now()

	existing, err := s.agents.GetByIP(ctx, reg.IPAddress)
	switch {
	case err == nil:
		existing.Status = fleetv1alpha1.AgentStatusReady
		existing.LastSeen = now
		if reg.Hostname != "" {
			existing.Hostname = reg.Hostname
		}
		if err := s.agents.Update(ctx, existing); err != nil {
			return "", fmt.Errorf("failed to update agent: %w", err)
		}
		log.Info("Agent re-registered", "agentID", existing.ID, "announcedID", reg.ID, "ip", reg.IPAddress)
		return existing.ID, nil

	case !errors.Is(err, core.ErrNotFound):
		return "", err
	}

	agent := &model.Agent{
		ID:        reg.ID,
		Hostname:  reg.Hostname,
		IPAddress: reg.IPAddress,
		Status:    fleetv1alpha1.AgentStatusReady,
		LastSeen:  now,
		CreatedAt: now,
	}
	if err := s.agents.Create(ctx, agent); err != nil {
		return "", fmt.Errorf("failed to create agent: %w", err)
	}
	log.Info("Agent registered", "agentID", agent.ID, "hostname", agent.Hostname, "ip", agent.IPAddress)
	return agent.ID, nil
}

func (s *Service) GetAgent(ctx context.Context, id string) (*model.Agent, error) {
	return s.agents.Get(ctx, id)
}

func (s *Service) ListAgents(ctx context.Context) ([]*model.Agent, error) {
	return s.agents.List(ctx)
}
