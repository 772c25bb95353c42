package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/autopeer-io/syncpeer/internal/console/core"
	"github.com/autopeer-io/syncpeer/internal/console/core/model"
)

// CreateTest validates and stores a new test configuration.
func (s *Service) CreateTest(ctx context.Context, cfg *model.TestConfiguration) (*model.TestConfiguration, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", core.ErrInvalidArgument)
	}
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("%w: command is required", core.ErrInvalidArgument)
	}
	if cfg.Duration != nil && *cfg.Duration < 0 {
		return nil, fmt.Errorf("%w: duration must not be negative", core.ErrInvalidArgument)
	}

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Parameters == nil {
		cfg.Parameters = map[string]any{}
	}
	if cfg.TargetAgents == nil {
		cfg.TargetAgents = []string{}
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = s.clock.Now().UTC()
	}

	if err := s.tests.Create(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to create test configuration: %w", err)
	}
	return cfg, nil
}

func (s *Service) GetTest(ctx context.Context, id string) (*model.TestConfiguration, error) {
	return s.tests.Get(ctx, id)
}

func (s *Service) ListTests(ctx context.Context) ([]*model.TestConfiguration, error) {
	return s.tests.List(ctx)
}

func (s *Service) DeleteTest(ctx context.Context, id string) error {
	return s.tests.Delete(ctx, id)
}
