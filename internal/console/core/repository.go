package core

import (
	"context"

	"github.com/autopeer-io/syncpeer/internal/console/core/model"
)

// AgentRepository persists agent records.
type AgentRepository interface {
	// Get returns ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (*model.Agent, error)

	// GetByIP returns ErrNotFound when no agent has registered from ip.
	GetByIP(ctx context.Context, ip string) (*model.Agent, error)

	List(ctx context.Context) ([]*model.Agent, error)

	// Create returns ErrConflict if the id is taken.
	Create(ctx context.Context, agent *model.Agent) error

	Update(ctx context.Context, agent *model.Agent) error
}

// TestRepository persists test configurations. Configurations are never
// updated in place.
type TestRepository interface {
	Get(ctx context.Context, id string) (*model.TestConfiguration, error)
	List(ctx context.Context) ([]*model.TestConfiguration, error)
	Create(ctx context.Context, cfg *model.TestConfiguration) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository persists test executions.
type ExecutionRepository interface {
	Get(ctx context.Context, id string) (*model.TestExecution, error)

	// List returns executions newest first, optionally restricted to status.
	List(ctx context.Context, status model.ExecutionStatus) ([]*model.TestExecution, error)

	Create(ctx context.Context, exec *model.TestExecution) error
	Update(ctx context.Context, exec *model.TestExecution) error
}

// Repository groups the record stores the console depends on.
type Repository interface {
	Agent() AgentRepository
	Test() TestRepository
	Execution() ExecutionRepository

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}
