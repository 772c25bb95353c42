package store

import (
	"context"
	"database/sql"

	"github.com/autopeer-io/syncpeer/internal/console/core/model"
)

type agentRepository struct {
	db *sql.DB
}

func (r *agentRepository) Get(ctx context.Context, id string) (*model.Agent, error) {
	a := &model.Agent{}
	if err := getOne(ctx, r.db, "agent", a, "SELECT data FROM agents WHERE id = ?", id); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *agentRepository) GetByIP(ctx context.Context, ip string) (*model.Agent, error) {
	a := &model.Agent{}
	err := getOne(ctx, r.db, "agent", a,
		"SELECT data FROM agents WHERE ip_address = ? ORDER BY created_at LIMIT 1", ip)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *agentRepository) List(ctx context.Context) ([]*model.Agent, error) {
	return list[model.Agent](ctx, r.db, "agents", "SELECT data FROM agents ORDER BY created_at, id")
}

func (r *agentRepository) Create(ctx context.Context, a *model.Agent) error {
	data, err := marshal("agent", a)
	if err != nil {
		return err
	}
	return insert(ctx, r.db, "agent", `
		INSERT INTO agents (id, ip_address, created_at, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, a.ID, a.IPAddress, a.CreatedAt.UnixNano(), data)
}

func (r *agentRepository) Update(ctx context.Context, a *model.Agent) error {
	data, err := marshal("agent", a)
	if err != nil {
		return err
	}
	return update(ctx, r.db, "agent",
		"UPDATE agents SET ip_address = ?, data = ? WHERE id = ?", a.IPAddress, data, a.ID)
}
