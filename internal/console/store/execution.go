package store

import (
	"context"
	"database/sql"

	"github.com/autopeer-io/syncpeer/internal/console/core/model"
)

type executionRepository struct {
	db *sql.DB
}

func (r *executionRepository) Get(ctx context.Context, id string) (*model.TestExecution, error) {
	e := &model.TestExecution{}
	if err := getOne(ctx, r.db, "execution", e, "SELECT data FROM executions WHERE id = ?", id); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *executionRepository) List(ctx context.Context, status model.ExecutionStatus) ([]*model.TestExecution, error) {
	if status == "" {
		return list[model.TestExecution](ctx, r.db, "executions",
			"SELECT data FROM executions ORDER BY start_time DESC, id")
	}
	return list[model.TestExecution](ctx, r.db, "executions",
		"SELECT data FROM executions WHERE status = ? ORDER BY start_time DESC, id", string(status))
}

func (r *executionRepository) Create(ctx context.Context, e *model.TestExecution) error {
	data, err := marshal("execution", e)
	if err != nil {
		return err
	}
	return insert(ctx, r.db, "execution", `
		INSERT INTO executions (id, config_id, status, start_time, data) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, e.ID, e.ConfigID, string(e.Status), e.StartTime.UnixNano(), data)
}

func (r *executionRepository) Update(ctx context.Context, e *model.TestExecution) error {
	data, err := marshal("execution", e)
	if err != nil {
		return err
	}
	return update(ctx, r.db, "execution",
		"UPDATE executions SET status = ?, data = ? WHERE id = ?", string(e.Status), data, e.ID)
}
