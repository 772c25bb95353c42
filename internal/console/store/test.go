package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/autopeer-io/syncpeer/internal/console/core"
	"github.com/autopeer-io/syncpeer/internal/console/core/model"
)

type testRepository struct {
	db *sql.DB
}

func (r *testRepository) Get(ctx context.Context, id string) (*model.TestConfiguration, error) {
	c := &model.TestConfiguration{}
	if err := getOne(ctx, r.db, "test", c, "SELECT data FROM tests WHERE id = ?", id); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *testRepository) List(ctx context.Context) ([]*model.TestConfiguration, error) {
	return list[model.TestConfiguration](ctx, r.db, "tests", "SELECT data FROM tests ORDER BY created_at DESC, id")
}

func (r *testRepository) Create(ctx context.Context, c *model.TestConfiguration) error {
	data, err := marshal("test", c)
	if err != nil {
		return err
	}
	return insert(ctx, r.db, "test", `
		INSERT INTO tests (id, created_at, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, c.ID, c.CreatedAt.UnixNano(), data)
}

func (r *testRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM tests WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete test: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("test: %w", core.ErrNotFound)
	}
	return nil
}
