package core

import (
	"context"
	"time"

	"github.com/autopeer-io/syncpeer/internal/console/core/model"
)

// ResultArchive keeps the full output of agent results outside the record store.
type ResultArchive interface {
	// Archive stores one agent's result of an execution.
	Archive(ctx context.Context, executionID string, result *model.AgentResult) error

	// GeneratePresignedURL returns a temporary download link for an archived result.
	GeneratePresignedURL(ctx context.Context, executionID, agentID string, expiry time.Duration) (string, error)

	// CheckBucket ensures the bucket exists.
	CheckBucket(ctx context.Context) error
}
