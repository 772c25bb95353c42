package core

import (
	"context"
	"time"
)

// Clock is the synchronized time source used to stamp records and schedule
// executions. *clock.Synchronizer implements it.
type Clock interface {
	Now() time.Time
	ExecutionTime(ctx context.Context, lead time.Duration) time.Time
}
