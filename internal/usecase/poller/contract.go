package poller

import (
	"context"

	"github.com/kailas-cloud/curator/internal/domain/task"
)

// Backend submits a job and reports its status.
type Backend[P any] interface {
	Submit(ctx context.Context, payload P) (taskID string, err error)
	Status(ctx context.Context, taskID string) (task.Task, error)
}

// DecodeFunc extracts the typed result from a successful task.
type DecodeFunc[R any] func(t task.Task) (R, error)

// CleanupFunc is the single step run after a job succeeds.
type CleanupFunc[R any] func(ctx context.Context, result R) error
