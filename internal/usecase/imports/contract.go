package imports

import (
	"context"

	"github.com/kailas-cloud/curator/internal/domain/task"
)

// TaskStore lists and deletes server-side jobs.
type TaskStore interface {
	ListTasks(ctx context.Context) ([]task.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
}
