package export

import (
	"context"

	"github.com/kailas-cloud/curator/internal/domain/search/result"
	"github.com/kailas-cloud/curator/internal/domain/task"
)

// PendingStore reads and clears the server-side pending export set of a
// repository. Other writers may change it at any time.
type PendingStore interface {
	PendingIDs(ctx context.Context, repo string) ([]int64, error)
	ClearPending(ctx context.Context, repo string) error
}

// ItemFetcher loads full records for a batch of ids in one call.
type ItemFetcher interface {
	FetchByIDs(ctx context.Context, repo string, ids []int64) ([]result.Item, error)
}

// TaskBackend submits export jobs and reports their status.
type TaskBackend interface {
	SubmitExport(ctx context.Context, repo string, ids []int64) (taskID string, err error)
	TaskStatus(ctx context.Context, taskID string) (task.Task, error)
}
