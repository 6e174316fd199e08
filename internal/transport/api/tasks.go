package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kailas-cloud/curator/internal/domain"
	"github.com/kailas-cloud/curator/internal/domain/task"
)

type taskDTO struct {
	ID     string          `json:"id"`
	Kind   string          `json:"kind"`
	Owner  string          `json:"owner"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

type taskListResponse struct {
	Results []taskDTO `json:"results"`
}

type submitRequest struct {
	Kind  task.Kind `json:"kind"`
	Owner string    `json:"owner"`
	IDs   []int64   `json:"ids"`
}

type submitResponse struct {
	ID string `json:"id"`
}

type idListResponse struct {
	IDs []int64 `json:"ids"`
}

// SubmitExport creates an export job for ids and returns its task id.
func (c *Client) SubmitExport(ctx context.Context, repo string, ids []int64) (string, error) {
	var resp submitResponse
	body := submitRequest{Kind: task.KindExport, Owner: repo, IDs: ids}
	if err := c.do(ctx, "submit_export", http.MethodPost, "/api/v1/tasks/", body, submitResponseSchema, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// TaskStatus returns the current state of one job.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (task.Task, error) {
	var resp taskDTO
	path := "/api/v1/tasks/" + url.PathEscape(taskID) + "/"
	if err := c.do(ctx, "task_status", http.MethodGet, path, nil, taskResponseSchema, &resp); err != nil {
		return task.Task{}, err
	}
	return resp.toTask()
}

// ListTasks returns every job visible to the caller.
func (c *Client) ListTasks(ctx context.Context) ([]task.Task, error) {
	var resp taskListResponse
	if err := c.do(ctx, "list_tasks", http.MethodGet, "/api/v1/tasks/", nil, taskListSchema, &resp); err != nil {
		return nil, err
	}
	out := make([]task.Task, 0, len(resp.Results))
	for _, d := range resp.Results {
		t, err := d.toTask()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// DeleteTask removes a finished job.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	path := "/api/v1/tasks/" + url.PathEscape(taskID) + "/"
	return c.do(ctx, "delete_task", http.MethodDelete, path, nil, nil, nil)
}

// PendingIDs returns the repository's pending export selection.
func (c *Client) PendingIDs(ctx context.Context, repo string) ([]int64, error) {
	var resp idListResponse
	path := "/api/v1/repositories/" + url.PathEscape(repo) + "/export-selection/"
	if err := c.do(ctx, "pending_exports", http.MethodGet, path, nil, idListSchema, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

// ClearPending empties the repository's pending export selection.
func (c *Client) ClearPending(ctx context.Context, repo string) error {
	path := "/api/v1/repositories/" + url.PathEscape(repo) + "/export-selection/"
	return c.do(ctx, "clear_pending_exports", http.MethodDelete, path, nil, nil, nil)
}

func (d taskDTO) toTask() (task.Task, error) {
	t, err := task.New(d.ID, task.Kind(d.Kind), task.Status(d.Status), d.Owner, d.Result)
	if err != nil {
		return task.Task{}, fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
	}
	return t, nil
}
