// Package task models background jobs submitted to the remote API.
package task

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state reported by the server.
type Status string

// Task status values.
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailure    Status = "failure"
)

// IsValid checks if the status is one of the known values.
func (s Status) IsValid() bool {
	return s == StatusQueued || s == StatusProcessing || s == StatusSuccess || s == StatusFailure
}

// IsTerminal reports whether no further status change is expected.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Kind distinguishes job types.
type Kind string

// Job kinds.
const (
	KindExport Kind = "resource_export"
	KindImport Kind = "import_course"
)

// Task is one server-side job as last reported by a status response.
type Task struct {
	id     string
	kind   Kind
	status Status
	owner  string
	result json.RawMessage
}

// New validates and creates a task record.
func New(id string, kind Kind, status Status, owner string, result json.RawMessage) (Task, error) {
	if id == "" {
		return Task{}, fmt.Errorf("task id is required")
	}
	if !status.IsValid() {
		return Task{}, fmt.Errorf("task %s: unknown status %q", id, status)
	}
	return Task{id: id, kind: kind, status: status, owner: owner, result: result}, nil
}

// ID returns the task identifier.
func (t Task) ID() string { return t.id }

// Kind returns the job kind.
func (t Task) Kind() Kind { return t.kind }

// Status returns the reported status.
func (t Task) Status() Status { return t.status }

// Owner returns the owning repository slug.
func (t Task) Owner() string { return t.owner }

// Result returns the raw result payload (nil until success).
func (t Task) Result() json.RawMessage { return t.result }

// ExportResult is the payload of a successful export task.
type ExportResult struct {
	URL       string `json:"url"`
	Collision bool   `json:"collision"`
}

// ParseExportResult decodes and validates an export task result.
func ParseExportResult(t Task) (ExportResult, error) {
	var r ExportResult
	if len(t.result) == 0 {
		return r, fmt.Errorf("task %s: missing export result", t.id)
	}
	if err := json.Unmarshal(t.result, &r); err != nil {
		return r, fmt.Errorf("task %s: decode export result: %w", t.id, err)
	}
	if r.URL == "" {
		return r, fmt.Errorf("task %s: export result has no url", t.id)
	}
	return r, nil
}
