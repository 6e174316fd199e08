// Package export archives the pending items of a repository through a polled
// background job.
package export

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/curator/internal/domain"
	"github.com/kailas-cloud/curator/internal/domain/search/result"
	"github.com/kailas-cloud/curator/internal/domain/task"
	"github.com/kailas-cloud/curator/internal/usecase/poller"
)

// Flow name used in logs and metrics.
const flowName = "export"

// DefaultMessages are the user-visible export messages.
func DefaultMessages() poller.Messages {
	return poller.Messages{
		SubmitFailed:  "Unable to start the export.",
		StatusFailed:  "There was an error while exporting.",
		CleanupFailed: "The export is ready, but the pending selection could not be cleared.",
	}
}

// State is the export view model.
type State struct {
	Exports             []result.Item
	Selected            []int64
	Poller              poller.State
	TaskID              string
	URL                 string
	Collision           bool
	Message             string
	ExportButtonVisible bool
}

// Service owns the pending export set of one repository for one view session.
type Service struct {
	repo    string
	pending PendingStore
	items   ItemFetcher
	poller  *poller.Poller[[]int64, task.ExportResult]
	logger  *zap.Logger

	onCleared func(ctx context.Context)
	onChange  func(State)

	mu       sync.Mutex
	exports  []result.Item
	selected map[int64]bool
}

// New creates an export flow. interval is the status polling interval.
func New(repo string, pending PendingStore, items ItemFetcher, backend TaskBackend, interval time.Duration) *Service {
	s := &Service{
		repo:     repo,
		pending:  pending,
		items:    items,
		logger:   zap.NewNop(),
		selected: map[int64]bool{},
	}
	s.poller = poller.New[[]int64, task.ExportResult](
		flowName, taskAdapter{repo: repo, backend: backend}, task.ParseExportResult, interval,
	).
		WithMessages(DefaultMessages()).
		WithCleanup(func(ctx context.Context, _ task.ExportResult) error {
			return s.pending.ClearPending(ctx, s.repo)
		}).
		WithOnCleared(s.cleared).
		WithOnTransition(func(poller.Snapshot[task.ExportResult]) { s.changed() })
	return s
}

// WithMessages overrides user-visible messages.
func (s *Service) WithMessages(m poller.Messages) *Service {
	s.poller.WithMessages(m)
	return s
}

// WithLogger sets the flow logger.
func (s *Service) WithLogger(l *zap.Logger) *Service {
	if l != nil {
		s.logger = l.With(zap.String("flow", flowName))
		s.poller.WithLogger(l)
	}
	return s
}

// WithOnCleared sets the callback run after the pending selection was cleared
// on the server and re-read.
func (s *Service) WithOnCleared(fn func(ctx context.Context)) *Service {
	s.onCleared = fn
	return s
}

// WithOnChange sets a hook receiving the view model after every change.
func (s *Service) WithOnChange(fn func(State)) *Service {
	s.onChange = fn
	return s
}

// Activate re-reads the pending set from the server and selects all of it.
func (s *Service) Activate(ctx context.Context) error {
	ids, err := s.pending.PendingIDs(ctx, s.repo)
	if err != nil {
		return fmt.Errorf("pending ids: %w", err)
	}
	var items []result.Item
	if len(ids) > 0 {
		items, err = s.items.FetchByIDs(ctx, s.repo, ids)
		if err != nil {
			return fmt.Errorf("fetch pending items: %w", err)
		}
	}
	if ctx.Err() != nil {
		return fmt.Errorf("activate: %w", domain.ErrDisposed)
	}

	s.mu.Lock()
	s.exports = items
	s.selected = make(map[int64]bool, len(items))
	for _, it := range items {
		s.selected[it.ID()] = true
	}
	s.mu.Unlock()

	s.logger.Debug("pending exports loaded", zap.Int("count", len(items)))
	s.changed()
	return nil
}

// Select narrows the submission to ids, which must all be pending.
func (s *Service) Select(ids []int64) error {
	s.mu.Lock()
	known := make(map[int64]bool, len(s.exports))
	for _, it := range s.exports {
		known[it.ID()] = true
	}
	next := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !known[id] {
			s.mu.Unlock()
			return fmt.Errorf("select %d: %w", id, domain.ErrNotFound)
		}
		next[id] = true
	}
	s.selected = next
	s.mu.Unlock()

	s.changed()
	return nil
}

// Submit starts an export of the selected items and returns the task id.
func (s *Service) Submit(ctx context.Context) (string, error) {
	return s.SubmitWithin(ctx, ctx)
}

// SubmitWithin is Submit with the request bound to ctx and the status
// polling bound to life.
func (s *Service) SubmitWithin(ctx, life context.Context) (string, error) {
	ids := s.selectedIDs()
	if len(ids) == 0 {
		return "", fmt.Errorf("submit export: %w", domain.ErrNoSelection)
	}
	id, err := s.poller.StartWithin(ctx, life, ids)
	if err != nil {
		return "", fmt.Errorf("submit export: %w", err)
	}
	return id, nil
}

// Wait blocks until the running export stops.
func (s *Service) Wait(ctx context.Context) (State, error) {
	if _, err := s.poller.Wait(ctx); err != nil {
		return s.State(), err
	}
	return s.State(), nil
}

// State returns the current view model.
func (s *Service) State() State {
	snap := s.poller.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Exports:             slices.Clone(s.exports),
		Selected:            s.selectedLocked(),
		Poller:              snap.State,
		TaskID:              snap.TaskID,
		URL:                 snap.Result.URL,
		Collision:           snap.Result.Collision,
		Message:             snap.Message,
		ExportButtonVisible: len(s.exports) > 0 && !busy(snap.State),
	}
}

func (s *Service) cleared(ctx context.Context, r task.ExportResult) {
	s.logger.Info("export finished, selection cleared",
		zap.String("url", r.URL), zap.Bool("collision", r.Collision))
	if err := s.Activate(ctx); err != nil {
		s.logger.Warn("failed to re-read pending exports", zap.Error(err))
	}
	if s.onCleared != nil {
		s.onCleared(ctx)
	}
}

// busy reports whether a job is being started or run.
func busy(st poller.State) bool {
	return st == poller.Submitting || st == poller.Polling
}

func (s *Service) changed() {
	if s.onChange != nil {
		s.onChange(s.State())
	}
}

func (s *Service) selectedIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedLocked()
}

// selectedLocked returns selected ids in pending order.
func (s *Service) selectedLocked() []int64 {
	ids := make([]int64, 0, len(s.selected))
	for _, it := range s.exports {
		if s.selected[it.ID()] {
			ids = append(ids, it.ID())
		}
	}
	return ids
}

type taskAdapter struct {
	repo    string
	backend TaskBackend
}

func (a taskAdapter) Submit(ctx context.Context, ids []int64) (string, error) {
	return a.backend.SubmitExport(ctx, a.repo, ids)
}

func (a taskAdapter) Status(ctx context.Context, id string) (task.Task, error) {
	return a.backend.TaskStatus(ctx, id)
}
