// Package imports tracks the course import jobs of one repository.
package imports

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/curator/internal/domain"
	"github.com/kailas-cloud/curator/internal/domain/task"
	"github.com/kailas-cloud/curator/internal/metrics"
)

// DefaultInterval is the delay between two passes while imports are running.
const DefaultInterval = 3 * time.Second

const flowName = "imports"

// Pass summarizes one listing of the import jobs.
type Pass struct {
	// Active counts jobs still queued or processing.
	Active int
	// Deleted lists the finished jobs removed from the server, in order.
	Deleted []string
	// Refresh is true when a job seen processing earlier has since finished
	// or disappeared.
	Refresh bool
}

// State is the imports view model.
type State struct {
	Jobs     []task.Task
	Watching bool
}

// Service polls the job collection filtered to import jobs owned by repo.
type Service struct {
	repo     string
	store    TaskStore
	interval time.Duration
	logger   *zap.Logger

	onRefresh func(ctx context.Context)
	onChange  func(State)

	mu       sync.Mutex
	tracked  map[string]task.Task
	seen     map[string]bool
	watching bool
}

// New creates an import status flow. interval <= 0 selects DefaultInterval.
func New(repo string, store TaskStore, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		repo:     repo,
		store:    store,
		interval: interval,
		logger:   zap.NewNop(),
		tracked:  map[string]task.Task{},
		seen:     map[string]bool{},
	}
}

// WithLogger sets the flow logger.
func (s *Service) WithLogger(l *zap.Logger) *Service {
	if l != nil {
		s.logger = l.With(zap.String("flow", flowName))
	}
	return s
}

// WithOnRefresh sets the callback asking the parent view to reload.
func (s *Service) WithOnRefresh(fn func(ctx context.Context)) *Service {
	s.onRefresh = fn
	return s
}

// WithOnChange sets a hook receiving the view model after every pass.
func (s *Service) WithOnChange(fn func(State)) *Service {
	s.onChange = fn
	return s
}

// Check performs one pass: list, filter, delete finished jobs one after the
// other, and decide whether the parent must refresh. Deletion stops at the
// first failure; the remaining jobs are retried on the next pass.
func (s *Service) Check(ctx context.Context) (Pass, error) {
	all, err := s.store.ListTasks(ctx)
	if err != nil {
		return Pass{}, fmt.Errorf("list tasks: %w", err)
	}
	if ctx.Err() != nil {
		return Pass{}, fmt.Errorf("list tasks: %w", domain.ErrDisposed)
	}
	metrics.PollChecksTotal.WithLabelValues(flowName).Inc()

	current := make(map[string]task.Task)
	for _, t := range all {
		if t.Kind() == task.KindImport && t.Owner() == s.repo {
			current[t.ID()] = t
		}
	}

	var pass Pass
	s.mu.Lock()
	for id := range s.seen {
		t, ok := current[id]
		if !ok || t.Status().IsTerminal() {
			pass.Refresh = true
			delete(s.seen, id)
		}
	}
	var finished []task.Task
	for id, t := range current {
		if t.Status().IsTerminal() {
			finished = append(finished, t)
		} else {
			s.seen[id] = true
			pass.Active++
		}
	}
	s.tracked = current
	s.mu.Unlock()

	slices.SortFunc(finished, func(a, b task.Task) int { return cmp.Compare(a.ID(), b.ID()) })
	var delErr error
	for _, t := range finished {
		if err := s.store.DeleteTask(ctx, t.ID()); err != nil {
			metrics.ImportDeletionsTotal.WithLabelValues("error").Inc()
			delErr = fmt.Errorf("delete task %s: %w", t.ID(), err)
			break
		}
		metrics.ImportDeletionsTotal.WithLabelValues("ok").Inc()
		metrics.TaskOutcomesTotal.WithLabelValues(flowName, string(t.Status())).Inc()
		pass.Deleted = append(pass.Deleted, t.ID())
		s.mu.Lock()
		delete(s.tracked, t.ID())
		s.mu.Unlock()
	}

	s.logger.Debug("import pass",
		zap.Int("active", pass.Active),
		zap.Strings("deleted", pass.Deleted),
		zap.Bool("refresh", pass.Refresh))
	if pass.Refresh && s.onRefresh != nil && ctx.Err() == nil {
		s.onRefresh(ctx)
	}
	s.changed()
	return pass, delErr
}

// Watch repeats Check every interval while at least one import is active.
// It returns when none is, or when ctx is done. A failed delete does not end
// the watch while a job is still running; the next pass retries it.
func (s *Service) Watch(ctx context.Context) error {
	s.mu.Lock()
	if s.watching {
		s.mu.Unlock()
		return fmt.Errorf("watch imports: %w", domain.ErrPollerBusy)
	}
	s.watching = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.watching = false
		s.mu.Unlock()
		s.changed()
	}()

	for {
		pass, err := s.Check(ctx)
		if err != nil {
			if pass.Active == 0 {
				return err
			}
			s.logger.Warn("import pass failed, still watching",
				zap.Int("active", pass.Active), zap.Error(err))
		} else if pass.Active == 0 {
			s.logger.Info("no running imports, watch finished")
			return nil
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("watch imports: %w: %w", domain.ErrDisposed, ctx.Err())
		case <-timer.C:
		}
	}
}

// State returns the tracked jobs ordered by id.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]task.Task, 0, len(s.tracked))
	for _, t := range s.tracked {
		jobs = append(jobs, t)
	}
	slices.SortFunc(jobs, func(a, b task.Task) int { return cmp.Compare(a.ID(), b.ID()) })
	return State{Jobs: jobs, Watching: s.watching}
}

func (s *Service) changed() {
	if s.onChange != nil {
		s.onChange(s.State())
	}
}
