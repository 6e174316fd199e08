// Package poller drives one background job through submit, status polling
// and a single post-success cleanup.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/curator/internal/domain"
	"github.com/kailas-cloud/curator/internal/domain/task"
	"github.com/kailas-cloud/curator/internal/metrics"
)

// DefaultInterval is the delay between two status checks of a processing job.
const DefaultInterval = time.Second

// State is the poller lifecycle state.
type State string

// Poller states. Succeeded and Failed are terminal for one job.
const (
	Idle       State = "idle"
	Submitting State = "submitting"
	Polling    State = "polling"
	Succeeded  State = "succeeded"
	Failed     State = "failed"
)

// Messages are the user-visible strings of a flow. Transport failures and
// failed jobs share StatusFailed.
type Messages struct {
	SubmitFailed  string
	StatusFailed  string
	CleanupFailed string
}

// DefaultMessages returns generic messages.
func DefaultMessages() Messages {
	return Messages{
		SubmitFailed:  "Unable to submit the job.",
		StatusFailed:  "The job did not complete.",
		CleanupFailed: "The job finished, but its selection could not be cleared.",
	}
}

// Snapshot is the observable state of the poller.
type Snapshot[R any] struct {
	State     State
	TaskID    string
	Result    R
	HasResult bool
	// Cleared is true once the post-success cleanup succeeded.
	Cleared bool
	// Message is the user-visible error for this job, if any.
	Message string
	// Checks counts status requests issued for the current job.
	Checks int
}

// Poller is a reusable state machine for one kind of job. Only one job may be
// in flight at a time; a terminal poller accepts a new submission.
type Poller[P, R any] struct {
	flow     string
	backend  Backend[P]
	decode   DecodeFunc[R]
	cleanup  CleanupFunc[R]
	interval time.Duration
	messages Messages
	logger   *zap.Logger

	onTransition func(Snapshot[R])
	onCleared    func(context.Context, R)

	mu   sync.Mutex
	snap Snapshot[R]
	done chan struct{}
}

// New creates a poller. interval <= 0 selects DefaultInterval.
func New[P, R any](flow string, backend Backend[P], decode DecodeFunc[R], interval time.Duration) *Poller[P, R] {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller[P, R]{
		flow:     flow,
		backend:  backend,
		decode:   decode,
		interval: interval,
		messages: DefaultMessages(),
		logger:   zap.NewNop(),
		snap:     Snapshot[R]{State: Idle},
	}
}

// WithCleanup sets the step run once after success.
func (p *Poller[P, R]) WithCleanup(fn CleanupFunc[R]) *Poller[P, R] {
	p.cleanup = fn
	return p
}

// WithOnCleared sets the callback invoked only when cleanup succeeds.
func (p *Poller[P, R]) WithOnCleared(fn func(ctx context.Context, result R)) *Poller[P, R] {
	p.onCleared = fn
	return p
}

// WithOnTransition sets a hook receiving every state change.
func (p *Poller[P, R]) WithOnTransition(fn func(Snapshot[R])) *Poller[P, R] {
	p.onTransition = fn
	return p
}

// WithMessages overrides the user-visible messages. Empty fields keep defaults.
func (p *Poller[P, R]) WithMessages(m Messages) *Poller[P, R] {
	if m.SubmitFailed != "" {
		p.messages.SubmitFailed = m.SubmitFailed
	}
	if m.StatusFailed != "" {
		p.messages.StatusFailed = m.StatusFailed
	}
	if m.CleanupFailed != "" {
		p.messages.CleanupFailed = m.CleanupFailed
	}
	return p
}

// WithLogger sets the poller logger.
func (p *Poller[P, R]) WithLogger(l *zap.Logger) *Poller[P, R] {
	if l != nil {
		p.logger = l.With(zap.String("flow", p.flow))
	}
	return p
}

// Snapshot returns the current state.
func (p *Poller[P, R]) Snapshot() Snapshot[R] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// Start submits payload and, on success, polls in the background until the
// job is terminal. It returns the task id. A failed submission moves the
// poller to Failed and returns the error; no polling happens.
func (p *Poller[P, R]) Start(ctx context.Context, payload P) (string, error) {
	return p.StartWithin(ctx, ctx, payload)
}

// StartWithin is Start with the submission bound to ctx and the background
// polling bound to life. Cancelling ctx aborts only the submission.
func (p *Poller[P, R]) StartWithin(ctx, life context.Context, payload P) (string, error) {
	p.mu.Lock()
	if p.snap.State == Submitting || p.snap.State == Polling {
		p.mu.Unlock()
		return "", fmt.Errorf("%s: %w", p.flow, domain.ErrPollerBusy)
	}
	if life.Err() != nil {
		p.mu.Unlock()
		return "", fmt.Errorf("%s: %w", p.flow, domain.ErrDisposed)
	}
	done := make(chan struct{})
	p.done = done
	p.snap = Snapshot[R]{State: Submitting}
	snap := p.snap
	p.mu.Unlock()
	p.notify(snap)

	id, err := p.backend.Submit(ctx, payload)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		p.logger.Warn("submit failed", zap.Error(err))
		p.finish(life, func(s *Snapshot[R]) {
			s.State = Failed
			s.Message = p.messages.SubmitFailed
		})
		close(done)
		return "", fmt.Errorf("%s: submit: %w", p.flow, err)
	}
	if !p.transition(life, func(s *Snapshot[R]) {
		s.State = Polling
		s.TaskID = id
	}) {
		close(done)
		return "", fmt.Errorf("%s: %w", p.flow, domain.ErrDisposed)
	}
	p.logger.Info("job submitted", zap.String("task_id", id))

	go func() {
		defer close(done)
		p.poll(life, id)
	}()
	return id, nil
}

// Wait blocks until the current job has stopped or ctx is done.
func (p *Poller[P, R]) Wait(ctx context.Context) (Snapshot[R], error) {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return p.Snapshot(), nil
	}
	select {
	case <-done:
		return p.Snapshot(), nil
	case <-ctx.Done():
		return p.Snapshot(), fmt.Errorf("%s: %w: %w", p.flow, domain.ErrDisposed, ctx.Err())
	}
}

// Run submits payload and waits for the job to finish.
func (p *Poller[P, R]) Run(ctx context.Context, payload P) (Snapshot[R], error) {
	if _, err := p.Start(ctx, payload); err != nil {
		return p.Snapshot(), err
	}
	return p.Wait(ctx)
}

func (p *Poller[P, R]) poll(ctx context.Context, id string) {
	log := p.logger.With(zap.String("task_id", id))
	for {
		metrics.PollChecksTotal.WithLabelValues(p.flow).Inc()
		t, err := p.backend.Status(ctx, id)
		if !p.transition(ctx, func(s *Snapshot[R]) { s.Checks++ }) {
			log.Debug("session disposed, dropping status response")
			return
		}

		switch {
		case err != nil:
			log.Warn("status check failed", zap.Error(err))
			p.fail(ctx)
			return
		case t.Status() == task.StatusFailure:
			log.Warn("job failed")
			p.fail(ctx)
			return
		case t.Status() == task.StatusSuccess:
			r, derr := p.decode(t)
			if derr != nil {
				log.Warn("invalid job result", zap.Error(derr))
				p.fail(ctx)
				return
			}
			p.succeed(ctx, r)
			return
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Debug("session disposed, polling stopped")
			return
		case <-timer.C:
		}
	}
}

func (p *Poller[P, R]) fail(ctx context.Context) {
	p.finish(ctx, func(s *Snapshot[R]) {
		s.State = Failed
		s.Message = p.messages.StatusFailed
	})
}

func (p *Poller[P, R]) succeed(ctx context.Context, r R) {
	if !p.finish(ctx, func(s *Snapshot[R]) {
		s.State = Succeeded
		s.Result = r
		s.HasResult = true
	}) {
		return
	}
	if p.cleanup == nil {
		return
	}

	if err := p.cleanup(ctx, r); err != nil {
		p.logger.Warn("cleanup failed", zap.Error(err))
		p.transition(ctx, func(s *Snapshot[R]) { s.Message = p.messages.CleanupFailed })
		return
	}
	if !p.transition(ctx, func(s *Snapshot[R]) { s.Cleared = true }) {
		return
	}
	if p.onCleared != nil {
		p.onCleared(ctx, r)
	}
}

// finish applies a terminal transition and records the outcome.
func (p *Poller[P, R]) finish(ctx context.Context, fn func(s *Snapshot[R])) bool {
	var state State
	ok := p.transition(ctx, func(s *Snapshot[R]) {
		fn(s)
		state = s.State
	})
	if ok {
		metrics.TaskOutcomesTotal.WithLabelValues(p.flow, string(state)).Inc()
	}
	return ok
}

// transition mutates the snapshot unless ctx is done and notifies the hook.
func (p *Poller[P, R]) transition(ctx context.Context, fn func(s *Snapshot[R])) bool {
	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		return false
	}
	fn(&p.snap)
	snap := p.snap
	p.mu.Unlock()

	p.notify(snap)
	return true
}

func (p *Poller[P, R]) notify(snap Snapshot[R]) {
	if p.onTransition != nil {
		p.onTransition(snap)
	}
}
