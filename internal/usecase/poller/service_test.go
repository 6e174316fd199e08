package poller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/curator/internal/domain"
	"github.com/kailas-cloud/curator/internal/domain/task"
)

// --- Mocks ---

type mockBackend struct {
	mu         sync.Mutex
	submitErr  error
	taskID     string
	statuses   []task.Status // consumed in order; last one repeats
	statusErr  error
	result     json.RawMessage
	submits    []string
	checks     int
	beforeNext func(check int)
}

func (m *mockBackend) Submit(_ context.Context, payload string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submits = append(m.submits, payload)
	if m.submitErr != nil {
		return "", m.submitErr
	}
	return m.taskID, nil
}

func (m *mockBackend) Status(_ context.Context, id string) (task.Task, error) {
	m.mu.Lock()
	m.checks++
	n := m.checks
	hook := m.beforeNext
	m.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	if m.statusErr != nil {
		return task.Task{}, m.statusErr
	}
	st := m.statuses[min(n-1, len(m.statuses)-1)]
	var res json.RawMessage
	if st == task.StatusSuccess {
		res = m.result
	}
	return task.New(id, task.KindExport, st, "repo", res)
}

func (m *mockBackend) checkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checks
}

type cleanupRecorder struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (c *cleanupRecorder) fn(_ context.Context, _ task.ExportResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func processing(n int) []task.Status {
	out := make([]task.Status, 0, n+1)
	for range n {
		out = append(out, task.StatusProcessing)
	}
	return append(out, task.StatusSuccess)
}

func newPoller(b *mockBackend, c *cleanupRecorder) *Poller[string, task.ExportResult] {
	p := New[string, task.ExportResult]("export", b, task.ParseExportResult, time.Millisecond)
	if c != nil {
		p.WithCleanup(c.fn)
	}
	return p
}

// --- Tests ---

func TestRun_ProcessingThenSuccess(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		b := &mockBackend{taskID: "t1", statuses: processing(n), result: json.RawMessage(`{"url":"/x.tar.gz"}`)}
		c := &cleanupRecorder{}
		var cleared []task.ExportResult
		p := newPoller(b, c).WithOnCleared(func(_ context.Context, r task.ExportResult) { cleared = append(cleared, r) })

		snap, err := p.Run(context.Background(), "payload")
		if err != nil {
			t.Fatalf("n=%d: Run: %v", n, err)
		}
		if snap.State != Succeeded {
			t.Errorf("n=%d: state = %q", n, snap.State)
		}
		if b.checkCount() != n+1 || snap.Checks != n+1 {
			t.Errorf("n=%d: checks = %d (snapshot %d), want %d", n, b.checkCount(), snap.Checks, n+1)
		}
		if c.calls != 1 {
			t.Errorf("n=%d: cleanup calls = %d, want 1", n, c.calls)
		}
		if !snap.Cleared || len(cleared) != 1 || cleared[0].URL != "/x.tar.gz" {
			t.Errorf("n=%d: cleared = %v, snapshot %+v", n, cleared, snap)
		}
		if snap.Message != "" {
			t.Errorf("n=%d: unexpected message %q", n, snap.Message)
		}
	}
}

func TestRun_CleanupFailureKeepsResult(t *testing.T) {
	b := &mockBackend{taskID: "t1", statuses: processing(1), result: json.RawMessage(`{"url":"/x.tar.gz","collision":true}`)}
	c := &cleanupRecorder{err: errors.New("delete failed")}
	clearedCalled := false
	p := newPoller(b, c).
		WithOnCleared(func(context.Context, task.ExportResult) { clearedCalled = true }).
		WithMessages(Messages{CleanupFailed: "cleanup broke"})

	snap, err := p.Run(context.Background(), "payload")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if snap.State != Succeeded || !snap.HasResult || snap.Result.URL != "/x.tar.gz" || !snap.Result.Collision {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Message != "cleanup broke" {
		t.Errorf("message = %q", snap.Message)
	}
	if clearedCalled || snap.Cleared {
		t.Error("onCleared must not run when cleanup fails")
	}
	if c.calls != 1 {
		t.Errorf("cleanup calls = %d", c.calls)
	}
}

func TestRun_SubmitFailureDoesNotPoll(t *testing.T) {
	b := &mockBackend{submitErr: domain.NewAPIError(400, "bad ids")}
	c := &cleanupRecorder{}
	p := newPoller(b, c)

	snap, err := p.Run(context.Background(), "payload")
	if !errors.Is(err, domain.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if snap.State != Failed || snap.Message != DefaultMessages().SubmitFailed {
		t.Errorf("snapshot = %+v", snap)
	}
	if b.checkCount() != 0 || c.calls != 0 {
		t.Errorf("checks = %d, cleanups = %d", b.checkCount(), c.calls)
	}
}

func TestRun_FailureStatusAndTransportErrorShareMessage(t *testing.T) {
	tests := []struct {
		name string
		b    *mockBackend
	}{
		{"job failure", &mockBackend{taskID: "t1", statuses: []task.Status{task.StatusProcessing, task.StatusFailure}}},
		{"transport", &mockBackend{taskID: "t1", statusErr: domain.ErrTransport}},
		{"server", &mockBackend{taskID: "t1", statusErr: domain.NewAPIError(502, "")}},
		{"bad result", &mockBackend{taskID: "t1", statuses: []task.Status{task.StatusSuccess}, result: json.RawMessage(`{}`)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := &cleanupRecorder{}
			snap, err := newPoller(tc.b, c).WithMessages(Messages{StatusFailed: "export failed"}).
				Run(context.Background(), "p")
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if snap.State != Failed || snap.Message != "export failed" {
				t.Errorf("snapshot = %+v", snap)
			}
			if c.calls != 0 {
				t.Error("cleanup must not run after failure")
			}
		})
	}
}

func TestRun_NoRetryAfterFailure(t *testing.T) {
	b := &mockBackend{taskID: "t1", statuses: []task.Status{task.StatusFailure}}
	p := newPoller(b, nil)
	if _, err := p.Run(context.Background(), "p"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if b.checkCount() != 1 {
		t.Errorf("checks = %d, want 1", b.checkCount())
	}
}

func TestStart_BusyWhilePolling(t *testing.T) {
	release := make(chan struct{})
	b := &mockBackend{taskID: "t1", statuses: processing(1), result: json.RawMessage(`{"url":"/a"}`)}
	b.beforeNext = func(n int) {
		if n == 1 {
			<-release
		}
	}
	p := newPoller(b, nil)

	if _, err := p.Start(context.Background(), "first"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := p.Start(context.Background(), "second"); !errors.Is(err, domain.ErrPollerBusy) {
		t.Errorf("expected ErrPollerBusy, got %v", err)
	}
	close(release)
	snap, err := p.Wait(context.Background())
	if err != nil || snap.State != Succeeded {
		t.Fatalf("Wait: %+v, %v", snap, err)
	}

	// terminal poller accepts a resubmission
	if _, err := p.Run(context.Background(), "third"); err != nil {
		t.Errorf("resubmission: %v", err)
	}
	if len(b.submits) != 2 {
		t.Errorf("submits = %v", b.submits)
	}
}

func TestRun_CancelWhilePollingSuppressesTransitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &mockBackend{taskID: "t1", statuses: processing(2), result: json.RawMessage(`{"url":"/a"}`)}
	b.beforeNext = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	c := &cleanupRecorder{}

	var mu sync.Mutex
	var states []State
	p := newPoller(b, c).WithOnTransition(func(s Snapshot[task.ExportResult]) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})

	if _, err := p.Start(ctx, "p"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// the background goroutine stops on its own once ctx is cancelled
	deadline := time.After(time.Second)
	for p.Snapshot().Checks < 1 {
		select {
		case <-deadline:
			t.Fatal("poller never checked")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)

	snap := p.Snapshot()
	if snap.State != Polling {
		t.Errorf("state after dispose = %q, want polling", snap.State)
	}
	if snap.Checks != 1 {
		t.Errorf("checks observed = %d, want 1", snap.Checks)
	}
	if c.calls != 0 {
		t.Error("cleanup ran after dispose")
	}
	mu.Lock()
	defer mu.Unlock()
	for _, s := range states {
		if s == Succeeded || s == Failed {
			t.Errorf("terminal transition %q observed after dispose", s)
		}
	}
}

func TestStart_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &mockBackend{taskID: "t1"}
	if _, err := newPoller(b, nil).Start(ctx, "p"); !errors.Is(err, domain.ErrDisposed) {
		t.Errorf("expected ErrDisposed, got %v", err)
	}
	if len(b.submits) != 0 {
		t.Error("submission must not happen after dispose")
	}
}

func TestOnTransition_Order(t *testing.T) {
	b := &mockBackend{taskID: "t9", statuses: processing(1), result: json.RawMessage(`{"url":"/a"}`)}
	var states []State
	p := newPoller(b, &cleanupRecorder{}).WithOnTransition(func(s Snapshot[task.ExportResult]) {
		if len(states) == 0 || states[len(states)-1] != s.State {
			states = append(states, s.State)
		}
	})
	if _, err := p.Run(context.Background(), "p"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []State{Submitting, Polling, Succeeded}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %q, want %q", i, states[i], want[i])
		}
	}
}

func TestNew_DefaultInterval(t *testing.T) {
	p := New[string, task.ExportResult]("export", &mockBackend{}, task.ParseExportResult, 0)
	if p.interval != DefaultInterval {
		t.Errorf("interval = %v", p.interval)
	}
	if p.Snapshot().State != Idle {
		t.Errorf("initial state = %q", p.Snapshot().State)
	}
}

func TestStartWithin_CallerCancelAbortsSubmission(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &mockBackend{taskID: "t1", statuses: processing(0), result: json.RawMessage(`{"url":"/a"}`)}
	p := newPoller(b, nil)

	if _, err := p.StartWithin(ctx, context.Background(), "p"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	snap := p.Snapshot()
	if snap.State != Failed || snap.Message != DefaultMessages().SubmitFailed {
		t.Errorf("snapshot = %+v", snap)
	}
	time.Sleep(10 * time.Millisecond)
	if n := b.checkCount(); n != 0 {
		t.Errorf("checks = %d, want 0", n)
	}
}

func TestStartWithin_PollingOutlivesCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &mockBackend{taskID: "t1", statuses: processing(2), result: json.RawMessage(`{"url":"/a"}`)}
	p := newPoller(b, nil)

	if _, err := p.StartWithin(ctx, context.Background(), "p"); err != nil {
		t.Fatalf("StartWithin: %v", err)
	}
	cancel()

	wctx, wcancel := context.WithTimeout(context.Background(), time.Second)
	defer wcancel()
	snap, err := p.Wait(wctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if snap.State != Succeeded || snap.Result.URL != "/a" {
		t.Errorf("snapshot = %+v", snap)
	}
}
