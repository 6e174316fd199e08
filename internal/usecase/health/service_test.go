package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck(t *testing.T) {
	down := errors.New("down")
	tests := []struct {
		name      string
		api       error
		store     StorePinger
		want      Status
		wantAPI   CheckResult
		wantStore CheckResult
	}{
		{"all healthy", nil, &mockPinger{}, Healthy, CheckOK, CheckOK},
		{"api down", down, &mockPinger{}, Degraded, CheckError, CheckOK},
		{"store down", nil, &mockPinger{err: down}, Degraded, CheckOK, CheckError},
		{"both down", down, &mockPinger{err: down}, Unhealthy, CheckError, CheckError},
		{"no store", nil, nil, Healthy, CheckOK, ""},
		{"no store, api down", down, nil, Unhealthy, CheckError, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := New(&mockPinger{err: tc.api}, tc.store).Check(context.Background())
			if r.Status != tc.want {
				t.Errorf("status = %q, want %q", r.Status, tc.want)
			}
			if r.Checks["api"] != tc.wantAPI {
				t.Errorf("api = %q, want %q", r.Checks["api"], tc.wantAPI)
			}
			got, ok := r.Checks["bookmarks"]
			if tc.store == nil && ok {
				t.Error("bookmarks check should be absent without a store")
			}
			if got != tc.wantStore {
				t.Errorf("bookmarks = %q, want %q", got, tc.wantStore)
			}
		})
	}
}
