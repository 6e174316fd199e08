package task

import (
	"encoding/json"
	"testing"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New("", KindExport, StatusQueued, "repo", nil); err == nil {
		t.Error("expected error for empty id")
	}
	if _, err := New("t1", KindExport, "done", "repo", nil); err == nil {
		t.Error("expected error for unknown status")
	}
	tk, err := New("t1", KindImport, StatusProcessing, "physics", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.ID() != "t1" || tk.Kind() != KindImport || tk.Status() != StatusProcessing || tk.Owner() != "physics" {
		t.Errorf("task = %+v", tk)
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := map[Status]bool{
		StatusQueued:     false,
		StatusProcessing: false,
		StatusSuccess:    true,
		StatusFailure:    true,
	}
	for s, want := range tests {
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, want)
		}
	}
}

func TestParseExportResult(t *testing.T) {
	tk, _ := New("t2", KindExport, StatusSuccess, "", json.RawMessage(`{"url":"/x.tar.gz","collision":true}`))
	r, err := ParseExportResult(tk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.URL != "/x.tar.gz" || !r.Collision {
		t.Errorf("result = %+v", r)
	}
}

func TestParseExportResult_Invalid(t *testing.T) {
	tests := []json.RawMessage{
		nil,
		json.RawMessage(`not json`),
		json.RawMessage(`{"collision":false}`),
	}
	for _, raw := range tests {
		tk, _ := New("t2", KindExport, StatusSuccess, "", raw)
		if _, err := ParseExportResult(tk); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}
