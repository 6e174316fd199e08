package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/curator/internal/domain"
	"github.com/kailas-cloud/curator/internal/domain/task"
	"github.com/kailas-cloud/curator/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterConsoleMetrics()
	os.Exit(m.Run())
}

const searchBody = `{
	"count": 2,
	"results": [
		{"id": 1, "title": "Kinematics", "description": "d", "resource_type": "problem", "preview_url": "/p/1"},
		{"id": 2, "title": "Energy", "description": null, "resource_type": "html", "preview_url": null}
	],
	"facet_counts": {
		"run": {"facet": {"key": "run", "label": "Run"}, "values": [{"key": "2017", "label": "2017", "count": 2}]},
		"course": {"facet": {"key": "course", "label": "Course", "missing_count": 3}, "values": [{"key": "8.01", "label": "8.01", "count": 1}]},
		"empty": {"facet": {"key": "empty", "label": "Empty"}, "values": [{"key": "x", "count": 0}]}
	},
	"selected_facets": {"course": {"8.01": true, "8.02": false}},
	"selected_missing_facets": {"run": true}
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(&Config{BaseURL: srv.URL + "/", Token: "secret"})
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/repositories/physics/search/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.RawQuery != "selected_facets=course_exact%3A8.01" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		_, _ = io.WriteString(w, searchBody)
	})

	page, err := c.SearcherFor("physics").Search(context.Background(), "?selected_facets=course_exact%3A8.01")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.TotalCount() != 2 || len(page.Items()) != 2 {
		t.Fatalf("page: count %d, items %d", page.TotalCount(), len(page.Items()))
	}
	if page.Items()[0].Title() != "Kinematics" || page.Items()[1].PreviewURL() != "" {
		t.Errorf("items = %+v", page.Items())
	}

	var keys []string
	for _, g := range page.Facets() {
		keys = append(keys, g.Facet.Key())
	}
	if !slices.Equal(keys, []string{"run", "course", "empty"}) {
		t.Errorf("facet order = %v, want payload order", keys)
	}
	if page.Facets()[1].Facet.MissingCount() != 3 {
		t.Errorf("missing count = %d", page.Facets()[1].Facet.MissingCount())
	}
	if page.Facets()[2].Values[0].Label != "x" {
		t.Errorf("label fallback = %q", page.Facets()[2].Values[0].Label)
	}

	echo := page.Selected()
	if !echo.IsSelected("course", "8.01") || echo.IsSelected("course", "8.02") || !echo.IsMissingSelected("run") {
		t.Errorf("echo = %+v", echo)
	}
}

func TestSearch_InvalidPayload(t *testing.T) {
	bodies := []string{
		`{"results": [], "facet_counts": {}}`,
		`{"count": 1, "results": [{"id": 0}], "facet_counts": {}}`,
		`{"count": 1, "results": [], "facet_counts": {"a": {"facet": {}, "values": []}}}`,
		`not json`,
	}
	for _, body := range bodies {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, body)
		})
		if _, err := c.Search(context.Background(), "repo", ""); !errors.Is(err, domain.ErrInvalidPayload) {
			t.Errorf("body %q: expected ErrInvalidPayload, got %v", body, err)
		}
	}
}

func TestSearch_SkipsUnaddressableFacet(t *testing.T) {
	const body = `{
		"count": 1,
		"results": [{"id": 1, "title": "Kinematics"}],
		"facet_counts": {
			"a:b": {"facet": {"key": "a:b", "label": "Broken"}, "values": [{"key": "x", "count": 1}]},
			"course": {"facet": {"key": "course"}, "values": [{"key": "8.01", "count": 1}]}
		}
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	core, logs := observer.New(zap.WarnLevel)
	c := NewClient(&Config{BaseURL: srv.URL, Logger: zap.New(core)})

	page, err := c.Search(context.Background(), "repo", "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Items()) != 1 {
		t.Errorf("items = %d", len(page.Items()))
	}
	if len(page.Facets()) != 1 || page.Facets()[0].Facet.Key() != "course" {
		t.Errorf("facets = %+v", page.Facets())
	}
	if n := logs.FilterMessage("skipping facet group").Len(); n != 1 {
		t.Errorf("warnings = %d, want 1", n)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusBadRequest, `{"detail": "bad facet"}`, domain.ErrRejected},
		{http.StatusForbidden, ``, domain.ErrRejected},
		{http.StatusNotFound, `{"detail": "no repo"}`, domain.ErrNotFound},
		{http.StatusBadGateway, `upstream`, domain.ErrServer},
	}
	for _, tc := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = io.WriteString(w, tc.body)
		})
		_, err := c.Search(context.Background(), "repo", "")
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		var apiErr *domain.APIError
		if !errors.As(err, &apiErr) || apiErr.Status != tc.status {
			t.Errorf("status %d: APIError = %v", tc.status, apiErr)
		}
	}

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"detail": "bad facet"}`)
	})
	_, err := c.Search(context.Background(), "repo", "")
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "bad facet" {
		t.Errorf("detail = %q", apiErr.Detail)
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(&Config{BaseURL: url})
	if err := c.Ping(context.Background()); !errors.Is(err, domain.ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestFetchByIDs_CommaList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/repositories/repo/resources/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("id"); got != "123,456" {
			t.Errorf("id = %q", got)
		}
		_, _ = io.WriteString(w, `{"results": [{"id": 123, "title": "a"}, {"id": 456, "title": "b"}]}`)
	})
	items, err := c.FetchByIDs(context.Background(), "repo", []int64{123, 456})
	if err != nil {
		t.Fatalf("FetchByIDs: %v", err)
	}
	if len(items) != 2 || items[1].ID() != 456 {
		t.Errorf("items = %+v", items)
	}
}

func TestFetchByIDs_EmptySkipsRequest(t *testing.T) {
	called := false
	c := newTestClient(t, func(http.ResponseWriter, *http.Request) { called = true })
	items, err := c.FetchByIDs(context.Background(), "repo", nil)
	if err != nil || items != nil || called {
		t.Errorf("items=%v err=%v called=%v", items, err, called)
	}
}

func TestTasks(t *testing.T) {
	var deleted []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/tasks/":
			var req submitRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode: %v", err)
			}
			if req.Kind != task.KindExport || req.Owner != "repo" || !slices.Equal(req.IDs, []int64{123}) {
				t.Errorf("submit body = %+v", req)
			}
			_, _ = io.WriteString(w, `{"id": "t2"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/tasks/t2/":
			_, _ = io.WriteString(w, `{"id": "t2", "kind": "resource_export", "owner": "repo", "status": "success", "result": {"url": "/x.tar.gz", "collision": true}}`)
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/tasks/":
			_, _ = io.WriteString(w, `{"results": [
				{"id": "i1", "kind": "import_course", "owner": "repo", "status": "processing", "result": null},
				{"id": "t2", "kind": "resource_export", "owner": "repo", "status": "queued"}
			]}`)
		case r.Method == http.MethodDelete:
			deleted = append(deleted, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})
	ctx := context.Background()

	id, err := c.SubmitExport(ctx, "repo", []int64{123})
	if err != nil || id != "t2" {
		t.Fatalf("SubmitExport = %q, %v", id, err)
	}

	tk, err := c.TaskStatus(ctx, id)
	if err != nil {
		t.Fatalf("TaskStatus: %v", err)
	}
	res, err := task.ParseExportResult(tk)
	if err != nil || res.URL != "/x.tar.gz" || !res.Collision {
		t.Errorf("result = %+v, %v", res, err)
	}

	list, err := c.ListTasks(ctx)
	if err != nil || len(list) != 2 || list[0].Kind() != task.KindImport {
		t.Fatalf("ListTasks = %v, %v", list, err)
	}

	if err := c.DeleteTask(ctx, "i1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if !slices.Equal(deleted, []string{"/api/v1/tasks/i1/"}) {
		t.Errorf("deleted = %v", deleted)
	}
}

func TestTaskStatus_UnknownStatusRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"id": "t1", "status": "exploded"}`)
	})
	if _, err := c.TaskStatus(context.Background(), "t1"); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestPendingExports(t *testing.T) {
	cleared := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/repositories/repo/export-selection/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Method == http.MethodDelete {
			cleared = true
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = io.WriteString(w, `{"ids": [123]}`)
	})
	ids, err := c.PendingIDs(context.Background(), "repo")
	if err != nil || !slices.Equal(ids, []int64{123}) {
		t.Errorf("PendingIDs = %v, %v", ids, err)
	}
	if err := c.ClearPending(context.Background(), "repo"); err != nil || !cleared {
		t.Errorf("ClearPending err=%v cleared=%v", err, cleared)
	}
}

func TestRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL, RequestsPerSecond: 1, Burst: 1})
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("first ping: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Ping(ctx); !errors.Is(err, domain.ErrTransport) {
		t.Errorf("expected throttled ping to fail with ErrTransport, got %v", err)
	}
}

func TestMetricsRecorded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	before := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues("status", "200"))
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	after := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues("status", "200"))
	if after-before != 1 {
		t.Errorf("api_requests_total delta = %v", after-before)
	}
}
