// Package chi exposes view sessions over HTTP for a presentation layer.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/curator/internal/domain"
	"github.com/kailas-cloud/curator/internal/logger"
	healthuc "github.com/kailas-cloud/curator/internal/usecase/health"
	"github.com/kailas-cloud/curator/internal/usecase/search"
	"github.com/kailas-cloud/curator/internal/usecase/session"
)

const defaultDrain = 100

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the view session API.
type Server struct {
	sessions      *session.Manager
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(sessions *session.Manager, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		sessions: sessions,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		apiErrorHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInvalidSort, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrNoSelection, http.StatusUnprocessableEntity, codeNoSelection),
		sentinelHandler(domain.ErrPollerBusy, http.StatusConflict, codeBusy),
		sentinelHandler(domain.ErrDisposed, http.StatusGone, codeDisposed),
		sentinelHandler(domain.ErrInvalidPayload, http.StatusBadGateway, codeUpstreamInvalid),
		sentinelHandler(domain.ErrTransport, http.StatusServiceUnavailable, codeUpstreamUnavailable),
	}
	return s
}

// Register mounts the routes on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Post("/repositories/{repo}/sessions", s.OpenSession)
	r.Route("/sessions/{session}", func(r chi.Router) {
		r.Get("/", s.GetSession)
		r.Delete("/", s.CloseSession)
		r.Post("/facets", s.UpdateFacet)
		r.Post("/missing-facets", s.UpdateMissingFacet)
		r.Post("/sort", s.UpdateSort)
		r.Post("/search", s.UpdateSearch)
		r.Post("/page", s.UpdatePage)
		r.Post("/refresh", s.Refresh)
		r.Get("/exports", s.GetExports)
		r.Put("/exports", s.SelectExports)
		r.Post("/exports/submit", s.SubmitExport)
		r.Post("/imports/watch", s.WatchImports)
		r.Get("/events", s.Events)
	})
}

type openSessionRequest struct {
	ID    string `json:"id"`
	Query string `json:"query"`
}

// OpenSession handles POST /repositories/{repo}/sessions.
func (s *Server) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	sess, err := s.sessions.Open(r.Context(), req.ID, chi.URLParam(r, "repo"), req.Query)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", "/sessions/"+sess.ID())
	writeJSON(w, http.StatusCreated, viewToResponse(sess.Snapshot()))
}

// GetSession handles GET /sessions/{session}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewToResponse(sess.Snapshot()))
}

// CloseSession handles DELETE /sessions/{session}.
func (s *Server) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(chi.URLParam(r, "session")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type facetRequest struct {
	Facet    string `json:"facet"`
	Value    string `json:"value"`
	Selected bool   `json:"selected"`
}

// UpdateFacet handles POST /sessions/{session}/facets.
func (s *Server) UpdateFacet(w http.ResponseWriter, r *http.Request) {
	var req facetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Facet == "" || req.Value == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "facet and value are required")
		return
	}
	s.intent(w, r, func(sess *session.Session) (search.Outcome, error) {
		return sess.UpdateFacet(r.Context(), req.Facet, req.Value, req.Selected)
	})
}

// UpdateMissingFacet handles POST /sessions/{session}/missing-facets.
func (s *Server) UpdateMissingFacet(w http.ResponseWriter, r *http.Request) {
	var req facetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Facet == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "facet is required")
		return
	}
	s.intent(w, r, func(sess *session.Session) (search.Outcome, error) {
		return sess.UpdateMissingFacet(r.Context(), req.Facet, req.Selected)
	})
}

type sortRequest struct {
	Field string `json:"field"`
}

// UpdateSort handles POST /sessions/{session}/sort.
func (s *Server) UpdateSort(w http.ResponseWriter, r *http.Request) {
	var req sortRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.intent(w, r, func(sess *session.Session) (search.Outcome, error) {
		return sess.UpdateSort(r.Context(), req.Field)
	})
}

type searchRequest struct {
	Text string `json:"text"`
}

// UpdateSearch handles POST /sessions/{session}/search.
func (s *Server) UpdateSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.intent(w, r, func(sess *session.Session) (search.Outcome, error) {
		return sess.UpdateSearch(r.Context(), req.Text)
	})
}

type pageRequest struct {
	Page int `json:"page"`
}

// UpdatePage handles POST /sessions/{session}/page.
func (s *Server) UpdatePage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.intent(w, r, func(sess *session.Session) (search.Outcome, error) {
		return sess.UpdatePage(r.Context(), req.Page)
	})
}

// Refresh handles POST /sessions/{session}/refresh.
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	s.intent(w, r, func(sess *session.Session) (search.Outcome, error) {
		return sess.Refresh(r.Context())
	})
}

// GetExports handles GET /sessions/{session}/exports. The pending set is
// re-read from the content API first.
func (s *Server) GetExports(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.RefreshExports(r.Context()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exportToResponse(sess.Snapshot().Export))
}

// SelectExports handles PUT /sessions/{session}/exports?id=1,2.
func (s *Server) SelectExports(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var ids []int64
	if err := runtime.BindQueryParameter("form", false, true, "id", r.URL.Query(), &ids); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Invalid id list: "+err.Error())
		return
	}
	if err := sess.SelectExports(ids); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exportToResponse(sess.Snapshot().Export))
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

// SubmitExport handles POST /sessions/{session}/exports/submit.
func (s *Server) SubmitExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id, err := sess.SubmitExport(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{TaskID: id})
}

// WatchImports handles POST /sessions/{session}/imports/watch.
func (s *Server) WatchImports(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.WatchImports()
	writeJSON(w, http.StatusAccepted, importsToResponse(sess.Snapshot().Imports))
}

// Events handles GET /sessions/{session}/events?max=N.
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	limit := defaultDrain
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "max must be a positive integer")
			return
		}
		limit = n
	}
	events := sess.Drain(limit)
	out := make([]eventResponse, len(events))
	for i, ev := range events {
		out[i] = eventToResponse(ev)
	}
	writeJSON(w, http.StatusOK, eventListResponse{Items: out})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "session"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) intent(
	w http.ResponseWriter, r *http.Request, fn func(*session.Session) (search.Outcome, error),
) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	out, err := fn(sess)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intentResponse{
		Applied: out.Applied,
		Stale:   out.Stale,
		Page:    out.Page,
		View:    viewToResponse(sess.Snapshot()),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrInvalidQuery,
		domain.ErrInvalidSort,
		domain.ErrNoSelection,
		domain.ErrPollerBusy,
		domain.ErrDisposed,
		domain.ErrInvalidPayload,
		domain.ErrRejected,
		domain.ErrServer,
		domain.ErrTransport,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// apiErrorHandler reports a rejection by the content API with its status and
// detail. A 404 from upstream stays a 404.
func apiErrorHandler(w http.ResponseWriter, err error, msg string) bool {
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	status := http.StatusBadGateway
	if apiErr.Status == http.StatusNotFound {
		status = http.StatusNotFound
	}
	writeJSON(w, status, upstreamErrorResponse{
		Code:           codeUpstreamRejected,
		Message:        msg,
		UpstreamStatus: apiErr.Status,
		Detail:         apiErr.Detail,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContextOr(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}
