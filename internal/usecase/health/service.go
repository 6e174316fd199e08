package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	api   APIPinger
	store StorePinger
}

// New creates a Service. store can be nil when bookmarks are disabled.
func New(api APIPinger, store StorePinger) *Service {
	return &Service{api: api, store: store}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks["api"] = result(s.api.Ping(ctx))
	if s.store != nil {
		checks["bookmarks"] = result(s.store.Ping(ctx))
	}

	status := Healthy
	switch {
	case checks["api"] == CheckError && (s.store == nil || checks["bookmarks"] == CheckError):
		status = Unhealthy
	case checks["api"] == CheckError || checks["bookmarks"] == CheckError:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
