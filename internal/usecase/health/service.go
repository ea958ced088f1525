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

// Component names used in Report.Checks.
const (
	ComponentStore   = "store"
	ComponentClarity = "clarity"
)

// Service coordinates health checks.
type Service struct {
	store    StorePinger
	upstream UpstreamChecker
}

// New creates a Service. upstream is nil in playback mode, where nothing
// talks to a real server; store is nil for a live client that records
// nothing.
func New(store StorePinger, upstream UpstreamChecker) *Service {
	return &Service{store: store, upstream: upstream}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.store != nil {
		checks[ComponentStore] = result(s.store.Ping(ctx))
	}
	if s.upstream != nil {
		checks[ComponentClarity] = result(s.upstream.HealthCheck(ctx))
	}

	status := Healthy
	switch {
	case checks[ComponentStore] == CheckError:
		// Nothing can be served or recorded without the store.
		status = Unhealthy
	case checks[ComponentClarity] == CheckError && s.store == nil:
		status = Unhealthy
	case checks[ComponentClarity] == CheckError:
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
