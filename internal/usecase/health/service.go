package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component is failing.
	Degraded Status = "degraded"
	// Unhealthy indicates the database is unreachable.
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

// DefaultCheckTimeout bounds each component check.
const DefaultCheckTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type check struct {
	name string
	fn   func(ctx context.Context) error
}

// Service coordinates health checks.
type Service struct {
	db      Pinger
	checks  []check
	timeout time.Duration
}

// Option adds an optional component to the report.
type Option func(*Service)

// WithCache reports the embedding cache.
func WithCache(p Pinger) Option {
	return func(s *Service) {
		s.checks = append(s.checks, check{name: "cache", fn: p.Ping})
	}
}

// WithEmbedding reports the embedding provider.
func WithEmbedding(c ProviderChecker) Option {
	return func(s *Service) {
		s.checks = append(s.checks, check{name: "embedding", fn: c.HealthCheck})
	}
}

// New creates a Service.
func New(db Pinger, opts ...Option) *Service {
	s := &Service{db: db, timeout: DefaultCheckTimeout}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, len(s.checks)+1)

	status := Healthy
	if s.run(ctx, s.db.Ping) {
		checks["database"] = CheckOK
	} else {
		checks["database"] = CheckError
		status = Unhealthy
	}

	for _, c := range s.checks {
		if s.run(ctx, c.fn) {
			checks[c.name] = CheckOK
			continue
		}
		checks[c.name] = CheckError
		if status == Healthy {
			status = Degraded
		}
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) run(ctx context.Context, fn func(context.Context) error) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx) == nil
}
