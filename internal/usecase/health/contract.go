package health

import "context"

// Pinger checks store availability (database, cache).
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks external provider availability.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
