package providers

import "context"

// Health summarizes whether a provider can currently do its job.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs a not-ready Health record with detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// HealthChecker is implemented by providers that can verify their
// credentials or external tools without doing real work.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}
