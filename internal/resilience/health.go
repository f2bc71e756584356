package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
)

var statusRank = map[HealthStatus]int{
	HealthStatusHealthy:   0,
	HealthStatusDegraded:  1,
	HealthStatusUnhealthy: 2,
}

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name    string                 `json:"name"`
	Status  HealthStatus           `json:"status"`
	Message string                 `json:"message,omitempty"`
	Latency time.Duration          `json:"latency_ns,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthCheck represents a health check function.
type HealthCheck func(ctx context.Context) ComponentHealth

// SystemHealth is the combined result of every registered check.
type SystemHealth struct {
	Status     HealthStatus      `json:"status"`
	Uptime     string            `json:"uptime"`
	CheckedAt  time.Time         `json:"checked_at"`
	Components []ComponentHealth `json:"components"`
}

type namedCheck struct {
	name  string
	check HealthCheck
}

// HealthChecker runs registered checks on demand.
type HealthChecker struct {
	mu        sync.RWMutex
	checks    []namedCheck
	startTime time.Time
	timeout   time.Duration
}

// NewHealthChecker creates a checker. timeout bounds each check.
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthChecker{startTime: time.Now(), timeout: timeout}
}

// Register adds a check. Components are reported in registration order.
func (h *HealthChecker) Register(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, namedCheck{name: name, check: check})
}

// Check runs every check and reports the worst status as overall.
func (h *HealthChecker) Check(ctx context.Context) SystemHealth {
	h.mu.RLock()
	checks := append([]namedCheck(nil), h.checks...)
	h.mu.RUnlock()

	result := SystemHealth{
		Status:     HealthStatusHealthy,
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		CheckedAt:  time.Now().UTC(),
		Components: make([]ComponentHealth, 0, len(checks)),
	}

	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		health := c.check(checkCtx)
		cancel()

		health.Name = c.name
		if _, ok := statusRank[health.Status]; !ok {
			health.Status = HealthStatusUnhealthy
		}
		if statusRank[health.Status] > statusRank[result.Status] {
			result.Status = health.Status
		}
		result.Components = append(result.Components, health)
	}

	return result
}

// DatabaseHealthCheck creates a health check for database connections.
func DatabaseHealthCheck(ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		health := ComponentHealth{}

		start := time.Now()
		err := ping(ctx)
		health.Latency = time.Since(start)

		if err != nil {
			// The cache is optional, so a broken one only degrades service.
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("Database ping failed: %v", err)
			return health
		}

		if health.Latency > 100*time.Millisecond {
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("Database slow: %v", health.Latency)
			return health
		}

		health.Status = HealthStatusHealthy
		return health
	}
}

// CircuitBreakerHealthCheck reports an open circuit as degraded.
func CircuitBreakerHealthCheck(cb *CircuitBreaker) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		stats := cb.Stats()
		health := ComponentHealth{
			Status: HealthStatusHealthy,
			Details: map[string]interface{}{
				"state":          stats.State,
				"total_requests": stats.TotalRequests,
				"total_failures": stats.TotalFailures,
				"total_rejected": stats.TotalRejected,
			},
		}
		if stats.State != CircuitClosed {
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("circuit %s is %s", stats.Name, stats.State)
		}
		return health
	}
}

// StaticHealthCheck reports a fixed status, e.g. for a disabled component.
func StaticHealthCheck(status HealthStatus, message string) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: status, Message: message}
	}
}
