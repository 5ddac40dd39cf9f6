// Package health tracks per-resource availability for the resolution
// engine. Resource health derives from circuit breaker state: a closed
// breaker is healthy, a half-open breaker probing recovery is degraded,
// and an open breaker is unhealthy.
package health

import (
	"sync"
	"time"

	"github.com/c360/idresolve/pkg/breaker"
)

// Status is the health state of one resource or of the engine.
type Status struct {
	Resource    string    `json:"resource"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// IsHealthy reports a fully available resource.
func (s Status) IsHealthy() bool { return s.Status == "healthy" }

// IsDegraded reports a resource probing recovery.
func (s Status) IsDegraded() bool { return s.Status == "degraded" }

// IsUnhealthy reports a resource in cool-down.
func (s Status) IsUnhealthy() bool { return s.Status == "unhealthy" }

// NewHealthy creates a healthy status.
func NewHealthy(resource, message string) Status {
	return Status{Resource: resource, Healthy: true, Status: "healthy", Message: message, Timestamp: time.Now()}
}

// NewDegraded creates a degraded status.
func NewDegraded(resource, message string) Status {
	return Status{Resource: resource, Status: "degraded", Message: message, Timestamp: time.Now()}
}

// NewUnhealthy creates an unhealthy status.
func NewUnhealthy(resource, message string) Status {
	return Status{Resource: resource, Status: "unhealthy", Message: message, Timestamp: time.Now()}
}

// FromBreakerState maps a circuit breaker state onto resource health.
func FromBreakerState(resource string, state breaker.State) Status {
	switch state {
	case breaker.StateOpen:
		return NewUnhealthy(resource, "circuit open, resource in cool-down")
	case breaker.StateHalfOpen:
		return NewDegraded(resource, "circuit half-open, probing recovery")
	default:
		return NewHealthy(resource, "circuit closed")
	}
}

// Monitor tracks resource health with safe concurrent access.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{statuses: make(map[string]Status)}
}

// Update records a resource's status.
func (m *Monitor) Update(resource string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Resource = resource
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[resource] = status
}

// Get retrieves a resource's status.
func (m *Monitor) Get(resource string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[resource]
	return status, ok
}

// All returns a copy of every tracked status.
func (m *Monitor) All() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Status, len(m.statuses))
	for name, status := range m.statuses {
		out[name] = status
	}
	return out
}

// Refresh pulls current breaker states into the monitor and returns the
// aggregated engine status. Resources the breaker group has never seen
// keep their last recorded status.
func (m *Monitor) Refresh(breakers *breaker.Group) Status {
	for resource, state := range breakers.States() {
		m.Update(resource, FromBreakerState(resource, state))
	}
	return m.Aggregate("engine")
}

// Aggregate combines all tracked statuses: any unhealthy resource makes
// the engine degraded (other paths may still resolve), all unhealthy
// makes it unhealthy, and an empty monitor is healthy.
func (m *Monitor) Aggregate(name string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var unhealthy, degraded int
	subs := make([]Status, 0, len(m.statuses))
	for _, s := range m.statuses {
		subs = append(subs, s)
		switch {
		case s.IsUnhealthy():
			unhealthy++
		case s.IsDegraded():
			degraded++
		}
	}

	var agg Status
	switch {
	case len(m.statuses) > 0 && unhealthy == len(m.statuses):
		agg = NewUnhealthy(name, "all resources unavailable")
	case unhealthy > 0 || degraded > 0:
		agg = NewDegraded(name, "some resources unavailable")
	default:
		agg = NewHealthy(name, "all resources available")
	}
	agg.SubStatuses = subs
	return agg
}
