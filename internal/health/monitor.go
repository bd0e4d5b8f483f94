package health

import (
	"context"
	"sync"
	"time"
)

// Checker reports whether one infrastructure component is reachable.
type Checker func(ctx context.Context) error

// Monitor aggregates health status from the registered components.
type Monitor struct {
	critical   map[string]Checker
	optional   map[string]Checker
	lastCheck  time.Time
	lastReport map[string]ComponentHealth
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		critical:   make(map[string]Checker),
		optional:   make(map[string]Checker),
		lastReport: make(map[string]ComponentHealth),
	}
}

// RegisterCritical registers a component whose failure marks the system
// critical (the store: nothing works without it).
func (m *Monitor) RegisterCritical(name string, check Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.critical[name] = check
}

// RegisterOptional registers a component whose failure only degrades the
// system (the broadcaster: progress events are best-effort).
func (m *Monitor) RegisterOptional(name string, check Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optional[name] = check
}

// CheckHealth probes every registered component.
func (m *Monitor) CheckHealth(ctx context.Context) map[string]ComponentHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks (e.g. max once per 10s) to avoid hammering the
	// backing services
	if time.Since(m.lastCheck) < 10*time.Second && len(m.lastReport) > 0 {
		return m.lastReport
	}

	report := make(map[string]ComponentHealth)
	probe := func(name string, check Checker, failStatus SystemStatus) {
		health := ComponentHealth{Component: name, Status: StatusHealthy}
		if err := check(ctx); err != nil {
			health.Status = failStatus
			health.Error = err.Error()
		}
		report[name] = health
	}

	for name, check := range m.critical {
		probe(name, check, StatusCritical)
	}
	for name, check := range m.optional {
		probe(name, check, StatusDegraded)
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
