package engine

import (
	"context"
	"time"
)

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDisabled  = "disabled"
)

// healthTimeout bounds each component check.
const healthTimeout = 2 * time.Second

// HealthCheck checks one component. A nil Check marks the component disabled;
// disabled components never make the engine unhealthy.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// ComponentHealth is one component's status.
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Health is the aggregate status.
type Health struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
}

// Health checks every registered component.
func (e *Engine) Health(ctx context.Context) Health {
	h := Health{Status: StatusHealthy, Components: make(map[string]ComponentHealth, len(e.health))}
	for _, c := range e.health {
		if c.Check == nil {
			h.Components[c.Name] = ComponentHealth{Status: StatusDisabled}
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, healthTimeout)
		err := c.Check(checkCtx)
		cancel()
		if err != nil {
			h.Status = StatusUnhealthy
			h.Components[c.Name] = ComponentHealth{Status: StatusUnhealthy, Error: err.Error()}
			continue
		}
		h.Components[c.Name] = ComponentHealth{Status: StatusHealthy}
	}
	return h
}
