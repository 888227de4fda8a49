package health

import "time"

// Status values
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status represents the health of one part of the collector
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"` // true if status is "healthy"
	Status      string    `json:"status"`  // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics carries the activity counters reported alongside a status
type Metrics struct {
	Uptime         time.Duration `json:"uptime"`
	ErrorCount     int           `json:"error_count"`
	LinesProcessed int64         `json:"lines_processed,omitempty"`
	LastActivity   time.Time     `json:"last_activity,omitempty"`
}

// IsHealthy reports whether the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StatusHealthy
}

// IsDegraded reports whether the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StatusDegraded
}

// IsUnhealthy reports whether the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StatusUnhealthy
}

// WithMetrics returns a copy of the status carrying metrics
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}
