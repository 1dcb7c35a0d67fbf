package channels

import "time"

// Status represents the connection status of a channel adapter.
type Status struct {
	Connected bool
	Error     string
	LastPing  int64
}

// HealthStatus represents the result of a health check.
type HealthStatus struct {
	Healthy   bool
	Latency   time.Duration
	Message   string
	LastCheck time.Time
	Degraded  bool
}
