package messaging

import (
	"context"
	"time"
)

// healthSubject has no responders; a "no responders" reply still proves a round trip.
const healthSubject = "_HEALTH.ping"

// HealthStatus reports the state of a broker connection.
type HealthStatus struct {
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency_ns"`
	Error     string        `json:"error,omitempty"`
}

// Healthy reports whether the connection is usable.
func (s HealthStatus) Healthy() bool {
	return s.Connected && s.Error == ""
}

// CheckClientHealth reports connectivity and round-trip latency for client.
// A nil client is reported as disconnected.
func CheckClientHealth(ctx context.Context, client Client) HealthStatus {
	if client == nil {
		return HealthStatus{Error: "messaging disabled"}
	}
	if !client.IsConnected() {
		return HealthStatus{Error: "not connected to message broker"}
	}

	start := time.Now()
	_, _ = client.Request(ctx, healthSubject, []byte("ping"), 2*time.Second)
	return HealthStatus{
		Connected: true,
		Latency:   time.Since(start),
	}
}
