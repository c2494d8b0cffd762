package directory

import (
	"time"

	domain "github.com/example/realtime-gateway-demo/domain/directory"
)

// Service names for request-reply.
const (
	ServiceRegister  = "register"
	ServiceDiscover  = "discover"
	ServiceHeartbeat = "heartbeat"
)

// RegisterRequest registers or replaces a service.
type RegisterRequest struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RegisterResponse acknowledges register.
type RegisterResponse struct {
	Success bool                 `json:"success"`
	Service domain.ServiceRecord `json:"service"`
}

// DiscoverRequest lists services.
type DiscoverRequest struct{}

// DiscoverResponse carries the directory snapshot.
type DiscoverResponse struct {
	Services []domain.ServiceRecord `json:"services"`
}

// HeartbeatRequest refreshes a service.
type HeartbeatRequest struct {
	Name string `json:"name"`
}

// HeartbeatResponse acknowledges heartbeat.
type HeartbeatResponse struct {
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}
