package directory

import "time"

// ServiceRecord is a registered service.
type ServiceRecord struct {
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	RegisteredAt  time.Time      `json:"registeredAt"`
	LastHeartbeat time.Time      `json:"lastHeartbeat"`
}

// Stale reports whether the record missed its heartbeat window at now.
// A zero ttl never goes stale.
func (r ServiceRecord) Stale(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(r.LastHeartbeat) > ttl
}
