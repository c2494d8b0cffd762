package broadcast

import (
	"context"
	"time"
)

// Registry owns one hub per namespace.
type Registry struct {
	hubs map[Namespace]*Hub
}

// NewRegistry creates hubs for every namespace.
func NewRegistry(writeTimeout time.Duration) *Registry {
	r := &Registry{hubs: make(map[Namespace]*Hub)}
	for _, ns := range Namespaces() {
		r.hubs[ns] = NewHub(ns, writeTimeout)
	}
	return r
}

// Hub returns the hub for ns, or nil for unknown namespaces.
func (r *Registry) Hub(ns Namespace) *Hub {
	return r.hubs[ns]
}

// Run starts every hub. Each hub stops when ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	for _, hub := range r.hubs {
		go hub.Run(ctx)
	}
}

// Wait blocks until every hub has stopped.
func (r *Registry) Wait() {
	for _, hub := range r.hubs {
		hub.Wait()
	}
}

// Counts returns the connected client count per namespace.
func (r *Registry) Counts() map[string]int {
	counts := make(map[string]int, len(r.hubs))
	for ns, hub := range r.hubs {
		counts[string(ns)] = hub.ClientCount()
	}
	return counts
}

// Total returns the connected client count across namespaces.
func (r *Registry) Total() int {
	total := 0
	for _, hub := range r.hubs {
		total += hub.ClientCount()
	}
	return total
}
