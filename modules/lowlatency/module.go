// Package lowlatency serves the game-state namespace, where updates are
// delivered at most once and dropped for clients that cannot keep up.
package lowlatency

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// Socket events.
const (
	EventGameState  = "gameState"
	EventGameUpdate = "gameUpdate"
)

// ServiceGameState is the request-reply service name for state updates.
const ServiceGameState = "game-state"

// GameUpdate is the volatile payload fanned out to every client.
type GameUpdate struct {
	State     json.RawMessage `json:"state"`
	Timestamp int64           `json:"timestamp"`
}

// StateRequest carries a state update from the HTTP facade.
type StateRequest struct {
	State json.RawMessage `json:"state"`
}

// StateResponse reports how many clients the update was queued for.
type StateResponse struct {
	Success   bool `json:"success"`
	Delivered int  `json:"delivered"`
}

// Module relays game state with volatile delivery.
type Module struct {
	hub       *broadcast.Hub
	now       func() time.Time
	published atomic.Int64
	delivered atomic.Int64
	logger    types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ broadcast.Handler          = (*Module)(nil)
)

// NewModule creates the module on the low-latency hub.
func NewModule(hub *broadcast.Hub, logger types.Logger) *Module {
	return &Module{
		hub:    hub,
		now:    time.Now,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "lowlatency"
}

// Namespace returns the served namespace.
func (m *Module) Namespace() broadcast.Namespace {
	return broadcast.NamespaceLowLatency
}

// Start initializes the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Low-latency module started")
	return nil
}

// Stop gracefully shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Low-latency module stopped",
		"published", m.published.Load(),
		"delivered", m.delivered.Load())
	return nil
}

// Health returns the health status with delivery counters.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connections": m.hub.ClientCount(),
			"published":   m.published.Load(),
			"delivered":   m.delivered.Load(),
		},
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGameState, json.Unmarshal, json.Marshal, m.handleGameState,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGameState, err)
	}
	m.logger.Info("Registered services", "services", []string{ServiceGameState})
	return nil
}

func (m *Module) handleGameState(_ context.Context, req StateRequest, _ *mono.Msg) (StateResponse, error) {
	n, err := m.Relay(req.State)
	if err != nil {
		return StateResponse{}, err
	}
	return StateResponse{Success: true, Delivered: n}, nil
}

// Relay emits gameUpdate to every client without waiting. It returns the
// number of clients whose queue accepted the update.
func (m *Module) Relay(state json.RawMessage) (int, error) {
	if len(state) == 0 {
		return 0, fmt.Errorf("%w: state is required", broadcast.ErrInvalidPayload)
	}
	n := m.hub.PublishVolatile(EventGameUpdate, GameUpdate{
		State:     state,
		Timestamp: m.now().UnixMilli(),
	})
	m.published.Add(1)
	m.delivered.Add(int64(n))
	return n, nil
}

// Connect admits every connection.
func (m *Module) Connect(_ context.Context, _ *broadcast.Client) error {
	return nil
}

// Disconnect has nothing to purge.
func (m *Module) Disconnect(_ context.Context, _ *broadcast.Client) {}

// HandleEvent dispatches low-latency namespace events. gameState is fire
// and forget, so success produces no reply.
func (m *Module) HandleEvent(_ context.Context, _ *broadcast.Client, ev broadcast.Event) (any, error) {
	switch ev.Name {
	case EventGameState:
		if _, err := m.Relay(ev.Data); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s", broadcast.ErrUnknownEvent, ev.Name)
	}
}
