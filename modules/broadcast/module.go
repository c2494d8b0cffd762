package broadcast

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/example/realtime-gateway-demo/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// Outbound events fanned out from the event bus.
const (
	EventServiceRegistered = "serviceRegistered"
	EventServiceEvicted    = "serviceEvicted"
)

// BroadcastModule owns the namespace hubs and fans bus events out to sockets.
type BroadcastModule struct {
	registry           *Registry
	cancelHubs         context.CancelFunc
	completedTransfers atomic.Int64
	transferredBytes   atomic.Int64
}

// Compile-time interface checks.
var _ mono.Module = (*BroadcastModule)(nil)
var _ mono.EventConsumerModule = (*BroadcastModule)(nil)
var _ mono.HealthCheckableModule = (*BroadcastModule)(nil)

// NewModule creates a new BroadcastModule.
func NewModule(writeTimeout time.Duration) *BroadcastModule {
	return &BroadcastModule{
		registry: NewRegistry(writeTimeout),
	}
}

// Name returns the module name.
func (m *BroadcastModule) Name() string {
	return "broadcast"
}

// Start runs the hubs.
func (m *BroadcastModule) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelHubs = cancel
	m.registry.Run(ctx)
	log.Printf("[broadcast] Module started - %d namespace hubs running", len(Namespaces()))
	return nil
}

// Stop closes every connection and waits for the hubs to finish.
func (m *BroadcastModule) Stop(_ context.Context) error {
	clientCount := m.registry.Total()
	if m.cancelHubs != nil {
		m.cancelHubs()
		m.registry.Wait()
	}
	log.Printf("[broadcast] Module stopped - %d clients were connected", clientCount)
	return nil
}

// Health returns the health status.
func (m *BroadcastModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients":   m.registry.Counts(),
			"completed_transfers": m.completedTransfers.Load(),
			"transferred_bytes":   m.transferredBytes.Load(),
		},
	}
}

// RegisterEventConsumers registers event handlers.
func (m *BroadcastModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.ServiceRegisteredV1, m.handleServiceRegistered, m,
	); err != nil {
		return fmt.Errorf("failed to register ServiceRegistered consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.ServiceEvictedV1, m.handleServiceEvicted, m,
	); err != nil {
		return fmt.Errorf("failed to register ServiceEvicted consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.TransferCompletedV1, m.handleTransferCompleted, m,
	); err != nil {
		return fmt.Errorf("failed to register TransferCompleted consumer: %w", err)
	}

	log.Println("[broadcast] Registered event consumers: ServiceRegistered, ServiceEvicted, TransferCompleted")
	return nil
}

// ServiceAnnouncement is the payload of serviceRegistered.
type ServiceAnnouncement struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// ServiceEviction is the payload of serviceEvicted.
type ServiceEviction struct {
	Name          string    `json:"name"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	Timestamp     time.Time `json:"timestamp"`
}

func (m *BroadcastModule) handleServiceRegistered(_ context.Context, event events.ServiceRegisteredEvent, _ *mono.Msg) error {
	n := m.registry.Hub(NamespaceDistributed).BroadcastAll(EventServiceRegistered, ServiceAnnouncement{
		Name:      event.Name,
		Type:      event.Type,
		Timestamp: event.Timestamp,
	})
	log.Printf("[broadcast] Announced service %s (%s) to %d clients", event.Name, event.Type, n)
	return nil
}

func (m *BroadcastModule) handleServiceEvicted(_ context.Context, event events.ServiceEvictedEvent, _ *mono.Msg) error {
	m.registry.Hub(NamespaceDistributed).BroadcastAll(EventServiceEvicted, ServiceEviction{
		Name:          event.Name,
		LastHeartbeat: event.LastHeartbeat,
		Timestamp:     event.Timestamp,
	})
	log.Printf("[broadcast] Announced eviction of service %s", event.Name)
	return nil
}

func (m *BroadcastModule) handleTransferCompleted(_ context.Context, event events.TransferCompletedEvent, _ *mono.Msg) error {
	m.completedTransfers.Add(1)
	m.transferredBytes.Add(int64(event.TotalSize))
	return nil
}

// Registry returns the namespace hubs for the socket modules to use.
func (m *BroadcastModule) Registry() *Registry {
	return m.registry
}
