package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	kvjetstream "github.com/go-monolith/mono/plugin/kv-jetstream"

	domain "github.com/example/realtime-gateway-demo/domain/directory"
	"github.com/example/realtime-gateway-demo/events"
	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// BucketName is the KV bucket holding service records.
const BucketName = "services"

// Backends
const (
	BackendMemory = "memory"
	BackendKV     = "kv"
)

// Module serves the service directory over request-reply and the
// distributed namespace.
type Module struct {
	backend  string
	ttl      time.Duration
	kv       *kvjetstream.PluginModule
	store    Store
	service  *Service
	eventBus mono.EventBus
	logger   types.Logger
	cancel   context.CancelFunc
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.UsePluginModule       = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ broadcast.Handler          = (*Module)(nil)
	_ Notifier                   = (*Module)(nil)
)

// NewModule creates the directory module. backend selects the KV bucket or
// an in-process map; a zero ttl disables eviction.
func NewModule(backend string, ttl time.Duration, logger types.Logger) *Module {
	return &Module{
		backend: backend,
		ttl:     ttl,
		logger:  logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "directory"
}

// Namespace returns the served namespace.
func (m *Module) Namespace() broadcast.Namespace {
	return broadcast.NamespaceDistributed
}

// SetPlugin receives the kv plugin from the framework.
func (m *Module) SetPlugin(alias string, plugin mono.PluginModule) {
	if alias != "kv" {
		return
	}
	kv, ok := plugin.(*kvjetstream.PluginModule)
	if !ok {
		m.logger.Error("Invalid plugin type for kv",
			"alias", alias,
			"expected", "*kvjetstream.PluginModule")
		return
	}
	m.kv = kv
	m.logger.Info("Received kv plugin", "alias", alias)
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.ServiceRegisteredV1.ToBase(),
		events.ServiceEvictedV1.ToBase(),
	}
}

// Start opens the store and starts the TTL sweeper.
func (m *Module) Start(_ context.Context) error {
	store, err := m.openStore()
	if err != nil {
		return err
	}
	m.store = store
	m.service = NewService(store, m, m.ttl, m.logger)

	if m.ttl > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		go m.service.RunSweeper(ctx, sweepInterval(m.ttl))
	}

	m.logger.Info("Directory module started", "backend", m.backend, "ttl", m.ttl)
	return nil
}

func (m *Module) openStore() (Store, error) {
	switch m.backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendKV:
		if m.kv == nil {
			return nil, fmt.Errorf("required plugin 'kv' not registered")
		}
		bucket := m.kv.Bucket(BucketName)
		if bucket == nil {
			return nil, fmt.Errorf("bucket '%s' not found in kv plugin", BucketName)
		}
		return NewKVStore(bucket), nil
	default:
		return nil, fmt.Errorf("unknown directory backend %q", m.backend)
	}
}

// sweepInterval checks a few times per TTL so eviction lags by a fraction
// of it.
func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	return interval
}

// Stop halts the sweeper.
func (m *Module) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.logger.Info("Directory module stopped")
	return nil
}

// Health reports the number of registered services.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{Healthy: false, Message: "not started"}
	}
	recs, err := m.service.Discover(ctx)
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("failed to list services: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"backend":  m.backend,
			"services": len(recs),
		},
	}
}

// Service returns the directory service.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRegister, json.Unmarshal, json.Marshal, m.handleRegister,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRegister, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceDiscover, json.Unmarshal, json.Marshal, m.handleDiscover,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceDiscover, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceHeartbeat, json.Unmarshal, json.Marshal, m.handleHeartbeat,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceHeartbeat, err)
	}

	m.logger.Info("Registered services", "services", []string{ServiceRegister, ServiceDiscover, ServiceHeartbeat})
	return nil
}

func (m *Module) handleRegister(ctx context.Context, req RegisterRequest, _ *mono.Msg) (RegisterResponse, error) {
	rec, err := m.service.Register(ctx, req)
	if err != nil {
		return RegisterResponse{}, err
	}
	return RegisterResponse{Success: true, Service: rec}, nil
}

func (m *Module) handleDiscover(ctx context.Context, _ DiscoverRequest, _ *mono.Msg) (DiscoverResponse, error) {
	recs, err := m.service.Discover(ctx)
	if err != nil {
		return DiscoverResponse{}, err
	}
	return DiscoverResponse{Services: recs}, nil
}

func (m *Module) handleHeartbeat(ctx context.Context, req HeartbeatRequest, _ *mono.Msg) (HeartbeatResponse, error) {
	return m.service.Heartbeat(ctx, req.Name)
}

// ServiceRegistered publishes ServiceRegistered on the event bus.
func (m *Module) ServiceRegistered(_ context.Context, rec domain.ServiceRecord) error {
	if m.eventBus == nil {
		return nil
	}
	return events.ServiceRegisteredV1.Publish(m.eventBus, events.ServiceRegisteredEvent{
		Name:      rec.Name,
		Type:      rec.Type,
		Timestamp: rec.RegisteredAt,
	}, nil)
}

// ServiceEvicted publishes ServiceEvicted on the event bus.
func (m *Module) ServiceEvicted(_ context.Context, rec domain.ServiceRecord) error {
	if m.eventBus == nil {
		return nil
	}
	return events.ServiceEvictedV1.Publish(m.eventBus, events.ServiceEvictedEvent{
		Name:          rec.Name,
		LastHeartbeat: rec.LastHeartbeat,
		Timestamp:     time.Now(),
	}, nil)
}

// Socket events.
const (
	EventRegister  = "register"
	EventDiscover  = "discover"
	EventHeartbeat = "heartbeat"
)

// Connect admits every connection.
func (m *Module) Connect(_ context.Context, _ *broadcast.Client) error {
	return nil
}

// Disconnect leaves registrations in place; records outlive connections.
func (m *Module) Disconnect(_ context.Context, client *broadcast.Client) {
	m.logger.Debug("Distributed client disconnected", "clientID", client.ID)
}

// HandleEvent dispatches distributed namespace events.
func (m *Module) HandleEvent(ctx context.Context, _ *broadcast.Client, ev broadcast.Event) (any, error) {
	switch ev.Name {
	case EventRegister:
		var req RegisterRequest
		if err := ev.Decode(&req); err != nil {
			return nil, err
		}
		rec, err := m.service.Register(ctx, req)
		if err != nil {
			return nil, err
		}
		return RegisterResponse{Success: true, Service: rec}, nil

	case EventDiscover:
		recs, err := m.service.Discover(ctx)
		if err != nil {
			return nil, err
		}
		return DiscoverResponse{Services: recs}, nil

	case EventHeartbeat:
		name, err := ev.DecodeString("name")
		if err != nil {
			return nil, err
		}
		return m.service.Heartbeat(ctx, name)

	default:
		return nil, fmt.Errorf("%w: %s", broadcast.ErrUnknownEvent, ev.Name)
	}
}
