package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/realtime-gateway-demo/events"
	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// Inbound events.
const (
	EventStreamStart = "streamStart"
	EventStreamStop  = "streamStop"
)

// Module serves the binary namespace: chunked transfers and stream sessions.
type Module struct {
	hub      *broadcast.Hub
	manager  *Manager
	sessions *Sessions
	eventBus mono.EventBus
	logger   types.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// Compile-time interface checks
var (
	_ mono.Module              = (*Module)(nil)
	_ mono.EventBusAwareModule = (*Module)(nil)
	_ mono.EventEmitterModule  = (*Module)(nil)
	_ broadcast.Handler        = (*Module)(nil)
)

// NewModule creates the transfer module on the binary hub.
func NewModule(hub *broadcast.Hub, logger types.Logger, opts ...Option) (*Module, error) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Module{
		hub:      hub,
		sessions: NewSessions(hub),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	opts = append(opts, WithCompletionHook(m.publishCompleted))
	manager, err := NewManager(hub, opts...)
	if err != nil {
		cancel()
		return nil, err
	}
	m.manager = manager
	return m, nil
}

// Name returns the module name.
func (m *Module) Name() string {
	return "transfer"
}

// Namespace returns the served namespace.
func (m *Module) Namespace() broadcast.Namespace {
	return broadcast.NamespaceBinary
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.TransferCompletedV1.ToBase(),
	}
}

// Start initializes the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Transfer module started", "chunkSize", ChunkSize, "maxTransferSize", MaxTransferSize)
	return nil
}

// Stop cancels in-flight transfers before their next chunk.
func (m *Module) Stop(_ context.Context) error {
	m.cancel()
	m.logger.Info("Transfer module stopped")
	return nil
}

// Manager returns the chunked transfer manager.
func (m *Module) Manager() *Manager {
	return m.manager
}

// Connect admits every connection.
func (m *Module) Connect(_ context.Context, _ *broadcast.Client) error {
	return nil
}

// Disconnect needs no cleanup; the hub drops stream memberships.
func (m *Module) Disconnect(_ context.Context, client *broadcast.Client) {
	m.logger.Debug("Binary client disconnected", "clientID", client.ID)
}

// HandleEvent dispatches binary namespace events.
func (m *Module) HandleEvent(_ context.Context, client *broadcast.Client, ev broadcast.Event) (any, error) {
	switch ev.Name {
	case broadcast.EventBinaryData:
		payload := ev.Binary
		if payload == nil {
			var req BinaryDataRequest
			if err := ev.Decode(&req); err != nil {
				return nil, err
			}
			payload = req.Data
		}
		return m.startTransfer(client, ev.Ack, payload)

	case EventStreamStart:
		var req StreamStartRequest
		if err := ev.Decode(&req); err != nil {
			return nil, err
		}
		return m.sessions.Start(client.ID, req)

	case EventStreamStop:
		var req StreamStartRequest
		if err := ev.Decode(&req); err != nil {
			return nil, err
		}
		return m.sessions.Stop(client.ID, req)

	case EventStreamData:
		var req StreamDataRequest
		if err := ev.Decode(&req); err != nil {
			return nil, err
		}
		return m.sessions.Relay(req)

	default:
		return nil, fmt.Errorf("%w: %s", broadcast.ErrUnknownEvent, ev.Name)
	}
}

// startTransfer runs the transfer on a worker so the socket keeps reading;
// the sender's ack is sent once the last chunk has gone out.
func (m *Module) startTransfer(client *broadcast.Client, ack *int64, payload []byte) (any, error) {
	err := m.manager.Go(m.ctx, payload, func(res Result, err error) {
		if err != nil {
			m.hub.Reply(client, ack, broadcast.Failure(err))
			return
		}
		m.hub.Reply(client, ack, res)
	})
	if err != nil {
		m.logger.Warn("Rejected binary payload", "clientID", client.ID, "size", len(payload), "error", err)
		return nil, err
	}
	return nil, nil
}

func (m *Module) publishCompleted(res Result) {
	if m.eventBus == nil {
		return
	}
	event := events.TransferCompletedEvent{
		TransferID:  res.TransferID,
		TotalSize:   res.TotalSize,
		TotalChunks: res.TotalChunks,
		Duration:    res.Duration.String(),
		Timestamp:   time.Now(),
	}
	if err := events.TransferCompletedV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.Warn("Failed to publish TransferCompleted event", "error", err)
	}
}
