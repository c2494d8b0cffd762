package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"

	domain "github.com/example/realtime-gateway-demo/domain/chat"
	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// apiSender identifies messages posted through the HTTP façade.
const apiSender = "api"

// Module implements the standard chat namespace.
type Module struct {
	store   *RoomStore
	service *Service
	logger  types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ broadcast.Handler          = (*Module)(nil)
)

// NewModule creates a new chat module on the chat hub.
func NewModule(hub *broadcast.Hub, logger types.Logger) *Module {
	store := NewRoomStore(HistoryCapacity)
	return &Module{
		store:   store,
		service: NewService(store, hub),
		logger:  logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chat"
}

// Namespace returns the served namespace.
func (m *Module) Namespace() broadcast.Namespace {
	return broadcast.NamespaceChat
}

// Start initializes the chat module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Chat module started", "historyCapacity", HistoryCapacity)
	return nil
}

// Stop gracefully shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Chat module stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	users, rooms := m.store.Counts()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connections":        users,
			"rooms_with_history": rooms,
		},
	}
}

// Service returns the chat service.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceSendMessage, json.Unmarshal, json.Marshal, m.handleSendMessage,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceSendMessage, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetHistory, json.Unmarshal, json.Marshal, m.handleGetHistory,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetHistory, err)
	}

	m.logger.Info("Registered services", "services", []string{ServiceSendMessage, ServiceGetHistory})
	return nil
}

func (m *Module) handleSendMessage(_ context.Context, req SendMessageRequest, _ *mono.Msg) (SendMessageResponse, error) {
	sender := domain.User{ID: apiSender, Username: req.Username}
	msg, err := m.service.Post(sender, req.Room, req.Message)
	if err != nil {
		return SendMessageResponse{}, err
	}
	return SendMessageResponse{Success: true, Message: msg}, nil
}

func (m *Module) handleGetHistory(ctx context.Context, req GetHistoryRequest, _ *mono.Msg) (MessageHistory, error) {
	return m.service.History(ctx, req.Room, req.Limit)
}

// Connect registers the connection with its connection id as identity.
func (m *Module) Connect(_ context.Context, client *broadcast.Client) error {
	m.service.Connect(client.ID)
	m.logger.Debug("Chat client connected", "clientID", client.ID)
	return nil
}

// Disconnect purges the connection and rebroadcasts the user list.
func (m *Module) Disconnect(_ context.Context, client *broadcast.Client) {
	m.service.Disconnect(client.ID)
	m.logger.Debug("Chat client disconnected", "clientID", client.ID)
}

// HandleEvent dispatches chat namespace events.
func (m *Module) HandleEvent(ctx context.Context, client *broadcast.Client, ev broadcast.Event) (any, error) {
	switch ev.Name {
	case EventSetUsername:
		name, err := ev.DecodeString("username")
		if err != nil {
			return nil, err
		}
		if err := m.service.SetUsername(client.ID, name); err != nil {
			return nil, err
		}
		return SuccessResponse{Success: true}, nil

	case EventJoinRoom:
		room, err := ev.DecodeString("room")
		if err != nil {
			return nil, err
		}
		if err := m.service.JoinRoom(client.ID, room); err != nil {
			return nil, err
		}
		return SuccessResponse{Success: true}, nil

	case EventLeaveRoom:
		room, err := ev.DecodeString("room")
		if err != nil {
			return nil, err
		}
		if err := m.service.LeaveRoom(client.ID, room); err != nil {
			return nil, err
		}
		return SuccessResponse{Success: true}, nil

	case EventChatMessage:
		var req ChatMessageRequest
		if err := ev.Decode(&req); err != nil {
			return nil, err
		}
		if _, err := m.service.SendMessage(client.ID, req); err != nil {
			return nil, err
		}
		// The message event itself is the response.
		return nil, nil

	case EventGetHistory:
		room, err := ev.DecodeString("room")
		if err != nil {
			return nil, err
		}
		return m.service.History(ctx, room, 0)

	default:
		return nil, fmt.Errorf("%w: %s", broadcast.ErrUnknownEvent, ev.Name)
	}
}
