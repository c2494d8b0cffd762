package securechat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

const claimsKey = "claims"

// Module serves the secure-chat namespace.
type Module struct {
	tokens  *TokenManager
	service *Service
	logger  types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ broadcast.Handler          = (*Module)(nil)
)

// NewModule creates the secure chat module. Connections must present a
// token signed with jwtSecret.
func NewModule(hub *broadcast.Hub, jwtSecret string, logger types.Logger) *Module {
	return &Module{
		tokens:  NewTokenManager(jwtSecret),
		service: NewService(hub),
		logger:  logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "securechat"
}

// Namespace returns the served namespace.
func (m *Module) Namespace() broadcast.Namespace {
	return broadcast.NamespaceSecureChat
}

// Start initializes the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Secure chat module started")
	return nil
}

// Stop gracefully shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Secure chat module stopped")
	return nil
}

// Service returns the secure chat service.
func (m *Module) Service() *Service {
	return m.service
}

// Tokens returns the token manager.
func (m *Module) Tokens() *TokenManager {
	return m.tokens
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceBroadcast, json.Unmarshal, json.Marshal, m.handleBroadcast,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceBroadcast, err)
	}

	m.logger.Info("Registered services", "services", []string{ServiceBroadcast})
	return nil
}

func (m *Module) handleBroadcast(_ context.Context, req BroadcastRequest, _ *mono.Msg) (BroadcastResponse, error) {
	msg, n, err := m.service.Broadcast(req.Message)
	if err != nil {
		return BroadcastResponse{}, err
	}
	return BroadcastResponse{Success: true, Message: msg, Recipients: n}, nil
}

// Connect admits only connections presenting a valid token.
func (m *Module) Connect(_ context.Context, client *broadcast.Client) error {
	claims, err := m.tokens.Validate(client.Handshake["token"])
	if err != nil {
		m.logger.Warn("Rejected secure connection", "clientID", client.ID, "error", err)
		return err
	}
	client.Set(claimsKey, claims)
	m.logger.Debug("Secure client connected", "clientID", client.ID, "username", claims.Username)
	return nil
}

// Disconnect drops the connection's registered key.
func (m *Module) Disconnect(_ context.Context, client *broadcast.Client) {
	m.service.Disconnect(client.ID)
}

// HandleEvent dispatches secure namespace events.
func (m *Module) HandleEvent(_ context.Context, client *broadcast.Client, ev broadcast.Event) (any, error) {
	switch ev.Name {
	case EventRegisterSecureUser:
		var req RegisterRequest
		if err := ev.Decode(&req); err != nil {
			return nil, err
		}
		return m.service.Register(client.ID, tokenUsername(client), req)

	case EventSecureMessage:
		var req MessageRequest
		if err := ev.Decode(&req); err != nil {
			return nil, err
		}
		res, err := m.service.Send(client.ID, req)
		if err != nil {
			m.logger.Warn("Rejected secure message", "clientID", client.ID, "error", err)
			return nil, err
		}
		return res, nil

	case EventGetSecureHistory:
		return m.service.History(), nil

	default:
		return nil, fmt.Errorf("%w: %s", broadcast.ErrUnknownEvent, ev.Name)
	}
}

func tokenUsername(client *broadcast.Client) string {
	v, ok := client.Get(claimsKey)
	if !ok {
		return ""
	}
	claims, ok := v.(*Claims)
	if !ok {
		return ""
	}
	return claims.Username
}
