// Package pubsub serves the stomp-style topic namespace.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// Socket events.
const (
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventPublish     = "publish"
	EventMessage     = "message"
)

// ServicePublish is the request-reply service name for publish.
const ServicePublish = "publish"

// ErrTopicRequired is returned when a topic is missing.
var ErrTopicRequired = fmt.Errorf("%w: topic is required", broadcast.ErrInvalidPayload)

// PublishRequest is the publish payload.
type PublishRequest struct {
	Topic   string          `json:"topic"`
	Message json.RawMessage `json:"message"`
}

// TopicMessage is delivered to topic members.
type TopicMessage struct {
	Topic     string          `json:"topic"`
	Message   json.RawMessage `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

// PublishResponse acknowledges publish.
type PublishResponse struct {
	Success    bool `json:"success"`
	Recipients int  `json:"recipients"`
}

// SubscriptionResponse acknowledges subscribe and unsubscribe.
type SubscriptionResponse struct {
	Success bool   `json:"success"`
	Topic   string `json:"topic"`
}

// Module serves subscribe, unsubscribe and publish on the stomp hub.
type Module struct {
	hub    *broadcast.Hub
	now    func() time.Time
	logger types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ broadcast.Handler          = (*Module)(nil)
)

// NewModule creates the pub/sub module on the stomp hub.
func NewModule(hub *broadcast.Hub, logger types.Logger) *Module {
	return &Module{
		hub:    hub,
		now:    time.Now,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "pubsub"
}

// Namespace returns the served namespace.
func (m *Module) Namespace() broadcast.Namespace {
	return broadcast.NamespaceStomp
}

// Start initializes the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Pub/sub module started")
	return nil
}

// Stop gracefully shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Pub/sub module stopped")
	return nil
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServicePublish, json.Unmarshal, json.Marshal, m.handlePublish,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServicePublish, err)
	}
	m.logger.Info("Registered services", "services", []string{ServicePublish})
	return nil
}

func (m *Module) handlePublish(_ context.Context, req PublishRequest, _ *mono.Msg) (PublishResponse, error) {
	return m.Publish(req)
}

// Publish delivers message to the current members of the topic.
func (m *Module) Publish(req PublishRequest) (PublishResponse, error) {
	if req.Topic == "" {
		return PublishResponse{}, ErrTopicRequired
	}
	message := req.Message
	if len(message) == 0 {
		message = json.RawMessage("null")
	}
	n := m.hub.Publish(req.Topic, EventMessage, TopicMessage{
		Topic:     req.Topic,
		Message:   message,
		Timestamp: m.now(),
	})
	m.logger.Debug("Published to topic", "topic", req.Topic, "recipients", n)
	return PublishResponse{Success: true, Recipients: n}, nil
}

// Connect admits every connection.
func (m *Module) Connect(_ context.Context, _ *broadcast.Client) error {
	return nil
}

// Disconnect needs no cleanup; the hub drops topic memberships.
func (m *Module) Disconnect(_ context.Context, _ *broadcast.Client) {}

// HandleEvent dispatches stomp namespace events.
func (m *Module) HandleEvent(_ context.Context, client *broadcast.Client, ev broadcast.Event) (any, error) {
	switch ev.Name {
	case EventSubscribe:
		topic, err := ev.DecodeString("topic")
		if err != nil {
			return nil, err
		}
		if !m.hub.Subscribe(client.ID, topic) {
			return nil, fmt.Errorf("client %s %w", client.ID, broadcast.ErrNotFound)
		}
		return SubscriptionResponse{Success: true, Topic: topic}, nil

	case EventUnsubscribe:
		topic, err := ev.DecodeString("topic")
		if err != nil {
			return nil, err
		}
		m.hub.Unsubscribe(client.ID, topic)
		return SubscriptionResponse{Success: true, Topic: topic}, nil

	case EventPublish:
		var req PublishRequest
		if err := ev.Decode(&req); err != nil {
			return nil, err
		}
		return m.Publish(req)

	default:
		return nil, fmt.Errorf("%w: %s", broadcast.ErrUnknownEvent, ev.Name)
	}
}
