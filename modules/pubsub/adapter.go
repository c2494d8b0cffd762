package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// PubSubPort defines the interface for topic publishing.
type PubSubPort interface {
	Publish(ctx context.Context, topic string, message json.RawMessage) (PublishResponse, error)
}

// PubSubAdapter implements PubSubPort using the service container.
type PubSubAdapter struct {
	container mono.ServiceContainer
}

// NewPubSubAdapter creates a new PubSubAdapter.
func NewPubSubAdapter(container mono.ServiceContainer) PubSubPort {
	if container == nil {
		panic("pubsub: ServiceContainer is nil")
	}
	return &PubSubAdapter{container: container}
}

// Publish delivers message to the topic's subscribers.
func (a *PubSubAdapter) Publish(ctx context.Context, topic string, message json.RawMessage) (PublishResponse, error) {
	req := PublishRequest{Topic: topic, Message: message}
	var resp PublishResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServicePublish,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return PublishResponse{}, fmt.Errorf("failed to publish: %w", broadcast.RemoteError(err))
	}
	return resp, nil
}
