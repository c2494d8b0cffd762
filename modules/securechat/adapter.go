package securechat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// SecureChatPort defines the interface for secure chat operations.
type SecureChatPort interface {
	Broadcast(ctx context.Context, message string) (BroadcastResponse, error)
}

// SecureChatAdapter implements SecureChatPort using the service container.
type SecureChatAdapter struct {
	container mono.ServiceContainer
}

// NewSecureChatAdapter creates a new SecureChatAdapter.
func NewSecureChatAdapter(container mono.ServiceContainer) SecureChatPort {
	if container == nil {
		panic("securechat: ServiceContainer is nil")
	}
	return &SecureChatAdapter{container: container}
}

// Broadcast sends a server message to every secure connection.
func (a *SecureChatAdapter) Broadcast(ctx context.Context, message string) (BroadcastResponse, error) {
	req := BroadcastRequest{Message: message}
	var resp BroadcastResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceBroadcast,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return BroadcastResponse{}, fmt.Errorf("failed to send secure message: %w", broadcast.RemoteError(err))
	}
	return resp, nil
}
