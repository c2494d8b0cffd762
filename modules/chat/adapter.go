package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	domain "github.com/example/realtime-gateway-demo/domain/chat"
	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// ChatPort defines the interface for chat operations.
type ChatPort interface {
	SendMessage(ctx context.Context, req SendMessageRequest) (domain.Message, error)
	GetHistory(ctx context.Context, room string, limit int) ([]domain.Message, error)
}

// ChatAdapter implements ChatPort using the service container.
type ChatAdapter struct {
	container mono.ServiceContainer
}

// NewChatAdapter creates a new ChatAdapter.
func NewChatAdapter(container mono.ServiceContainer) ChatPort {
	if container == nil {
		panic("chat: ServiceContainer is nil")
	}
	return &ChatAdapter{container: container}
}

// SendMessage posts a message to a room, or to everyone when room is empty.
func (a *ChatAdapter) SendMessage(ctx context.Context, req SendMessageRequest) (domain.Message, error) {
	var resp SendMessageResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceSendMessage,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return domain.Message{}, fmt.Errorf("failed to send message: %w", broadcast.RemoteError(err))
	}
	return resp.Message, nil
}

// GetHistory retrieves message history for a room.
func (a *ChatAdapter) GetHistory(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	req := GetHistoryRequest{Room: room, Limit: limit}
	var resp MessageHistory
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetHistory,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to get history: %w", broadcast.RemoteError(err))
	}
	return resp.Messages, nil
}
