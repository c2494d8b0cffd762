package chat

import (
	"encoding/json"

	domain "github.com/example/realtime-gateway-demo/domain/chat"
)

// Service names for request-reply.
const (
	ServiceSendMessage = "send-message"
	ServiceGetHistory  = "get-history"
)

// Socket events.
const (
	EventSetUsername    = "setUsername"
	EventJoinRoom       = "joinRoom"
	EventLeaveRoom      = "leaveRoom"
	EventChatMessage    = "chatMessage"
	EventGetHistory     = "getHistory"
	EventUserList       = "userList"
	EventMessageHistory = "messageHistory"
	EventMessage        = "message"
)

// ChatMessageRequest is the chatMessage payload. A bare JSON string is
// accepted as a message with no room.
type ChatMessageRequest struct {
	Room    string `json:"room,omitempty"`
	Message string `json:"message"`
}

// UnmarshalJSON accepts either form.
func (r *ChatMessageRequest) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*r = ChatMessageRequest{Message: text}
		return nil
	}
	type plain ChatMessageRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = ChatMessageRequest(p)
	return nil
}

// SuccessResponse acknowledges a mutation.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// MessageHistory is sent to a connection that joins a room.
type MessageHistory struct {
	Room     string           `json:"room"`
	Messages []domain.Message `json:"messages"`
}

// SendMessageRequest posts a message on behalf of a named sender.
type SendMessageRequest struct {
	Room     string `json:"room,omitempty"`
	Username string `json:"username,omitempty"`
	Message  string `json:"message"`
}

// SendMessageResponse acknowledges send-message.
type SendMessageResponse struct {
	Success bool           `json:"success"`
	Message domain.Message `json:"message"`
}

// GetHistoryRequest reads a room's history.
type GetHistoryRequest struct {
	Room  string `json:"room"`
	Limit int    `json:"limit,omitempty"`
}
