package api

import (
	"encoding/json"

	chatdomain "github.com/example/realtime-gateway-demo/domain/chat"
	dirdomain "github.com/example/realtime-gateway-demo/domain/directory"
)

// ChatMessageRequest is the body of POST /api/v1/chat/message.
type ChatMessageRequest struct {
	Message  string `json:"message"`
	Room     string `json:"room,omitempty"`
	Username string `json:"username,omitempty"`
}

// ChatMessageResponse returns the posted message.
type ChatMessageResponse struct {
	Success bool               `json:"success"`
	Message chatdomain.Message `json:"message"`
}

// SecureMessageRequest is the body of POST /api/v1/secure/message.
type SecureMessageRequest struct {
	Message string `json:"message"`
}

// PublishRequest is the body of POST /api/v1/stomp/publish.
type PublishRequest struct {
	Topic   string          `json:"topic"`
	Message json.RawMessage `json:"message"`
}

// GameStateRequest is the body of POST /api/v1/game/state.
type GameStateRequest struct {
	State json.RawMessage `json:"state"`
}

// RegisterServiceRequest is the body of POST /api/v1/service/register.
type RegisterServiceRequest struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ServiceResponse wraps a single service record.
type ServiceResponse struct {
	Success bool                    `json:"success"`
	Service dirdomain.ServiceRecord `json:"service"`
}

// ServiceListResponse is the API response for discovery.
type ServiceListResponse struct {
	Services []dirdomain.ServiceRecord `json:"services"`
	Total    int                       `json:"total"`
}

// HistoryResponse is the API response for room history.
type HistoryResponse struct {
	Room     string               `json:"room"`
	Messages []chatdomain.Message `json:"messages"`
	Total    int                  `json:"total"`
}

// ConnectionsResponse reports connected clients per namespace.
type ConnectionsResponse struct {
	Namespaces map[string]int `json:"namespaces"`
	Total      int            `json:"total"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
