package securechat

import "time"

// HistoryCapacity is the number of public secure messages retained.
const HistoryCapacity = 100

// Socket events.
const (
	EventRegisterSecureUser = "registerSecureUser"
	EventSecureMessage      = "secureMessage"
	EventGetSecureHistory   = "getSecureHistory"
	EventSecureUserList     = "secureUserList"
)

// Service names for request-reply.
const (
	ServiceBroadcast = "secure-broadcast"
)

// RegisterRequest is the registerSecureUser payload.
type RegisterRequest struct {
	Username  string `json:"username"`
	PublicKey string `json:"publicKey"`
}

// MessageRequest is the secureMessage payload. An empty recipient sends to
// every connection.
type MessageRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Recipient string `json:"recipient,omitempty"`
}

// UserEntry is one element of secureUserList.
type UserEntry struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Message is a delivered secure message.
type Message struct {
	ID        string    `json:"id"`
	Username  string    `json:"username,omitempty"`
	Message   string    `json:"message"`
	Signature string    `json:"signature,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Verified  bool      `json:"verified"`
	Timestamp time.Time `json:"timestamp"`
}

// SendResponse acknowledges secureMessage.
type SendResponse struct {
	Success    bool   `json:"success"`
	ID         string `json:"id"`
	Recipients int    `json:"recipients"`
}

// RegisterResponse acknowledges registerSecureUser.
type RegisterResponse struct {
	Success  bool   `json:"success"`
	Username string `json:"username"`
}

// HistoryResponse carries the secure history.
type HistoryResponse struct {
	Messages []Message `json:"messages"`
}

// BroadcastRequest posts an unsigned server message to every connection.
type BroadcastRequest struct {
	Message string `json:"message"`
}

// BroadcastResponse acknowledges secure-broadcast.
type BroadcastResponse struct {
	Success    bool    `json:"success"`
	Message    Message `json:"message"`
	Recipients int     `json:"recipients"`
}
