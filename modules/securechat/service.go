package securechat

import (
	"crypto/rsa"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// Errors returned by the secure chat service.
var (
	ErrUsernameRequired = fmt.Errorf("%w: username is required", broadcast.ErrInvalidPayload)
	ErrMessageRequired  = fmt.Errorf("%w: message is required", broadcast.ErrInvalidPayload)
	ErrNotRegistered    = fmt.Errorf("%w: register a public key before sending", broadcast.ErrUnauthorized)
	ErrUsernameMismatch = fmt.Errorf("%w: username does not match token", broadcast.ErrUnauthorized)
	ErrRecipientUnknown = fmt.Errorf("recipient %w", broadcast.ErrNotFound)
)

type secureUser struct {
	id        string
	username  string
	publicKey *rsa.PublicKey
}

// Service holds registered keys and the public message history.
type Service struct {
	hub     *broadcast.Hub
	now     func() time.Time
	mu      sync.RWMutex
	users   map[string]secureUser // clientID -> user
	history []Message
	// postMu keeps history order equal to emission order.
	postMu sync.Mutex
}

// NewService creates a secure chat service on hub.
func NewService(hub *broadcast.Hub) *Service {
	return &Service{
		hub:   hub,
		now:   time.Now,
		users: make(map[string]secureUser),
	}
}

// Register stores the public key of a connection and rebroadcasts the
// user list. Registering again replaces the key.
func (s *Service) Register(clientID, tokenUsername string, req RegisterRequest) (RegisterResponse, error) {
	if req.Username == "" {
		return RegisterResponse{}, ErrUsernameRequired
	}
	if tokenUsername != "" && tokenUsername != req.Username {
		return RegisterResponse{}, ErrUsernameMismatch
	}
	key, err := ParsePublicKey(req.PublicKey)
	if err != nil {
		return RegisterResponse{}, err
	}

	s.mu.Lock()
	s.users[clientID] = secureUser{id: clientID, username: req.Username, publicKey: key}
	s.mu.Unlock()

	s.broadcastUserList()
	return RegisterResponse{Success: true, Username: req.Username}, nil
}

// Send verifies the signature against the sender's registered key and
// delivers the message to the recipient, or to everyone.
func (s *Service) Send(clientID string, req MessageRequest) (SendResponse, error) {
	if req.Message == "" {
		return SendResponse{}, ErrMessageRequired
	}

	s.mu.RLock()
	sender, ok := s.users[clientID]
	s.mu.RUnlock()
	if !ok {
		return SendResponse{}, ErrNotRegistered
	}
	if err := VerifySignature(sender.publicKey, req.Message, req.Signature); err != nil {
		return SendResponse{}, err
	}

	msg := Message{
		ID:        uuid.New().String(),
		Username:  sender.username,
		Message:   req.Message,
		Signature: req.Signature,
		Recipient: req.Recipient,
		Verified:  true,
		Timestamp: s.now(),
	}

	if req.Recipient == "" {
		n := s.publish(msg)
		return SendResponse{Success: true, ID: msg.ID, Recipients: n}, nil
	}

	targets := s.connectionsOf(req.Recipient)
	if len(targets) == 0 {
		return SendResponse{}, fmt.Errorf("%w: %s", ErrRecipientUnknown, req.Recipient)
	}
	delivered := 0
	for _, id := range targets {
		if s.hub.SendTo(id, EventSecureMessage, msg) {
			delivered++
		}
	}
	// The sender sees its own direct message unless it sent to itself.
	if sender.username != req.Recipient {
		s.hub.SendTo(clientID, EventSecureMessage, msg)
	}
	return SendResponse{Success: true, ID: msg.ID, Recipients: delivered}, nil
}

// Broadcast sends an unsigned server message to every connection.
func (s *Service) Broadcast(text string) (Message, int, error) {
	if text == "" {
		return Message{}, 0, ErrMessageRequired
	}
	msg := Message{
		ID:        uuid.New().String(),
		Message:   text,
		Timestamp: s.now(),
	}
	return msg, s.publish(msg), nil
}

func (s *Service) publish(msg Message) int {
	s.postMu.Lock()
	defer s.postMu.Unlock()

	s.mu.Lock()
	s.history = append(s.history, msg)
	if len(s.history) > HistoryCapacity {
		s.history = append([]Message(nil), s.history[len(s.history)-HistoryCapacity:]...)
	}
	s.mu.Unlock()

	return s.hub.BroadcastAll(EventSecureMessage, msg)
}

// History returns the retained public messages, oldest first.
func (s *Service) History() HistoryResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return HistoryResponse{Messages: append([]Message{}, s.history...)}
}

// Users returns the registered users sorted by username.
func (s *Service) Users() []UserEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]UserEntry, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, UserEntry{ID: u.id, Username: u.username})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Disconnect drops the connection's key and rebroadcasts the user list if
// it had registered.
func (s *Service) Disconnect(clientID string) {
	s.mu.Lock()
	_, ok := s.users[clientID]
	delete(s.users, clientID)
	s.mu.Unlock()

	if ok {
		s.broadcastUserList()
	}
}

func (s *Service) connectionsOf(username string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, u := range s.users {
		if u.username == username {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *Service) broadcastUserList() {
	s.hub.BroadcastAll(EventSecureUserList, s.Users())
}
