package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "github.com/example/realtime-gateway-demo/domain/chat"
	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// Service provides standard chat operations on top of the chat hub.
type Service struct {
	store *RoomStore
	hub   *broadcast.Hub
	now   func() time.Time
	// postMu keeps history order equal to emission order and makes a
	// join's subscribe and history snapshot atomic with respect to posts.
	postMu sync.Mutex
}

// NewService creates a new chat service.
func NewService(store *RoomStore, hub *broadcast.Hub) *Service {
	return &Service{
		store: store,
		hub:   hub,
		now:   time.Now,
	}
}

// Connect registers a new connection.
func (s *Service) Connect(clientID string) {
	s.store.Connect(clientID)
}

// SetUsername assigns a username and rebroadcasts the user list.
func (s *Service) SetUsername(clientID, username string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	s.store.SetUsername(clientID, username)
	s.broadcastUserList()
	return nil
}

// JoinRoom subscribes the connection to room and sends it the room's history.
func (s *Service) JoinRoom(clientID, room string) error {
	if err := ValidateRoomName(room); err != nil {
		return err
	}

	// A post lands either in the snapshot or on the live subscription.
	s.postMu.Lock()
	defer s.postMu.Unlock()
	if !s.hub.Subscribe(clientID, room) {
		return fmt.Errorf("%w: %s", ErrUserNotFound, clientID)
	}
	s.store.JoinRoom(clientID, room)
	s.hub.SendTo(clientID, EventMessageHistory, MessageHistory{
		Room:     room,
		Messages: s.store.GetHistory(room, 0),
	})
	return nil
}

// LeaveRoom unsubscribes the connection from room.
func (s *Service) LeaveRoom(clientID, room string) error {
	if err := ValidateRoomName(room); err != nil {
		return err
	}
	s.hub.Unsubscribe(clientID, room)
	s.store.LeaveRoom(clientID, room)
	return nil
}

// SendMessage posts a message from a connection, resolving its display name.
func (s *Service) SendMessage(clientID string, req ChatMessageRequest) (domain.Message, error) {
	username := clientID
	if user, ok := s.store.GetUser(clientID); ok {
		username = user.DisplayName()
	}
	return s.Post(domain.User{ID: clientID, Username: username}, req.Room, req.Message)
}

// Post records and emits a message. Messages with a room go to that room's
// members and its history; messages without one go to every connection.
func (s *Service) Post(sender domain.User, room, text string) (domain.Message, error) {
	if err := ValidateMessage(text); err != nil {
		return domain.Message{}, err
	}
	if room != "" {
		if err := ValidateRoomName(room); err != nil {
			return domain.Message{}, err
		}
	}

	msg := domain.Message{
		ID:        uuid.New().String(),
		Room:      room,
		UserID:    sender.ID,
		Username:  sender.DisplayName(),
		Message:   text,
		Timestamp: s.now(),
	}

	s.postMu.Lock()
	defer s.postMu.Unlock()
	if room == "" {
		s.hub.BroadcastAll(EventMessage, msg)
		return msg, nil
	}
	s.store.AddMessage(msg)
	s.hub.Publish(room, EventMessage, msg)
	return msg, nil
}

// History returns up to limit recent messages for room.
func (s *Service) History(_ context.Context, room string, limit int) (MessageHistory, error) {
	if err := ValidateRoomName(room); err != nil {
		return MessageHistory{}, err
	}
	return MessageHistory{Room: room, Messages: s.store.GetHistory(room, limit)}, nil
}

// Disconnect purges the connection and rebroadcasts the user list.
func (s *Service) Disconnect(clientID string) {
	if _, ok := s.store.Remove(clientID); ok {
		s.broadcastUserList()
	}
}

func (s *Service) broadcastUserList() {
	s.hub.BroadcastAll(EventUserList, s.store.Usernames())
}
