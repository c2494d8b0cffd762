package chat

import (
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"

	domain "github.com/example/realtime-gateway-demo/domain/chat"
	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// Validation constants
const (
	MaxUsernameLength = 50
	MaxRoomNameLength = 100
	MaxMessageLength  = 5000
)

// HistoryCapacity is the number of messages kept per room.
const HistoryCapacity = 100

// Validation errors
var (
	ErrUsernameEmpty   = fmt.Errorf("%w: username cannot be empty", broadcast.ErrInvalidPayload)
	ErrUsernameTooLong = fmt.Errorf("%w: username exceeds maximum length", broadcast.ErrInvalidPayload)
	ErrUsernameInvalid = fmt.Errorf("%w: username contains invalid characters", broadcast.ErrInvalidPayload)
	ErrRoomNameEmpty   = fmt.Errorf("%w: room name cannot be empty", broadcast.ErrInvalidPayload)
	ErrRoomNameTooLong = fmt.Errorf("%w: room name exceeds maximum length", broadcast.ErrInvalidPayload)
	ErrRoomNameInvalid = fmt.Errorf("%w: room name contains invalid characters", broadcast.ErrInvalidPayload)
	ErrMessageEmpty    = fmt.Errorf("%w: message content cannot be empty", broadcast.ErrInvalidPayload)
	ErrMessageTooLong  = fmt.Errorf("%w: message exceeds maximum length", broadcast.ErrInvalidPayload)
	ErrMessageInvalid  = fmt.Errorf("%w: message contains invalid characters", broadcast.ErrInvalidPayload)
	ErrUserNotFound    = fmt.Errorf("user %w", broadcast.ErrNotFound)
)

// ValidateUsername validates a username.
func ValidateUsername(username string) error {
	if username == "" {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	if !utf8.ValidString(username) {
		return ErrUsernameInvalid
	}
	return nil
}

// ValidateRoomName validates a room name.
func ValidateRoomName(name string) error {
	if name == "" {
		return ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLength {
		return ErrRoomNameTooLong
	}
	if !utf8.ValidString(name) {
		return ErrRoomNameInvalid
	}
	return nil
}

// ValidateMessage validates a message content.
func ValidateMessage(content string) error {
	if content == "" {
		return ErrMessageEmpty
	}
	if len(content) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if !utf8.ValidString(content) {
		return ErrMessageInvalid
	}
	return nil
}

// RoomStore is the connection registry: per-connection identity and room
// membership, plus bounded per-room history.
type RoomStore struct {
	mu         sync.RWMutex
	users      map[string]*domain.User     // clientID -> User
	history    map[string][]domain.Message // room -> messages, oldest first
	roomUsers  map[string]map[string]bool  // room -> set of clientIDs
	maxHistory int
}

// NewRoomStore creates a new room store.
func NewRoomStore(maxHistory int) *RoomStore {
	if maxHistory <= 0 {
		maxHistory = HistoryCapacity
	}
	return &RoomStore{
		users:      make(map[string]*domain.User),
		history:    make(map[string][]domain.Message),
		roomUsers:  make(map[string]map[string]bool),
		maxHistory: maxHistory,
	}
}

// Connect registers a connection with no username.
func (s *RoomStore) Connect(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[clientID]; !exists {
		s.users[clientID] = &domain.User{ID: clientID}
	}
}

// SetUsername assigns a username, replacing any previous one.
func (s *RoomStore) SetUsername(clientID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userLocked(clientID).Username = username
}

// userLocked returns the entry for clientID, creating it if needed.
func (s *RoomStore) userLocked(clientID string) *domain.User {
	user, exists := s.users[clientID]
	if !exists {
		user = &domain.User{ID: clientID}
		s.users[clientID] = user
	}
	return user
}

// GetUser returns a copy of the entry for clientID.
func (s *RoomStore) GetUser(clientID string) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, exists := s.users[clientID]
	if !exists {
		return domain.User{}, false
	}
	return copyUser(user), true
}

// JoinRoom records clientID as a member of room. Joining twice is a no-op.
func (s *RoomStore) JoinRoom(clientID, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, exists := s.roomUsers[room]
	if !exists {
		members = make(map[string]bool)
		s.roomUsers[room] = members
	}
	if members[clientID] {
		return
	}
	members[clientID] = true
	user := s.userLocked(clientID)
	user.Rooms = append(user.Rooms, room)
}

// LeaveRoom removes clientID from room.
func (s *RoomStore) LeaveRoom(clientID, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked(clientID, room)
}

func (s *RoomStore) leaveLocked(clientID, room string) {
	members, exists := s.roomUsers[room]
	if !exists || !members[clientID] {
		return
	}
	delete(members, clientID)
	if len(members) == 0 {
		delete(s.roomUsers, room)
	}
	if user, ok := s.users[clientID]; ok {
		for i, r := range user.Rooms {
			if r == room {
				user.Rooms = append(user.Rooms[:i], user.Rooms[i+1:]...)
				break
			}
		}
	}
}

// Remove purges every entry for clientID and returns what was removed.
func (s *RoomStore) Remove(clientID string) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[clientID]
	if !exists {
		return domain.User{}, false
	}
	removed := copyUser(user)
	for _, room := range removed.Rooms {
		s.leaveLocked(clientID, room)
	}
	delete(s.users, clientID)
	return removed, true
}

// Usernames returns the sorted usernames of connections that set one.
func (s *RoomStore) Usernames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.users))
	for _, user := range s.users {
		if user.Username != "" {
			names = append(names, user.Username)
		}
	}
	sort.Strings(names)
	return names
}

// GetRoomUsers returns the members of room.
func (s *RoomStore) GetRoomUsers(room string) []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.User, 0, len(s.roomUsers[room]))
	for clientID := range s.roomUsers[room] {
		if user, ok := s.users[clientID]; ok {
			result = append(result, copyUser(user))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// AddMessage appends msg to its room's history, evicting the oldest entry
// once capacity is exceeded.
func (s *RoomStore) AddMessage(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := append(s.history[msg.Room], msg)
	if len(messages) > s.maxHistory {
		trimmed := make([]domain.Message, s.maxHistory)
		copy(trimmed, messages[len(messages)-s.maxHistory:])
		messages = trimmed
	}
	s.history[msg.Room] = messages
}

// GetHistory returns up to limit of the most recent messages for room,
// oldest first. A non-positive limit returns everything.
func (s *RoomStore) GetHistory(room string, limit int) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.history[room]
	if limit <= 0 || limit > len(messages) {
		limit = len(messages)
	}

	start := len(messages) - limit
	result := make([]domain.Message, limit)
	copy(result, messages[start:])
	return result
}

// Counts returns the number of registered connections and rooms with history.
func (s *RoomStore) Counts() (users, rooms int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), len(s.history)
}

func copyUser(u *domain.User) domain.User {
	out := *u
	out.Rooms = append([]string(nil), u.Rooms...)
	return out
}
