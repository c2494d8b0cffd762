package chat

import "time"

// Message is one chat line. Room is empty for namespace-wide messages.
type Message struct {
	ID        string    `json:"id"`
	Room      string    `json:"room,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// User is the registry entry for one connection.
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username,omitempty"`
	Rooms    []string `json:"rooms,omitempty"`
}

// DisplayName returns the chosen username, falling back to the connection id.
func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.ID
}
