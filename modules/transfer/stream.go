package transfer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// Sessions relays stream data to the members of named stream rooms.
type Sessions struct {
	hub *broadcast.Hub
	now func() time.Time
}

// NewSessions creates stream sessions on hub.
func NewSessions(hub *broadcast.Hub) *Sessions {
	return &Sessions{hub: hub, now: time.Now}
}

// RoomName returns the room backing stream id.
func RoomName(id string) string {
	return "stream-" + id
}

// Start joins the client to the stream room. Repeated calls are no-ops.
func (s *Sessions) Start(clientID string, req StreamStartRequest) (StreamStartResponse, error) {
	if req.ID == "" {
		return StreamStartResponse{}, fmt.Errorf("%w: stream id is required", broadcast.ErrInvalidPayload)
	}
	if !s.hub.Subscribe(clientID, RoomName(req.ID)) {
		return StreamStartResponse{}, fmt.Errorf("client %s %w", clientID, broadcast.ErrNotFound)
	}
	return StreamStartResponse{Success: true, StreamID: req.ID}, nil
}

// Stop removes the client from the stream room.
func (s *Sessions) Stop(clientID string, req StreamStartRequest) (StreamStartResponse, error) {
	if req.ID == "" {
		return StreamStartResponse{}, fmt.Errorf("%w: stream id is required", broadcast.ErrInvalidPayload)
	}
	s.hub.Unsubscribe(clientID, RoomName(req.ID))
	return StreamStartResponse{Success: true, StreamID: req.ID}, nil
}

// Relay publishes data to the stream room with a server timestamp.
// Oversized messages are rejected without touching membership.
func (s *Sessions) Relay(req StreamDataRequest) (StreamDataResponse, error) {
	if req.StreamID == "" {
		return StreamDataResponse{}, fmt.Errorf("%w: streamId is required", broadcast.ErrInvalidPayload)
	}
	if dataSize(req.Data) > MaxStreamMessageSize {
		return StreamDataResponse{}, ErrStreamMessageTooLarge
	}
	room := RoomName(req.StreamID)
	if !s.hub.HasTopic(room) {
		return StreamDataResponse{}, fmt.Errorf("%w: %s", ErrStreamNotFound, req.StreamID)
	}

	n := s.hub.Publish(room, EventStreamData, StreamData{
		StreamID:  req.StreamID,
		Data:      req.Data,
		Timestamp: s.now(),
	})
	return StreamDataResponse{Success: true, Recipients: n}, nil
}

// dataSize is the decoded length of a JSON string and the encoded length of
// any other value.
func dataSize(raw json.RawMessage) int {
	if len(raw) > 0 && raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			return len(text)
		}
	}
	return len(raw)
}
