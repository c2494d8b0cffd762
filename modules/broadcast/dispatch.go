package broadcast

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/contrib/websocket"
)

// EventBinaryData is the event name given to raw binary frames.
const EventBinaryData = "binaryData"

// Handler implements the inbound events of one namespace.
type Handler interface {
	Namespace() Namespace
	// Connect admits or rejects a new connection before it is registered.
	Connect(ctx context.Context, client *Client) error
	// HandleEvent processes one inbound event. A nil result with a nil error
	// means the handler replies on its own.
	HandleEvent(ctx context.Context, client *Client, ev Event) (any, error)
	// Disconnect purges connection state after the socket closes.
	Disconnect(ctx context.Context, client *Client)
}

// FrameReader reads frames from a socket.
type FrameReader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// Serve runs a connection until the socket closes or the hub shuts down.
func Serve(ctx context.Context, hub *Hub, h Handler, client *Client, reader FrameReader) {
	if err := h.Connect(ctx, client); err != nil {
		log.Printf("[hub:%s] Rejected client %s: %v", hub.Namespace(), client.ID, err)
		_ = client.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		client.Close()
		return
	}

	hub.Register(client)
	go client.WritePump()

	defer func() {
		hub.Unregister(client.ID)
		h.Disconnect(ctx, client)
		client.Close()
	}()

	for {
		msgType, frame, err := reader.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[hub:%s] Read error from %s: %v", hub.Namespace(), client.ID, err)
			}
			return
		}

		var ev Event
		switch msgType {
		case websocket.BinaryMessage:
			ev = Event{Name: EventBinaryData, Binary: frame}
		case websocket.TextMessage:
			ev, err = ParseEnvelope(frame)
			if err != nil {
				hub.Reply(client, nil, Failure(err))
				continue
			}
		default:
			continue
		}

		Dispatch(ctx, hub, h, client, ev)
	}
}

// Dispatch runs one inbound event through h and replies to the client.
// Panics are converted into failure replies.
func Dispatch(ctx context.Context, hub *Hub, h Handler, client *Client, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[hub:%s] Panic handling %s from %s: %v", hub.Namespace(), ev.Name, client.ID, r)
			hub.Reply(client, ev.Ack, Failure(fmt.Errorf("internal error handling %s", ev.Name)))
		}
	}()

	if !client.Allow() {
		hub.Reply(client, ev.Ack, Failure(ErrRateLimited))
		return
	}

	res, err := h.HandleEvent(ctx, client, ev)
	if err != nil {
		hub.Reply(client, ev.Ack, Failure(err))
		return
	}
	if res != nil {
		hub.Reply(client, ev.Ack, res)
	}
}
