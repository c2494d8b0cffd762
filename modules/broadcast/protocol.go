package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Namespace is an independent connection endpoint with its own hub.
type Namespace string

// Supported namespaces.
const (
	NamespaceChat        Namespace = "chat"
	NamespaceSecureChat  Namespace = "secure-chat"
	NamespaceStomp       Namespace = "stomp"
	NamespaceBinary      Namespace = "binary"
	NamespaceLowLatency  Namespace = "low-latency"
	NamespaceDistributed Namespace = "distributed"
	NamespaceIoT         Namespace = "iot"
)

// Namespaces returns every namespace served by the gateway.
func Namespaces() []Namespace {
	return []Namespace{
		NamespaceChat,
		NamespaceSecureChat,
		NamespaceStomp,
		NamespaceBinary,
		NamespaceLowLatency,
		NamespaceDistributed,
		NamespaceIoT,
	}
}

// Outbound event names shared by every namespace.
const (
	EventAck   = "ack"
	EventError = "error"
)

// Common failure kinds. Namespace packages wrap these so Failure can classify them.
var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrNotFound       = errors.New("not found")
	ErrTooLarge       = errors.New("payload too large")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUnknownEvent   = errors.New("unknown event")
	ErrBusy           = errors.New("busy")
)

// Envelope is the wire frame exchanged with clients.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   *int64          `json:"ack,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	Ack   *int64 `json:"ack,omitempty"`
}

// Event is a decoded inbound event. Binary carries raw frame bytes for binary frames.
type Event struct {
	Name   string
	Data   json.RawMessage
	Binary []byte
	Ack    *int64
}

// Result is the structured reply for an inbound event.
type Result struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Failure converts an error into a structured failure result.
func Failure(err error) Result {
	return Result{
		Success: false,
		Code:    errorCode(err),
		Message: err.Error(),
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, ErrBusy):
		return "busy"
	default:
		return "internal"
	}
}

// ParseEnvelope decodes a text frame into an Event.
func ParseEnvelope(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if env.Event == "" {
		return Event{}, fmt.Errorf("%w: event name is required", ErrInvalidPayload)
	}
	return Event{Name: env.Event, Data: env.Data, Ack: env.Ack}, nil
}

// Decode unmarshals the event data into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s requires data", ErrInvalidPayload, e.Name)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func encode(event string, payload any, ack *int64) ([]byte, error) {
	data, err := json.Marshal(outbound{Event: event, Data: payload, Ack: ack})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", event, err)
	}
	return data, nil
}

// DecodeString accepts either a bare JSON string or an object carrying key.
func (e Event) DecodeString(key string) (string, error) {
	if len(e.Data) == 0 {
		return "", fmt.Errorf("%w: %s requires %s", ErrInvalidPayload, e.Name, key)
	}

	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		var obj map[string]any
		if err := json.Unmarshal(e.Data, &obj); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		v, ok := obj[key].(string)
		if !ok {
			return "", fmt.Errorf("%w: %s must be a string", ErrInvalidPayload, key)
		}
		s = v
	}
	if s == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidPayload, key)
	}
	return s, nil
}

// RemoteError restores a sentinel kind from an error that crossed a
// request-reply boundary, where only the message text survives.
func RemoteError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, kind := range []error{
		ErrInvalidPayload, ErrNotFound, ErrTooLarge, ErrRateLimited,
		ErrUnauthorized, ErrUnknownEvent, ErrBusy,
	} {
		if errors.Is(err, kind) {
			return err
		}
		if strings.Contains(msg, kind.Error()) {
			return fmt.Errorf("%w: %s", kind, err.Error())
		}
	}
	return err
}
