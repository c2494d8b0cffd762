package broadcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	msgType int
	data    []byte
}

type fakeReader struct {
	frames []frame
}

func (r *fakeReader) ReadMessage() (int, []byte, error) {
	if len(r.frames) == 0 {
		return 0, nil, io.EOF
	}
	f := r.frames[0]
	r.frames = r.frames[1:]
	return f.msgType, f.data, nil
}

type recordingHandler struct {
	mu           sync.Mutex
	rejectWith   error
	events       []Event
	disconnected bool
}

func (h *recordingHandler) Namespace() Namespace { return NamespaceChat }

func (h *recordingHandler) Connect(_ context.Context, _ *Client) error { return h.rejectWith }

func (h *recordingHandler) HandleEvent(_ context.Context, _ *Client, ev Event) (any, error) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()

	switch ev.Name {
	case "boom":
		panic("handler exploded")
	case "fail":
		return nil, fmt.Errorf("lookup: %w", ErrNotFound)
	case "silent":
		return nil, nil
	default:
		return Result{Success: true}, nil
	}
}

func (h *recordingHandler) Disconnect(_ context.Context, _ *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = true
}

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr bool
		event   string
	}{
		{name: "valid", frame: `{"event":"chatMessage","data":{"message":"hi"},"ack":1}`, event: "chatMessage"},
		{name: "no data", frame: `{"event":"discover"}`, event: "discover"},
		{name: "missing event", frame: `{"data":{}}`, wantErr: true},
		{name: "not json", frame: `hello`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEnvelope([]byte(tt.frame))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidPayload))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.event, ev.Name)
		})
	}
}

func TestEvent_DecodeRequiresData(t *testing.T) {
	var v struct{ Room string }
	err := Event{Name: "joinRoom"}.Decode(&v)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestFailure_Codes(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("x: %w", ErrInvalidPayload), "invalid_payload"},
		{fmt.Errorf("x: %w", ErrNotFound), "not_found"},
		{fmt.Errorf("x: %w", ErrTooLarge), "too_large"},
		{ErrRateLimited, "rate_limited"},
		{ErrUnauthorized, "unauthorized"},
		{ErrUnknownEvent, "unknown_event"},
		{ErrBusy, "busy"},
		{errors.New("other"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			res := Failure(tt.err)
			assert.False(t, res.Success)
			assert.Equal(t, tt.code, res.Code)
		})
	}
}

func TestDispatch_RecoversPanics(t *testing.T) {
	hub := NewHub(NamespaceChat, time.Second)
	client := newTestClient("a", 8)
	hub.Register(client)
	ack := int64(1)

	assert.NotPanics(t, func() {
		Dispatch(context.Background(), hub, &recordingHandler{}, client, Event{Name: "boom", Ack: &ack})
	})

	got := drain(t, client)
	require.Len(t, got, 1)
	assert.Equal(t, EventAck, got[0].Event)
	assert.Contains(t, string(got[0].Data), `"success":false`)
}

func TestDispatch_RateLimited(t *testing.T) {
	hub := NewHub(NamespaceChat, time.Second)
	client := NewClient("a", NamespaceChat, &fakeConn{}, nil, ClientOptions{SendBuffer: 8, RateLimit: 0.001, RateBurst: 1})
	hub.Register(client)
	h := &recordingHandler{}

	Dispatch(context.Background(), hub, h, client, Event{Name: "first"})
	Dispatch(context.Background(), hub, h, client, Event{Name: "second"})

	assert.Len(t, h.events, 1)
	got := drain(t, client)
	require.Len(t, got, 1)
	assert.Equal(t, EventError, got[0].Event)
	assert.Contains(t, string(got[0].Data), "rate_limited")
}

func TestDispatch_SilentHandlerSendsNothing(t *testing.T) {
	hub := NewHub(NamespaceChat, time.Second)
	client := newTestClient("a", 8)
	hub.Register(client)
	ack := int64(3)

	Dispatch(context.Background(), hub, &recordingHandler{}, client, Event{Name: "silent", Ack: &ack})

	assert.Empty(t, drain(t, client))
}

func TestServe_DispatchesFramesAndDisconnects(t *testing.T) {
	hub := NewHub(NamespaceChat, time.Second)
	conn := &fakeConn{}
	client := NewClient("a", NamespaceChat, conn, nil, DefaultClientOptions())
	h := &recordingHandler{}
	reader := &fakeReader{frames: []frame{
		{websocket.TextMessage, []byte(`{"event":"hello","ack":1}`)},
		{websocket.TextMessage, []byte(`garbage`)},
		{websocket.TextMessage, []byte(`{"event":"fail"}`)},
		{websocket.BinaryMessage, []byte{1, 2, 3}},
	}}

	Serve(context.Background(), hub, h, client, reader)

	h.mu.Lock()
	require.Len(t, h.events, 3)
	assert.Equal(t, "hello", h.events[0].Name)
	assert.Equal(t, "fail", h.events[1].Name)
	assert.Equal(t, EventBinaryData, h.events[2].Name)
	assert.Equal(t, []byte{1, 2, 3}, h.events[2].Binary)
	assert.True(t, h.disconnected)
	h.mu.Unlock()

	assert.Equal(t, 0, hub.ClientCount())
	select {
	case <-client.Done():
	default:
		t.Fatal("client should be closed after Serve returns")
	}
}

func TestServe_RejectedConnection(t *testing.T) {
	hub := NewHub(NamespaceSecureChat, time.Second)
	conn := &fakeConn{}
	client := NewClient("a", NamespaceSecureChat, conn, nil, DefaultClientOptions())
	h := &recordingHandler{rejectWith: ErrUnauthorized}

	Serve(context.Background(), hub, h, client, &fakeReader{frames: []frame{
		{websocket.TextMessage, []byte(`{"event":"hello"}`)},
	}})

	assert.Empty(t, h.events)
	assert.Equal(t, 0, hub.ClientCount())
	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.Len(t, conn.types, 1)
	assert.Equal(t, websocket.CloseMessage, conn.types[0])
	assert.True(t, conn.closed)
}

func TestEvent_DecodeString(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{name: "bare string", data: `"auth-service"`, want: "auth-service"},
		{name: "object", data: `{"name":"auth-service"}`, want: "auth-service"},
		{name: "empty string", data: `""`, wantErr: true},
		{name: "wrong type", data: `{"name":5}`, wantErr: true},
		{name: "number", data: `5`, wantErr: true},
		{name: "missing", data: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Event{Name: "heartbeat", Data: []byte(tt.data)}.DecodeString("name")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemoteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "not found text", err: errors.New("service auth-service not found"), want: ErrNotFound},
		{name: "invalid payload text", err: errors.New("Invalid payload: name is required"), want: ErrInvalidPayload},
		{name: "too large text", err: errors.New("binary payload exceeds 10000000 bytes: payload too large"), want: ErrTooLarge},
		{name: "already typed", err: fmt.Errorf("x: %w", ErrUnauthorized), want: ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, RemoteError(tt.err), tt.want)
		})
	}

	assert.NoError(t, RemoteError(nil))
	plain := errors.New("nats: timeout")
	assert.Equal(t, plain, RemoteError(plain))
	assert.Equal(t, "internal", Failure(RemoteError(plain)).Code)
}
