package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/example/realtime-gateway-demo/domain/chat"
	"github.com/example/realtime-gateway-demo/modules/broadcast"
	"github.com/example/realtime-gateway-demo/modules/broadcast/broadcasttest"
)

const waitTimeout = time.Second

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)         {}
func (m *mockLogger) Info(msg string, args ...any)          {}
func (m *mockLogger) Warn(msg string, args ...any)          {}
func (m *mockLogger) Error(msg string, args ...any)         {}
func (m *mockLogger) With(args ...any) types.Logger         { return m }
func (m *mockLogger) WithError(err error) types.Logger      { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

func newTestModule(t *testing.T) (*Module, *broadcast.Hub) {
	t.Helper()
	hub := broadcast.NewHub(broadcast.NamespaceChat, time.Second)
	return NewModule(hub, &mockLogger{}), hub
}

func connect(t *testing.T, m *Module, hub *broadcast.Hub, id string) (*broadcast.Client, *broadcasttest.Conn) {
	t.Helper()
	client, conn := broadcasttest.Connect(t, hub, id, nil)
	require.NoError(t, m.Connect(context.Background(), client))
	return client, conn
}

func send(t *testing.T, m *Module, client *broadcast.Client, name string, data any) (any, error) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return m.HandleEvent(context.Background(), client, broadcast.Event{Name: name, Data: raw})
}

func decode[T any](t *testing.T, env broadcast.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestChat_SetUsernameBroadcastsUserList(t *testing.T) {
	m, hub := newTestModule(t)
	alice, connA := connect(t, m, hub, "a")
	_, connB := connect(t, m, hub, "b")

	res, err := send(t, m, alice, EventSetUsername, "Alice")
	require.NoError(t, err)
	assert.Equal(t, SuccessResponse{Success: true}, res)

	for _, conn := range []*broadcasttest.Conn{connA, connB} {
		lists := conn.WaitFor(EventUserList, 1, waitTimeout)
		require.Len(t, lists, 1)
		assert.Equal(t, []string{"Alice"}, decode[[]string](t, lists[0]))
	}
}

func TestChat_JoinRoomSendsHistoryToJoinerOnly(t *testing.T) {
	m, hub := newTestModule(t)
	alice, _ := connect(t, m, hub, "a")
	bob, connB := connect(t, m, hub, "b")
	_, connC := connect(t, m, hub, "c")

	_, err := send(t, m, alice, EventJoinRoom, "general")
	require.NoError(t, err)
	_, err = send(t, m, alice, EventChatMessage, ChatMessageRequest{Room: "general", Message: "first"})
	require.NoError(t, err)

	res, err := send(t, m, bob, EventJoinRoom, map[string]string{"room": "general"})
	require.NoError(t, err)
	assert.Equal(t, SuccessResponse{Success: true}, res)

	histories := connB.WaitFor(EventMessageHistory, 1, waitTimeout)
	require.Len(t, histories, 1)
	history := decode[MessageHistory](t, histories[0])
	assert.Equal(t, "general", history.Room)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "first", history.Messages[0].Message)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, connC.Named(EventMessageHistory))
}

func TestChat_JoinDuringPostsSeesEachMessageOnce(t *testing.T) {
	const total = 90

	m, hub := newTestModule(t)
	alice, _ := connect(t, m, hub, "a")
	bob, connB := connect(t, m, hub, "b")

	done := make(chan error, 1)
	go func() {
		for i := 0; i < total; i++ {
			raw, _ := json.Marshal(ChatMessageRequest{Room: "lobby", Message: fmt.Sprintf("m%d", i)})
			if _, err := m.HandleEvent(context.Background(), alice, broadcast.Event{Name: EventChatMessage, Data: raw}); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	time.Sleep(time.Millisecond)
	_, err := send(t, m, bob, EventJoinRoom, "lobby")
	require.NoError(t, err)
	require.NoError(t, <-done)

	histories := connB.WaitFor(EventMessageHistory, 1, waitTimeout)
	require.Len(t, histories, 1)
	history := decode[MessageHistory](t, histories[0])

	want := total - len(history.Messages)
	connB.WaitFor(EventMessage, want, waitTimeout)
	time.Sleep(20 * time.Millisecond)
	live := connB.Named(EventMessage)
	require.Len(t, live, want)

	seen := make(map[string]bool, total)
	for _, msg := range history.Messages {
		seen[msg.ID] = true
	}
	for _, env := range live {
		msg := decode[domain.Message](t, env)
		assert.False(t, seen[msg.ID], "message %s delivered twice", msg.Message)
		seen[msg.ID] = true
	}
	assert.Len(t, seen, total)
}

func TestChat_MessageScopedToRoom(t *testing.T) {
	m, hub := newTestModule(t)
	alice, connA := connect(t, m, hub, "a")
	bob, connB := connect(t, m, hub, "b")
	_, connC := connect(t, m, hub, "c")

	_, err := send(t, m, alice, EventSetUsername, "Alice")
	require.NoError(t, err)
	for _, c := range []*broadcast.Client{alice, bob} {
		_, err := send(t, m, c, EventJoinRoom, "general")
		require.NoError(t, err)
	}

	res, err := send(t, m, alice, EventChatMessage, ChatMessageRequest{Room: "general", Message: "hi"})
	require.NoError(t, err)
	assert.Nil(t, res)

	for _, conn := range []*broadcasttest.Conn{connA, connB} {
		msgs := conn.WaitFor(EventMessage, 1, waitTimeout)
		require.Len(t, msgs, 1)
		msg := decode[domain.Message](t, msgs[0])
		assert.Equal(t, "Alice", msg.Username)
		assert.Equal(t, "general", msg.Room)
		assert.Equal(t, "hi", msg.Message)
		assert.False(t, msg.Timestamp.IsZero())
	}

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, connC.Named(EventMessage))
}

func TestChat_MessageWithoutRoomGoesToEveryone(t *testing.T) {
	m, hub := newTestModule(t)
	alice, connA := connect(t, m, hub, "a")
	_, connB := connect(t, m, hub, "b")

	_, err := send(t, m, alice, EventChatMessage, "hello all")
	require.NoError(t, err)

	for _, conn := range []*broadcasttest.Conn{connA, connB} {
		msgs := conn.WaitFor(EventMessage, 1, waitTimeout)
		require.Len(t, msgs, 1)
		msg := decode[domain.Message](t, msgs[0])
		// No username set: the connection id is the identity.
		assert.Equal(t, "a", msg.Username)
		assert.Equal(t, "hello all", msg.Message)
	}
}

func TestChat_HistoryKeepsMostRecent100(t *testing.T) {
	m, hub := newTestModule(t)
	alice, _ := connect(t, m, hub, "a")

	for i := 1; i <= 101; i++ {
		_, err := send(t, m, alice, EventChatMessage, ChatMessageRequest{Room: "general", Message: fmt.Sprintf("msg-%d", i)})
		require.NoError(t, err)
	}

	res, err := send(t, m, alice, EventGetHistory, "general")
	require.NoError(t, err)
	history := res.(MessageHistory)
	require.Len(t, history.Messages, 100)
	assert.Equal(t, "msg-2", history.Messages[0].Message)
	assert.Equal(t, "msg-101", history.Messages[99].Message)
}

func TestChat_LeaveRoomStopsDelivery(t *testing.T) {
	m, hub := newTestModule(t)
	alice, _ := connect(t, m, hub, "a")
	bob, connB := connect(t, m, hub, "b")

	_, err := send(t, m, bob, EventJoinRoom, "general")
	require.NoError(t, err)
	_, err = send(t, m, bob, EventLeaveRoom, "general")
	require.NoError(t, err)

	_, err = send(t, m, alice, EventChatMessage, ChatMessageRequest{Room: "general", Message: "anyone?"})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, connB.Named(EventMessage))
	assert.False(t, hub.IsMember("b", "general"))
}

func TestChat_DisconnectPurgesAndRebroadcasts(t *testing.T) {
	m, hub := newTestModule(t)
	alice, _ := connect(t, m, hub, "a")
	bob, connB := connect(t, m, hub, "b")

	_, err := send(t, m, alice, EventSetUsername, "Alice")
	require.NoError(t, err)
	_, err = send(t, m, bob, EventSetUsername, "Bob")
	require.NoError(t, err)
	_, err = send(t, m, alice, EventJoinRoom, "general")
	require.NoError(t, err)
	connB.WaitFor(EventUserList, 2, waitTimeout)

	hub.Unregister(alice.ID)
	m.Disconnect(context.Background(), alice)

	lists := connB.WaitFor(EventUserList, 3, waitTimeout)
	require.Len(t, lists, 3)
	assert.Equal(t, []string{"Bob"}, decode[[]string](t, lists[2]))

	_, exists := m.store.GetUser("a")
	assert.False(t, exists)
	assert.Empty(t, m.store.GetRoomUsers("general"))
}

func TestChat_InvalidPayloads(t *testing.T) {
	m, hub := newTestModule(t)
	alice, _ := connect(t, m, hub, "a")

	tests := []struct {
		name  string
		event string
		data  any
		code  string
	}{
		{name: "empty username", event: EventSetUsername, data: "", code: "invalid_payload"},
		{name: "empty message", event: EventChatMessage, data: ChatMessageRequest{Room: "general"}, code: "invalid_payload"},
		{name: "room wrong type", event: EventJoinRoom, data: 42, code: "invalid_payload"},
		{name: "unknown event", event: "typing", data: "x", code: "unknown_event"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := send(t, m, alice, tt.event, tt.data)
			require.Error(t, err)
			assert.Equal(t, tt.code, broadcast.Failure(err).Code)
		})
	}
}

func TestChat_SendMessageService(t *testing.T) {
	m, hub := newTestModule(t)
	alice, connA := connect(t, m, hub, "a")
	_, err := send(t, m, alice, EventJoinRoom, "general")
	require.NoError(t, err)

	resp, err := m.handleSendMessage(context.Background(), SendMessageRequest{Room: "general", Message: "from http"}, nil)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, apiSender, resp.Message.Username)

	msgs := connA.WaitFor(EventMessage, 1, waitTimeout)
	require.Len(t, msgs, 1)

	history, err := m.handleGetHistory(context.Background(), GetHistoryRequest{Room: "general"}, nil)
	require.NoError(t, err)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "from http", history.Messages[0].Message)
}

func TestChatMessageRequest_UnmarshalJSON(t *testing.T) {
	var req ChatMessageRequest
	require.NoError(t, json.Unmarshal([]byte(`"plain"`), &req))
	assert.Equal(t, ChatMessageRequest{Message: "plain"}, req)

	require.NoError(t, json.Unmarshal([]byte(`{"room":"general","message":"hi"}`), &req))
	assert.Equal(t, ChatMessageRequest{Room: "general", Message: "hi"}, req)

	assert.Error(t, json.Unmarshal([]byte(`7`), &req))
}
