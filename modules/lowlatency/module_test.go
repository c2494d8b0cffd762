package lowlatency

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/realtime-gateway-demo/modules/broadcast"
	"github.com/example/realtime-gateway-demo/modules/broadcast/broadcasttest"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)         {}
func (m *mockLogger) Info(msg string, args ...any)          {}
func (m *mockLogger) Warn(msg string, args ...any)          {}
func (m *mockLogger) Error(msg string, args ...any)         {}
func (m *mockLogger) With(args ...any) types.Logger         { return m }
func (m *mockLogger) WithError(err error) types.Logger      { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

func newTestModule() (*Module, *broadcast.Hub) {
	hub := broadcast.NewHub(broadcast.NamespaceLowLatency, time.Second)
	m := NewModule(hub, &mockLogger{})
	m.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return m, hub
}

func TestLowLatency_GameStateReachesEveryone(t *testing.T) {
	m, hub := newTestModule()
	a, connA := broadcasttest.Connect(t, hub, "a", nil)
	_, connB := broadcasttest.Connect(t, hub, "b", nil)

	res, err := m.HandleEvent(context.Background(), a, broadcast.Event{
		Name: EventGameState,
		Data: json.RawMessage(`{"x":1,"y":2}`),
	})
	require.NoError(t, err)
	assert.Nil(t, res)

	for _, conn := range []*broadcasttest.Conn{connA, connB} {
		updates := conn.WaitFor(EventGameUpdate, 1, time.Second)
		require.Len(t, updates, 1)
		var got GameUpdate
		require.NoError(t, json.Unmarshal(updates[0].Data, &got))
		assert.JSONEq(t, `{"x":1,"y":2}`, string(got.State))
		assert.Equal(t, int64(1700000000123), got.Timestamp)
	}
}

func TestLowLatency_NoSubscribers(t *testing.T) {
	m, _ := newTestModule()

	n, err := m.Relay(json.RawMessage(`{"tick":1}`))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLowLatency_FullQueueDropsUpdate(t *testing.T) {
	m, hub := newTestModule()

	// No write pump: the single queue slot is never drained.
	stalled := broadcast.NewClient("slow", broadcast.NamespaceLowLatency, &broadcasttest.Conn{}, nil,
		broadcast.ClientOptions{SendBuffer: 1})
	hub.Register(stalled)
	t.Cleanup(stalled.Close)
	_, fast := broadcasttest.Connect(t, hub, "fast", nil)

	first, err := m.Relay(json.RawMessage(`1`))
	require.NoError(t, err)
	second, err := m.Relay(json.RawMessage(`2`))
	require.NoError(t, err)

	assert.Equal(t, 2, first)
	assert.Equal(t, 1, second)
	assert.Len(t, fast.WaitFor(EventGameUpdate, 2, time.Second), 2)
	assert.NotNil(t, hub.GetClient("slow"), "volatile drops must not disconnect")

	health := m.Health(context.Background())
	assert.Equal(t, int64(2), health.Details["published"])
	assert.Equal(t, int64(3), health.Details["delivered"])
}

func TestLowLatency_Errors(t *testing.T) {
	m, hub := newTestModule()
	a, conn := broadcasttest.Connect(t, hub, "a", nil)

	tests := []struct {
		name string
		ev   broadcast.Event
		code string
	}{
		{name: "missing state", ev: broadcast.Event{Name: EventGameState}, code: "invalid_payload"},
		{name: "unknown event", ev: broadcast.Event{Name: "move"}, code: "unknown_event"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.HandleEvent(context.Background(), a, tt.ev)
			require.Error(t, err)
			assert.Equal(t, tt.code, broadcast.Failure(err).Code)
		})
	}
	assert.Empty(t, conn.Named(EventGameUpdate))
}

func TestLowLatency_GameStateService(t *testing.T) {
	m, hub := newTestModule()
	_, conn := broadcasttest.Connect(t, hub, "a", nil)

	resp, err := m.handleGameState(context.Background(), StateRequest{State: json.RawMessage(`"paused"`)}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateResponse{Success: true, Delivered: 1}, resp)
	assert.Len(t, conn.WaitFor(EventGameUpdate, 1, time.Second), 1)
}
