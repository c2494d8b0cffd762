package transfer

import (
	"context"
	"encoding/json"
	"strings"
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

func newTestModule(t *testing.T) (*Module, *broadcast.Hub) {
	t.Helper()
	hub := broadcast.NewHub(broadcast.NamespaceBinary, time.Second)
	m, err := NewModule(hub, &mockLogger{}, WithChunkInterval(time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m, hub
}

func event(t *testing.T, name string, data any, ack int64) broadcast.Event {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return broadcast.Event{Name: name, Data: raw, Ack: &ack}
}

func TestModule_StreamSessionRelaysToMembersOnly(t *testing.T) {
	m, hub := newTestModule(t)
	a, connA := broadcasttest.Connect(t, hub, "a", nil)
	b, connB := broadcasttest.Connect(t, hub, "b", nil)
	_, connC := broadcasttest.Connect(t, hub, "c", nil)
	ctx := context.Background()

	res, err := m.HandleEvent(ctx, a, event(t, EventStreamStart, StreamStartRequest{ID: "cam-1"}, 1))
	require.NoError(t, err)
	assert.Equal(t, StreamStartResponse{Success: true, StreamID: "cam-1"}, res)

	_, err = m.HandleEvent(ctx, b, event(t, EventStreamStart, StreamStartRequest{ID: "cam-1"}, 2))
	require.NoError(t, err)

	res, err = m.HandleEvent(ctx, a, event(t, EventStreamData, map[string]any{"streamId": "cam-1", "data": "frame-1"}, 3))
	require.NoError(t, err)
	assert.Equal(t, StreamDataResponse{Success: true, Recipients: 2}, res)

	for _, conn := range []*broadcasttest.Conn{connA, connB} {
		got := conn.WaitFor(EventStreamData, 1, time.Second)
		require.Len(t, got, 1)
		var data StreamData
		require.NoError(t, json.Unmarshal(got[0].Data, &data))
		assert.Equal(t, "cam-1", data.StreamID)
		assert.JSONEq(t, `"frame-1"`, string(data.Data))
		assert.False(t, data.Timestamp.IsZero())
	}
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, connC.Named(EventStreamData))
}

func TestModule_StreamDataUnknownStream(t *testing.T) {
	m, hub := newTestModule(t)
	a, _ := broadcasttest.Connect(t, hub, "a", nil)

	_, err := m.HandleEvent(context.Background(), a, event(t, EventStreamData, map[string]any{"streamId": "nope", "data": 1}, 1))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStreamNotFound)
	assert.Equal(t, "not_found", broadcast.Failure(err).Code)
}

func TestModule_StreamDataTooLargeKeepsMembership(t *testing.T) {
	m, hub := newTestModule(t)
	a, _ := broadcasttest.Connect(t, hub, "a", nil)
	ctx := context.Background()

	_, err := m.HandleEvent(ctx, a, event(t, EventStreamStart, StreamStartRequest{ID: "big"}, 1))
	require.NoError(t, err)

	huge := `"` + strings.Repeat("x", MaxStreamMessageSize+1) + `"`
	_, err = m.HandleEvent(ctx, a, event(t, EventStreamData, map[string]any{"streamId": "big", "data": json.RawMessage(huge)}, 2))

	assert.ErrorIs(t, err, ErrStreamMessageTooLarge)
	assert.True(t, hub.IsMember("a", RoomName("big")))
}

func TestModule_StreamDataAtLimitIsRelayed(t *testing.T) {
	m, hub := newTestModule(t)
	a, _ := broadcasttest.Connect(t, hub, "a", nil)
	ctx := context.Background()

	_, err := m.HandleEvent(ctx, a, event(t, EventStreamStart, StreamStartRequest{ID: "edge"}, 1))
	require.NoError(t, err)

	exact := `"` + strings.Repeat("x", MaxStreamMessageSize) + `"`
	res, err := m.HandleEvent(ctx, a, event(t, EventStreamData, map[string]any{"streamId": "edge", "data": json.RawMessage(exact)}, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, res.(StreamDataResponse).Recipients)
}

func TestDataSize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"string excludes quotes", `"abc"`, 3},
		{"escaped string", `"a\nb"`, 3},
		{"object", `{"a":1}`, 7},
		{"number", `42`, 2},
		{"empty", ``, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dataSize(json.RawMessage(tt.raw)))
		})
	}
}

func TestModule_StreamStop(t *testing.T) {
	m, hub := newTestModule(t)
	a, _ := broadcasttest.Connect(t, hub, "a", nil)
	ctx := context.Background()

	_, err := m.HandleEvent(ctx, a, event(t, EventStreamStart, StreamStartRequest{ID: "s"}, 1))
	require.NoError(t, err)
	_, err = m.HandleEvent(ctx, a, event(t, EventStreamStop, StreamStartRequest{ID: "s"}, 2))
	require.NoError(t, err)

	assert.False(t, hub.HasTopic(RoomName("s")))
}

func TestModule_BinaryFrameTransfersAndAcks(t *testing.T) {
	m, hub := newTestModule(t)
	sender, senderConn := broadcasttest.Connect(t, hub, "sender", nil)
	_, viewerConn := broadcasttest.Connect(t, hub, "viewer", nil)
	ack := int64(9)

	res, err := m.HandleEvent(context.Background(), sender, broadcast.Event{
		Name:   broadcast.EventBinaryData,
		Binary: make([]byte, ChunkSize+10),
		Ack:    &ack,
	})
	require.NoError(t, err)
	assert.Nil(t, res)

	acks := senderConn.WaitFor(broadcast.EventAck, 1, 2*time.Second)
	require.Len(t, acks, 1)
	var result Result
	require.NoError(t, json.Unmarshal(acks[0].Data, &result))
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.TotalChunks)

	assert.Len(t, viewerConn.WaitFor(EventBinaryChunk, 2, time.Second), 2)
	assert.Len(t, viewerConn.WaitFor(EventBinaryComplete, 1, time.Second), 1)
	assert.Len(t, viewerConn.Named(EventBinaryStart), 1)
}

func TestModule_BinaryDataTooLarge(t *testing.T) {
	m, hub := newTestModule(t)
	sender, _ := broadcasttest.Connect(t, hub, "sender", nil)
	_, viewerConn := broadcasttest.Connect(t, hub, "viewer", nil)

	_, err := m.HandleEvent(context.Background(), sender, broadcast.Event{
		Name:   broadcast.EventBinaryData,
		Binary: make([]byte, MaxTransferSize+1),
	})

	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, viewerConn.Frames())
}

func TestModule_UnknownEvent(t *testing.T) {
	m, hub := newTestModule(t)
	a, _ := broadcasttest.Connect(t, hub, "a", nil)

	_, err := m.HandleEvent(context.Background(), a, broadcast.Event{Name: "binaryResponse"})
	assert.ErrorIs(t, err, broadcast.ErrUnknownEvent)
}
