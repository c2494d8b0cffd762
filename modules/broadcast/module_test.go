package broadcast

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/realtime-gateway-demo/events"
)

func TestModule_ServiceEventsReachDistributedClients(t *testing.T) {
	m := NewModule(50 * time.Millisecond)
	hub := m.Registry().Hub(NamespaceDistributed)
	watcher := newTestClient("watcher", 8)
	hub.Register(watcher)

	other := newTestClient("chatter", 8)
	m.Registry().Hub(NamespaceChat).Register(other)

	now := time.Now()
	require.NoError(t, m.handleServiceRegistered(context.Background(), events.ServiceRegisteredEvent{
		Name: "auth", Type: "http", Timestamp: now,
	}, nil))
	require.NoError(t, m.handleServiceEvicted(context.Background(), events.ServiceEvictedEvent{
		Name: "auth", LastHeartbeat: now, Timestamp: now,
	}, nil))

	got := drain(t, watcher)
	require.Len(t, got, 2)
	assert.Equal(t, EventServiceRegistered, got[0].Event)
	assert.Equal(t, EventServiceEvicted, got[1].Event)

	var ann ServiceAnnouncement
	require.NoError(t, json.Unmarshal(got[0].Data, &ann))
	assert.Equal(t, "auth", ann.Name)
	assert.Equal(t, "http", ann.Type)

	assert.Empty(t, drain(t, other))
}

func TestModule_TransferCompletedUpdatesHealth(t *testing.T) {
	m := NewModule(50 * time.Millisecond)

	for _, size := range []int{100, 250} {
		require.NoError(t, m.handleTransferCompleted(context.Background(), events.TransferCompletedEvent{
			TransferID: "t", TotalSize: size,
		}, nil))
	}

	status := m.Health(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, int64(2), status.Details["completed_transfers"])
	assert.Equal(t, int64(350), status.Details["transferred_bytes"])
}

func TestModule_StartStopClosesClients(t *testing.T) {
	m := NewModule(50 * time.Millisecond)
	require.NoError(t, m.Start(context.Background()))

	conn := &fakeConn{}
	client := NewClient("c1", NamespaceStomp, conn, nil, ClientOptions{SendBuffer: 4})
	m.Registry().Hub(NamespaceStomp).Register(client)
	assert.Equal(t, 1, m.Registry().Total())

	require.NoError(t, m.Stop(context.Background()))

	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatal("client was not closed on stop")
	}
}
