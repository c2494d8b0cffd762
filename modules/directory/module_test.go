package directory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

func startModule(t *testing.T, backend string) *Module {
	t.Helper()
	m := NewModule(backend, 0, &mockLogger{})
	if backend == BackendKV {
		m.SetPlugin("kv", newKVPlugin(t))
	}
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m
}

func socketEvent(t *testing.T, name string, data any) broadcast.Event {
	t.Helper()
	ev := broadcast.Event{Name: name}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		ev.Data = raw
	}
	return ev
}

func TestModule_StartRequiresPluginForKV(t *testing.T) {
	m := NewModule(BackendKV, 0, &mockLogger{})
	err := m.Start(context.Background())
	assert.ErrorContains(t, err, "kv")

	m = NewModule("etcd", 0, &mockLogger{})
	assert.Error(t, m.Start(context.Background()))
}

func TestModule_HandleEvent(t *testing.T) {
	for _, backend := range []string{BackendMemory, BackendKV} {
		t.Run(backend, func(t *testing.T) {
			m := startModule(t, backend)
			ctx := context.Background()

			res, err := m.HandleEvent(ctx, nil, socketEvent(t, EventRegister, RegisterRequest{Name: "auth-service", Type: "auth"}))
			require.NoError(t, err)
			reg, ok := res.(RegisterResponse)
			require.True(t, ok)
			assert.True(t, reg.Success)
			assert.Equal(t, "auth-service", reg.Service.Name)

			_, err = m.HandleEvent(ctx, nil, socketEvent(t, EventRegister, RegisterRequest{Name: "auth-service", Type: "auth"}))
			require.NoError(t, err)

			res, err = m.HandleEvent(ctx, nil, socketEvent(t, EventDiscover, nil))
			require.NoError(t, err)
			disc, ok := res.(DiscoverResponse)
			require.True(t, ok)
			assert.Len(t, disc.Services, 1)

			res, err = m.HandleEvent(ctx, nil, socketEvent(t, EventHeartbeat, "auth-service"))
			require.NoError(t, err)
			assert.True(t, res.(HeartbeatResponse).Success)

			_, err = m.HandleEvent(ctx, nil, socketEvent(t, EventHeartbeat, map[string]string{"name": "ghost"}))
			assert.Equal(t, "not_found", broadcast.Failure(err).Code)

			_, err = m.HandleEvent(ctx, nil, socketEvent(t, "deregister", nil))
			assert.ErrorIs(t, err, broadcast.ErrUnknownEvent)
		})
	}
}

func TestModule_KVBackendInApplication(t *testing.T) {
	_, app := newKVApp(t)
	m := NewModule(BackendKV, 0, &mockLogger{})
	require.NoError(t, app.Register(m))
	require.NoError(t, app.Start(context.Background()))
	t.Cleanup(func() { _ = app.Stop(context.Background()) })

	ctx := context.Background()
	svc := m.Service()

	_, err := svc.Heartbeat(ctx, "nonexistent")
	require.ErrorIs(t, err, ErrServiceNotFound)
	assert.Equal(t, "not_found", broadcast.Failure(err).Code)

	_, err = svc.Register(ctx, RegisterRequest{Name: "auth-service", Type: "auth", Metadata: map[string]any{"v": float64(1)}})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterRequest{Name: "auth-service", Type: "auth", Metadata: map[string]any{"v": float64(2)}})
	require.NoError(t, err)

	services, err := svc.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "auth-service", services[0].Name)
	assert.Equal(t, float64(2), services[0].Metadata["v"])

	hb, err := svc.Heartbeat(ctx, "auth-service")
	require.NoError(t, err)
	assert.True(t, hb.Success)
}

func TestModule_HealthCountsServices(t *testing.T) {
	m := startModule(t, BackendMemory)
	_, err := m.Service().Register(context.Background(), RegisterRequest{Name: "auth-service", Type: "auth"})
	require.NoError(t, err)

	health := m.Health(context.Background())
	assert.True(t, health.Healthy)
	assert.Equal(t, 1, health.Details["services"])
}

func TestModule_RequestReplyHandlers(t *testing.T) {
	m := startModule(t, BackendMemory)
	ctx := context.Background()

	reg, err := m.handleRegister(ctx, RegisterRequest{Name: "billing", Type: "http"}, nil)
	require.NoError(t, err)
	assert.True(t, reg.Success)

	disc, err := m.handleDiscover(ctx, DiscoverRequest{}, nil)
	require.NoError(t, err)
	require.Len(t, disc.Services, 1)

	_, err = m.handleHeartbeat(ctx, HeartbeatRequest{Name: "missing"}, nil)
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestSweepInterval(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, sweepInterval(time.Millisecond))
	assert.Equal(t, 15*time.Second, sweepInterval(time.Minute))
}
