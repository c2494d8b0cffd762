package lowlatency

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// GameStatePort defines the interface for relaying game state.
type GameStatePort interface {
	Relay(ctx context.Context, state json.RawMessage) (StateResponse, error)
}

// GameStateAdapter implements GameStatePort using the service container.
type GameStateAdapter struct {
	container mono.ServiceContainer
}

// NewGameStateAdapter creates a new GameStateAdapter.
func NewGameStateAdapter(container mono.ServiceContainer) GameStatePort {
	if container == nil {
		panic("lowlatency: ServiceContainer is nil")
	}
	return &GameStateAdapter{container: container}
}

// Relay emits a volatile game update.
func (a *GameStateAdapter) Relay(ctx context.Context, state json.RawMessage) (StateResponse, error) {
	req := StateRequest{State: state}
	var resp StateResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGameState,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return StateResponse{}, fmt.Errorf("failed to relay game state: %w", broadcast.RemoteError(err))
	}
	return resp, nil
}
